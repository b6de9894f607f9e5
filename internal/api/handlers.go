package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edgard/launcher/internal/database"
	"github.com/edgard/launcher/internal/supervisor"
)

const maxEventLimit = 1000

// statusProvider is the subset of *supervisor.Supervisor used by the
// handlers.
type statusProvider interface {
	Status() supervisor.Status
	Ready() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	supervisor statusProvider
	store      database.Store
}

// Health handles GET /health. It always returns 200 while the launcher runs.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready handles GET /ready: 200 when the primary is running and listening,
// 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.supervisor.Ready() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Status())
}

// Events handles GET /events?process=&limit=.
func (h *Handler) Events(c *gin.Context) {
	limit := database.DefaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.store.RecentEvents(c.Request.Context(), c.Query("process"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []database.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
