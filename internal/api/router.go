// Package api serves the launcher's health, status, history, and metrics
// endpoints over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/launcher/internal/database"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the middleware chain and all routes
// registered. A nil gatherer disables /metrics.
func NewRouter(sup statusProvider, store database.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(log))
	engine.Use(RequestLogger(log))

	h := &Handler{supervisor: sup, store: store}

	engine.GET("/health", h.Health)
	engine.GET("/ready", h.Ready)
	engine.GET("/status", h.Status)
	engine.GET("/events", h.Events)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
