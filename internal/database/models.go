package database

import (
	"database/sql"
	"time"
)

// EventKind classifies a process lifecycle event.
type EventKind string

const (
	EventStarted          EventKind = "started"
	EventStartFailed      EventKind = "start_failed"
	EventExited           EventKind = "exited"
	EventRestartScheduled EventKind = "restart_scheduled"
	EventGaveUp           EventKind = "gave_up"
	EventReady            EventKind = "ready"
	EventStartupTimeout   EventKind = "startup_timeout"
	EventStopped          EventKind = "stopped"
)

// Event is one lifecycle transition of a supervised process.
type Event struct {
	ID        int64     `json:"id"`
	Process   string    `json:"process"`
	Kind      EventKind `json:"kind"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// eventRow maps the process_events table. Timestamps are stored as Unix
// milliseconds so range comparisons stay numeric.
type eventRow struct {
	ID        int64         `db:"id"`
	Process   string        `db:"process"`
	Kind      string        `db:"kind"`
	PID       int           `db:"pid"`
	ExitCode  sql.NullInt64 `db:"exit_code"`
	Detail    string        `db:"detail"`
	CreatedAt int64         `db:"created_at"`
}

func (r eventRow) toEvent() Event {
	e := Event{
		ID:        r.ID,
		Process:   r.Process,
		Kind:      EventKind(r.Kind),
		PID:       r.PID,
		Detail:    r.Detail,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.ExitCode.Valid {
		code := int(r.ExitCode.Int64)
		e.ExitCode = &code
	}
	return e
}

func rowFromEvent(e *Event) eventRow {
	r := eventRow{
		Process:   e.Process,
		Kind:      string(e.Kind),
		PID:       e.PID,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt.UnixMilli(),
	}
	if e.ExitCode != nil {
		r.ExitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}
	return r
}

// IntPtr is a helper for filling Event.ExitCode.
func IntPtr(v int) *int { return &v }
