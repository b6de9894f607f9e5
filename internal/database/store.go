package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// DefaultEventLimit caps RecentEvents when no positive limit is given.
const DefaultEventLimit = 100

// Store defines the interface for event history operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RecordEvent inserts an event and fills its ID (and CreatedAt if zero).
	RecordEvent(ctx context.Context, event *Event) error

	// RecentEvents returns up to limit events, newest first. An empty
	// process matches every process.
	RecentEvents(ctx context.Context, process string, limit int) ([]Event, error)

	// CountEvents counts events of kind for process.
	CountEvents(ctx context.Context, process string, kind EventKind) (int, error)

	// PruneEvents deletes events created before the cutoff and returns how many were removed.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) RecordEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("cannot record nil event")
	}
	if event.Process == "" {
		return fmt.Errorf("event must have a process name")
	}
	if event.Kind == "" {
		return fmt.Errorf("event must have a kind")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO process_events (process, kind, pid, exit_code, detail, created_at)
        VALUES (:process, :kind, :pid, :exit_code, :detail, :created_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, rowFromEvent(event))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording event", "process", event.Process, "kind", event.Kind, "error", err)
		return fmt.Errorf("failed to record event (%s %s): %w", event.Process, event.Kind, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after recording event", "error", err)
	}

	s.logger.DebugContext(ctx, "Event recorded", "process", event.Process, "kind", event.Kind, "id", event.ID)
	return nil
}

func (s *sqlxStore) RecentEvents(ctx context.Context, process string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	var (
		rows []eventRow
		err  error
	)
	if process == "" {
		err = s.db.SelectContext(ctx, &rows, `
            SELECT id, process, kind, pid, exit_code, detail, created_at
            FROM process_events
            ORDER BY created_at DESC, id DESC
            LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
            SELECT id, process, kind, pid, exit_code, detail, created_at
            FROM process_events
            WHERE process = ?
            ORDER BY created_at DESC, id DESC
            LIMIT ?`, process, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

func (s *sqlxStore) CountEvents(ctx context.Context, process string, kind EventKind) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM process_events WHERE process = ? AND kind = ?`, process, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM process_events WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Pruned old events", "deleted", n, "before", before)
	}
	return n, nil
}

// nopStore discards events. It is used when history is disabled.
type nopStore struct{}

// NopStore returns a Store that records nothing.
func NopStore() Store { return nopStore{} }

func (nopStore) Ping(context.Context) error { return nil }

func (nopStore) RecordEvent(context.Context, *Event) error { return nil }

func (nopStore) CountEvents(context.Context, string, EventKind) (int, error) { return 0, nil }

func (nopStore) RecentEvents(context.Context, string, int) ([]Event, error) {
	return []Event{}, nil
}

func (nopStore) PruneEvents(context.Context, time.Time) (int64, error) { return 0, nil }
