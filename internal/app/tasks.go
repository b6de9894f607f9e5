package app

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/launcher/internal/scheduler"
)

// Names of the scheduled tasks.
const (
	TaskProbe = "probe"
	TaskPrune = "prune"
)

func (a *App) tasks() map[string]scheduler.Task {
	return map[string]scheduler.Task{
		TaskProbe: {Schedule: a.cfg.Schedule.Probe, Run: a.probeTask},
		TaskPrune: {Schedule: a.cfg.Schedule.Prune, Run: a.pruneTask},
	}
}

// probeTask re-checks that the primary still accepts connections.
func (a *App) probeTask(ctx context.Context) error {
	a.supervisor.ProbePrimary(ctx)
	return nil
}

// pruneTask deletes history older than the configured retention.
func (a *App) pruneTask(ctx context.Context) error {
	if a.cfg.Database.Retention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-a.cfg.Database.Retention)
	n, err := a.store.PruneEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	if n > 0 {
		a.logger.Info("Pruned old lifecycle events", "deleted", n, "before", cutoff)
	}
	return nil
}
