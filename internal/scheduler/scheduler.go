// Package scheduler runs periodic maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	logging "github.com/edgard/launcher/internal/logger"
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx context.Context) error

// Task binds a cron expression (with seconds) to a function.
// An empty Schedule disables the task.
type Task struct {
	Schedule string
	Run      TaskFunc
}

// Scheduler manages scheduled tasks using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	tasks     map[string]Task

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler for the given tasks. Jobs are registered on Start.
func New(logger *slog.Logger, tasks map[string]Task) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logging.NewGocronLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		tasks:     tasks,
	}, nil
}

// Start registers every enabled task and starts ticking. Tasks with an invalid
// schedule are skipped and reported in the returned error; the rest still run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	var errs []error
	scheduled := 0
	for name, task := range s.tasks {
		if task.Schedule == "" || task.Run == nil {
			s.logger.Info("Skipping disabled task", "task_name", name)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(task.Schedule, true),
			gocron.NewTask(s.wrap(name, task.Run)),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", name, "schedule", task.Schedule, "error", err)
			errs = append(errs, fmt.Errorf("task %s: %w", name, err))
			continue
		}
		s.logger.Debug("Scheduled task", "task_name", name, "schedule", task.Schedule)
		scheduled++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)

	return errors.Join(errs...)
}

func (s *Scheduler) wrap(name string, run TaskFunc) func() {
	return func() {
		startTime := time.Now()
		if err := run(s.ctx); err != nil {
			s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
			return
		}
		s.logger.Debug("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
	}
}

// Stop stops the scheduler, cancelling and then waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped")
	}

	s.running = false
	return err
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.logger.Warn("Some tasks were not scheduled", "error", err)
	}
	<-ctx.Done()
	return s.Stop()
}
