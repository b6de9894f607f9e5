// Package app wires the launcher components together and runs them until
// the primary process exits.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/launcher/internal/api"
	"github.com/edgard/launcher/internal/config"
	"github.com/edgard/launcher/internal/database"
	"github.com/edgard/launcher/internal/metrics"
	"github.com/edgard/launcher/internal/notify"
	"github.com/edgard/launcher/internal/scheduler"
	"github.com/edgard/launcher/internal/supervisor"
)

// App holds the wired launcher components.
type App struct {
	logger     *slog.Logger
	cfg        *config.Config
	db         *sqlx.DB
	store      database.Store
	registry   *prometheus.Registry
	supervisor *supervisor.Supervisor
	server     *api.Server
	scheduler  *scheduler.Scheduler
}

// New builds every component from cfg. History and notifications are
// optional: when they cannot be set up the launcher still runs, without them.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		logger:   logger.With("component", "app"),
		cfg:      cfg,
		store:    database.NopStore(),
		registry: prometheus.NewRegistry(),
	}

	plan, err := supervisor.BuildPlan(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build launch plan: %w", err)
	}

	if cfg.Database.Path != "" {
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			a.logger.Error("Event history disabled, failed to open database", "path", cfg.Database.Path, "error", err)
		} else {
			a.db = db
			a.store = database.NewStore(db, logger)
		}
	}

	var notifier notify.Notifier = notify.Nop()
	switch {
	case cfg.TelegramEnabled():
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			a.logger.Error("Crash notifications disabled", "error", err)
		} else {
			notifier = tg
		}
	case cfg.Notify.TelegramToken != "":
		a.logger.Info("Crash notifications disabled, notify.telegram_chat_id is not set")
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.supervisor = supervisor.New(plan, cfg.Supervisor, supervisor.Deps{
		Logger:   logger,
		Store:    a.store,
		Metrics:  metrics.New(a.registry),
		Notifier: notifier,
	})

	if cfg.Health.Enabled {
		router := api.NewRouter(a.supervisor, a.store, a.registry, logger)
		a.server = api.NewServer(cfg.Health.Addr, router.Handler(), logger)
	}

	a.scheduler, err = scheduler.New(logger, a.tasks())
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Run starts the supervisor, the health server, and the scheduler. It blocks
// until the primary process exits (or ctx is cancelled and the processes are
// stopped) and returns the primary's exit code.
func (a *App) Run(ctx context.Context) (int, error) {
	a.logger.Info("Starting launcher components...")

	// Support components stop once the supervisor returns.
	compCtx, stopComponents := context.WithCancel(ctx)
	defer stopComponents()

	g, gCtx := errgroup.WithContext(compCtx)

	var (
		code   int
		runErr error
	)
	g.Go(func() error {
		defer stopComponents()
		code, runErr = a.supervisor.Run(ctx)
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			// The launcher keeps supervising without its health endpoint.
			if err := a.server.Run(gCtx); err != nil {
				a.logger.Error("Health server stopped with error", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := a.scheduler.Run(gCtx); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	_ = g.Wait()

	if runErr != nil {
		a.logger.Error("Launcher stopped with error", "exit_code", code, "error", runErr)
	} else {
		a.logger.Info("Launcher stopped", "exit_code", code)
	}
	return code, runErr
}

// Close releases the database.
func (a *App) Close() {
	database.CloseDB(a.db)
	a.db = nil
}
