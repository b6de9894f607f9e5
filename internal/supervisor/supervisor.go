// Package supervisor launches the auxiliary processes and the foreground
// server, keeps the auxiliaries running according to their restart policy,
// and reports the primary's exit code as its own.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgard/launcher/internal/config"
	"github.com/edgard/launcher/internal/database"
	"github.com/edgard/launcher/internal/metrics"
	"github.com/edgard/launcher/internal/notify"
	"github.com/edgard/launcher/internal/process"
)

const (
	storeTimeout  = 5 * time.Second
	notifyTimeout = 10 * time.Second
)

// Deps holds the collaborators of a Supervisor. Nil fields get no-op defaults.
type Deps struct {
	Logger   *slog.Logger
	Store    database.Store
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Stdout   io.Writer
	Stderr   io.Writer
}

// Supervisor runs one Plan.
type Supervisor struct {
	plan     *Plan
	cfg      config.SupervisorConfig
	logger   *slog.Logger
	store    database.Store
	metrics  *metrics.Metrics
	notifier notify.Notifier
	stdout   io.Writer
	stderr   io.Writer

	started time.Time
	primary *tracked
	keepers []*keeper
	ready   atomic.Bool

	auxWG    sync.WaitGroup
	notifyWG sync.WaitGroup
}

// New creates a Supervisor for plan.
func New(plan *Plan, cfg config.SupervisorConfig, deps Deps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = database.NopStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop()
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}

	s := &Supervisor{
		plan:     plan,
		cfg:      cfg,
		logger:   deps.Logger.With("component", "supervisor"),
		store:    deps.Store,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
		started:  time.Now().UTC(),
		primary:  newTracked(plan.Primary.Name, true),
	}
	for _, aux := range plan.Auxiliaries {
		s.keepers = append(s.keepers, newKeeper(s, aux))
	}
	return s
}

// Run starts the auxiliaries, then the primary, and blocks until the primary
// exits or ctx is cancelled. It returns the primary's exit code.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	defer s.notifyWG.Wait()

	names := make([]string, 0, len(s.keepers))
	for _, k := range s.keepers {
		names = append(names, k.plan.Name)
	}
	s.logger.Info("Launcher starting",
		"pid", os.Getpid(),
		"primary", strings.Join(s.plan.Primary.Argv, " "),
		"auxiliaries", names)

	auxCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()
	stopAuxiliaries := func() {
		stopAux()
		s.auxWG.Wait()
	}

	for _, k := range s.keepers {
		if d := k.plan.StartDelay; d > 0 {
			s.logger.Info("Delaying auxiliary start", "process", k.plan.Name, "delay", d)
			select {
			case <-ctx.Done():
				stopAuxiliaries()
				return 0, ctx.Err()
			case <-time.After(d):
			}
		}
		k.launchFirst()
		s.auxWG.Add(1)
		go func() {
			defer s.auxWG.Done()
			k.run(auxCtx)
		}()
	}

	child, err := s.startPrimary()
	if err != nil {
		stopAuxiliaries()
		return process.StartExitCode(err), err
	}

	readyCh := make(chan error, 1)
	probeCtx, cancelProbe := context.WithCancel(ctx)
	defer cancelProbe()
	go func() { readyCh <- s.waitReady(probeCtx, child) }()

	for {
		select {
		case err := <-readyCh:
			readyCh = nil
			switch {
			case err == nil:
				s.markReady(child)
			case errors.Is(err, ErrStartupTimeout):
				detail := fmt.Sprintf("not listening on %s after %s", s.plan.ProbeAddress, s.cfg.StartupTimeout)
				s.record(database.Event{Process: s.plan.Primary.Name, Kind: database.EventStartupTimeout, PID: child.PID(), Detail: detail})
				s.notify(notify.Event{Process: s.plan.Primary.Name, Kind: string(database.EventStartupTimeout), PID: child.PID(), Detail: detail})
				if !s.cfg.FailOnStartupTimeout {
					s.logger.Warn("Primary not listening yet, continuing", "addr", s.plan.ProbeAddress, "timeout", s.cfg.StartupTimeout)
					continue
				}
				s.logger.Error("Primary failed to start listening, shutting down", "addr", s.plan.ProbeAddress, "timeout", s.cfg.StartupTimeout)
				s.primaryExited(child.Stop(s.cfg.ShutdownTimeout), true)
				stopAuxiliaries()
				return 1, ErrStartupTimeout
			}

		case <-child.Done():
			exit := child.Wait()
			s.primaryExited(exit, false)
			stopAuxiliaries()
			if exit.Code < 0 {
				return 1, fmt.Errorf("wait for %s: %w", s.plan.Primary.Name, exit.Err)
			}
			return exit.Code, nil

		case <-ctx.Done():
			s.logger.Info("Shutdown requested, stopping processes", "grace", s.cfg.ShutdownTimeout)
			exit := child.Stop(s.cfg.ShutdownTimeout)
			s.primaryExited(exit, true)
			stopAuxiliaries()
			if exit.Code < 0 {
				return 1, fmt.Errorf("wait for %s: %w", s.plan.Primary.Name, exit.Err)
			}
			return exit.Code, nil
		}
	}
}

func (s *Supervisor) startPrimary() (*process.Child, error) {
	p := s.plan.Primary
	s.logger.Info("Starting primary process", "process", p.Name, "argv", p.Argv, "addr", s.plan.ProbeAddress)

	child, err := process.Start(p.spec(), s.stdout, s.stderr, s.cfg.PrefixOutput)
	if err != nil {
		code := process.StartExitCode(err)
		s.logger.Error("Failed to start primary process", "process", p.Name, "error", err, "exit_code", code)
		s.primary.exited(process.Exit{Code: code, Err: err}, StateExited)
		s.record(database.Event{Process: p.Name, Kind: database.EventStartFailed, ExitCode: database.IntPtr(code), Detail: err.Error()})
		s.notify(notify.Event{Process: p.Name, Kind: string(database.EventStartFailed), ExitCode: database.IntPtr(code), Detail: err.Error()})
		return nil, err
	}

	s.primary.running(child)
	s.metrics.ProcessStarted(p.Name)
	s.record(database.Event{Process: p.Name, Kind: database.EventStarted, PID: child.PID()})
	s.logger.Info("Primary process started", "process", p.Name, "pid", child.PID())
	return child, nil
}

func (s *Supervisor) markReady(child *process.Child) {
	s.ready.Store(true)
	s.metrics.SetReady(true)
	s.record(database.Event{Process: s.plan.Primary.Name, Kind: database.EventReady, PID: child.PID(), Detail: s.plan.ProbeAddress})
	s.logger.Info("Primary is accepting connections",
		"addr", s.plan.ProbeAddress,
		"startup", time.Since(child.StartedAt()).Round(time.Millisecond))
}

func (s *Supervisor) primaryExited(exit process.Exit, stopped bool) {
	name := s.plan.Primary.Name
	s.ready.Store(false)
	s.metrics.SetReady(false)

	kind, state, outcome := database.EventExited, StateExited, metrics.OutcomeClean
	switch {
	case stopped:
		kind, state, outcome = database.EventStopped, StateStopped, metrics.OutcomeStopped
	case exit.Failed():
		outcome = metrics.OutcomeFailed
	}

	pid := 0
	if child := s.primary.current(); child != nil {
		pid = child.PID()
	}
	s.record(database.Event{Process: name, Kind: kind, PID: pid, ExitCode: database.IntPtr(exit.Code), Detail: exit.String()})
	s.metrics.ProcessExited(name, outcome)
	s.primary.exited(exit, state)

	if !stopped && exit.Failed() {
		s.logger.Error("Primary process exited", "process", name, "pid", pid, "exit", exit.String(), "uptime", exit.Duration)
		s.notify(notify.Event{Process: name, Kind: string(kind), PID: pid, ExitCode: database.IntPtr(exit.Code), Detail: exit.String()})
		return
	}
	s.logger.Info("Primary process exited", "process", name, "pid", pid, "exit", exit.String(), "uptime", exit.Duration)
}

// Status returns a snapshot of every supervised process, primary first.
func (s *Supervisor) Status() Status {
	st := Status{
		Ready:     s.Ready(),
		StartedAt: s.started,
		Processes: make([]ProcessStatus, 0, len(s.keepers)+1),
	}
	st.Processes = append(st.Processes, s.primary.snapshot())
	for _, k := range s.keepers {
		st.Processes = append(st.Processes, k.state.snapshot())
	}
	return st
}

func (s *Supervisor) record(ev database.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.RecordEvent(ctx, &ev); err != nil {
		s.logger.Warn("Failed to record lifecycle event", "process", ev.Process, "kind", ev.Kind, "error", err)
	}
}

// notify delivers ev in the background; failures never affect supervision.
func (s *Supervisor) notify(ev notify.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.logger.Warn("Failed to deliver notification", "process", ev.Process, "kind", ev.Kind, "error", err)
		}
	}()
}
