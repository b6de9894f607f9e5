package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/launcher/internal/database"
	"github.com/edgard/launcher/internal/metrics"
	"github.com/edgard/launcher/internal/notify"
	"github.com/edgard/launcher/internal/process"
	"github.com/edgard/launcher/internal/resilience"
)

// keeper owns one auxiliary process: it starts it, watches it, and restarts
// it according to its restart policy, backoff, and crash breaker.
type keeper struct {
	sup     *Supervisor
	plan    ProcessPlan
	state   *tracked
	backoff resilience.Backoff
	breaker *resilience.CrashBreaker

	child   *process.Child
	failed  *process.Exit
	done    func(success bool)
	attempt int
}

func newKeeper(s *Supervisor, plan ProcessPlan) *keeper {
	return &keeper{
		sup:   s,
		plan:  plan,
		state: newTracked(plan.Name, false),
		backoff: resilience.Backoff{
			Initial:    s.cfg.Backoff.Initial,
			Max:        s.cfg.Backoff.Max,
			Multiplier: s.cfg.Backoff.Multiplier,
			Jitter:     s.cfg.Backoff.Jitter,
		},
		breaker: resilience.NewCrashBreaker(resilience.BreakerConfig{
			Name:        plan.Name,
			MaxFailures: s.cfg.Breaker.MaxFailures,
			Cooldown:    s.cfg.Breaker.Cooldown,
		}),
	}
}

// launchFirst performs the initial start. The breaker is closed at this
// point, so Allow cannot fail.
func (k *keeper) launchFirst() {
	done, err := k.breaker.Allow()
	if err != nil {
		done = func(bool) {}
	}
	k.done = done
	k.launch()
}

// launch starts the child; on failure the synthetic exit is kept in k.failed.
func (k *keeper) launch() {
	s := k.sup
	s.logger.Info("Starting auxiliary process", "process", k.plan.Name, "argv", k.plan.Argv, "restart", k.plan.Restart)

	child, err := process.Start(k.plan.spec(), s.stdout, s.stderr, s.cfg.PrefixOutput)
	if err != nil {
		exit := process.Exit{Code: process.StartExitCode(err), Err: err}
		k.child, k.failed = nil, &exit
		s.logger.Error("Failed to start auxiliary process", "process", k.plan.Name, "error", err, "exit_code", exit.Code)
		s.record(database.Event{Process: k.plan.Name, Kind: database.EventStartFailed, ExitCode: database.IntPtr(exit.Code), Detail: err.Error()})
		s.notify(notify.Event{Process: k.plan.Name, Kind: string(database.EventStartFailed), ExitCode: database.IntPtr(exit.Code), Detail: err.Error()})
		return
	}

	k.child, k.failed = child, nil
	k.state.running(child)
	s.metrics.ProcessStarted(k.plan.Name)
	s.record(database.Event{Process: k.plan.Name, Kind: database.EventStarted, PID: child.PID()})
	s.logger.Info("Auxiliary process started", "process", k.plan.Name, "pid", child.PID())
}

// run supervises the child until ctx is done or the policy says stop.
func (k *keeper) run(ctx context.Context) {
	s := k.sup
	for {
		exit, stopped := k.wait(ctx)
		if stopped {
			k.finish(true)
			return
		}

		stable := k.stable(exit)
		if stable {
			k.attempt = 0
		}
		k.finish(!exit.Failed() || stable)

		if !k.plan.shouldRestart(exit) {
			s.logger.Info("Auxiliary process will not be restarted", "process", k.plan.Name, "restart", k.plan.Restart)
			return
		}

		if limit := s.cfg.MaxRestarts; limit > 0 && k.state.restartCount() >= limit {
			k.gaveUp(fmt.Sprintf("reached max_restarts (%d)", limit))
			return
		}

		k.attempt++
		delay := k.backoff.Next(k.attempt)
		k.state.setState(StateBackoff)
		s.metrics.RestartScheduled(k.plan.Name)
		s.record(database.Event{Process: k.plan.Name, Kind: database.EventRestartScheduled, Detail: fmt.Sprintf("attempt %d in %s", k.attempt, delay)})
		s.logger.Info("Restart scheduled", "process", k.plan.Name, "attempt", k.attempt, "delay", delay)

		if err := resilience.Sleep(ctx, delay); err != nil {
			k.state.setState(StateStopped)
			return
		}
		if !k.admit(ctx) {
			k.state.setState(StateStopped)
			return
		}

		restarts := k.state.restarted()
		s.logger.Debug("Restarting auxiliary process", "process", k.plan.Name, "restarts", restarts)
		k.launch()
	}
}

// wait blocks until the current child exits. When ctx is done first, the
// child is stopped and stopped is true.
func (k *keeper) wait(ctx context.Context) (exit process.Exit, stopped bool) {
	s := k.sup
	if k.failed != nil {
		exit = *k.failed
		k.state.exited(exit, StateExited)
		s.metrics.ProcessExited(k.plan.Name, metrics.OutcomeFailed)
		return exit, false
	}

	child := k.child
	select {
	case <-child.Done():
		exit = child.Wait()
	case <-ctx.Done():
		exit = child.Stop(s.cfg.ShutdownTimeout)
		s.record(database.Event{Process: k.plan.Name, Kind: database.EventStopped, PID: child.PID(), ExitCode: database.IntPtr(exit.Code), Detail: exit.String()})
		s.metrics.ProcessExited(k.plan.Name, metrics.OutcomeStopped)
		k.state.exited(exit, StateStopped)
		s.logger.Info("Auxiliary process stopped", "process", k.plan.Name, "pid", child.PID(), "exit", exit.String())
		return exit, true
	}

	outcome := metrics.OutcomeClean
	if exit.Failed() {
		outcome = metrics.OutcomeFailed
	}
	s.record(database.Event{Process: k.plan.Name, Kind: database.EventExited, PID: child.PID(), ExitCode: database.IntPtr(exit.Code), Detail: exit.String()})
	s.metrics.ProcessExited(k.plan.Name, outcome)
	k.state.exited(exit, StateExited)

	if exit.Failed() {
		s.logger.Warn("Auxiliary process exited", "process", k.plan.Name, "pid", child.PID(), "exit", exit.String(), "uptime", exit.Duration)
		s.notify(notify.Event{Process: k.plan.Name, Kind: string(database.EventExited), PID: child.PID(), ExitCode: database.IntPtr(exit.Code), Detail: exit.String()})
	} else {
		s.logger.Info("Auxiliary process exited", "process", k.plan.Name, "pid", child.PID(), "exit", exit.String(), "uptime", exit.Duration)
	}
	return exit, false
}

// stable reports whether the run stayed up long enough to count as healthy
// even though it failed. A zero min_uptime grants no such credit.
func (k *keeper) stable(exit process.Exit) bool {
	minUptime := k.sup.cfg.Breaker.MinUptime
	return minUptime > 0 && exit.Duration >= minUptime
}

// finish reports the outcome of the current run to the breaker.
func (k *keeper) finish(success bool) {
	if k.done != nil {
		k.done(success)
		k.done = nil
	}
}

// admit waits until the breaker lets a new run start. While the breaker is
// open the process is reported as given up and retried after the cooldown.
func (k *keeper) admit(ctx context.Context) bool {
	s := k.sup
	for {
		done, err := k.breaker.Allow()
		if err == nil {
			k.done = done
			return true
		}
		if !errors.Is(err, resilience.ErrBreakerOpen) {
			s.logger.Error("Unexpected breaker error", "process", k.plan.Name, "error", err)
		}

		k.gaveUp(fmt.Sprintf("crash loop: %d consecutive failures, retrying in %s",
			s.cfg.Breaker.MaxFailures, s.cfg.Breaker.Cooldown))
		if err := resilience.Sleep(ctx, s.cfg.Breaker.Cooldown); err != nil {
			return false
		}
	}
}

func (k *keeper) gaveUp(detail string) {
	s := k.sup
	s.record(database.Event{Process: k.plan.Name, Kind: database.EventGaveUp, Detail: detail})
	s.notify(notify.Event{Process: k.plan.Name, Kind: string(database.EventGaveUp), Detail: detail})
	s.logger.Error("Giving up on auxiliary process", "process", k.plan.Name, "reason", detail)
	k.state.setState(StateGaveUp)
}
