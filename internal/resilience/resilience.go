// Package resilience provides the restart policy building blocks:
//   - Exponential backoff with jitter and context-aware sleeping
//   - A crash-loop breaker that stops restarts after repeated failures
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen indicates restarts are suspended until the cool-down ends.
var ErrBreakerOpen = errors.New("crash-loop breaker open")

// CircuitState represents the state of a crash breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of CircuitState
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// mapState converts gobreaker state to our CircuitState
func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Backoff computes exponentially growing delays between restarts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the +/- fraction applied to each delay, in [0, 1].
	Jitter float64
}

// Next returns the delay before restart attempt n (n starts at 1).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d *= 1.0 + b.Jitter*(2*rand.Float64()-1)
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep abandoned: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// BreakerConfig holds configuration for a crash breaker
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive failed runs open the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a trial run.
	Cooldown time.Duration
	// OnStateChange, when set, is called on every transition.
	OnStateChange func(name string, from, to CircuitState)
}

// CrashBreaker counts consecutive failed runs of a process and refuses new
// starts while open. Each Allow must be matched by exactly one call to the
// returned done func once the run ends.
type CrashBreaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker
}

// NewCrashBreaker creates a new crash breaker
func NewCrashBreaker(cfg BreakerConfig) *CrashBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	maxFailures := uint32(cfg.MaxFailures) //nolint:gosec // validated positive

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState, toState := mapState(from), mapState(to)
			slog.Info("Crash breaker state changed",
				"process", name,
				"from", fromState,
				"to", toState,
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, fromState, toState)
			}
		},
	}

	return &CrashBreaker{
		name: cfg.Name,
		cb:   gobreaker.NewTwoStepCircuitBreaker(settings),
	}
}

// Allow reports whether a new run may start. On success it returns the
// callback that records the run's outcome.
func (b *CrashBreaker) Allow() (func(success bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", b.name, ErrBreakerOpen)
		}
		return nil, err
	}
	return done, nil
}

// State returns the current breaker state.
func (b *CrashBreaker) State() CircuitState {
	return mapState(b.cb.State())
}
