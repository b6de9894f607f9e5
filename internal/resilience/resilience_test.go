package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/launcher/internal/resilience"
)

func TestBackoff_Next(t *testing.T) {
	t.Parallel()

	b := resilience.Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 50, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Next(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	t.Parallel()

	b := resilience.Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2, Jitter: 0.1}
	for i := 0; i < 200; i++ {
		d := b.Next(2)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}

	// Jitter never pushes past the cap.
	for i := 0; i < 200; i++ {
		assert.LessOrEqual(t, b.Next(30), time.Minute)
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, resilience.Sleep(context.Background(), 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := resilience.Sleep(ctx, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrashBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		transitions []resilience.CircuitState
	)
	b := resilience.NewCrashBreaker(resilience.BreakerConfig{
		Name:        "bot",
		MaxFailures: 3,
		Cooldown:    50 * time.Millisecond,
		OnStateChange: func(_ string, _, to resilience.CircuitState) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})

	for i := 0; i < 3; i++ {
		done, err := b.Allow()
		require.NoError(t, err, "run %d", i)
		done(false)
	}
	assert.Equal(t, resilience.StateOpen, b.State())

	_, err := b.Allow()
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)

	// After the cool-down one trial run is allowed; success closes it again.
	time.Sleep(80 * time.Millisecond)
	done, err := b.Allow()
	require.NoError(t, err)
	assert.Equal(t, resilience.StateHalfOpen, b.State())

	_, err = b.Allow()
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen, "only one trial run at a time")

	done(true)
	assert.Equal(t, resilience.StateClosed, b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []resilience.CircuitState{
		resilience.StateOpen, resilience.StateHalfOpen, resilience.StateClosed,
	}, transitions)
}

func TestCrashBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := resilience.NewCrashBreaker(resilience.BreakerConfig{Name: "bot", MaxFailures: 2, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		done, err := b.Allow()
		require.NoError(t, err)
		done(false)

		done, err = b.Allow()
		require.NoError(t, err)
		done(true)
	}
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", resilience.StateClosed.String())
	assert.Equal(t, "half-open", resilience.StateHalfOpen.String())
	assert.Equal(t, "open", resilience.StateOpen.String())
	assert.Equal(t, "unknown", resilience.CircuitState(9).String())
}
