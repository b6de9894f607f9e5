package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/launcher/internal/logger"
	"github.com/edgard/launcher/internal/scheduler"
)

func TestScheduler_RunsTasks(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s, err := scheduler.New(logger.Discard(), map[string]scheduler.Task{
		"tick": {Schedule: "* * * * * *", Run: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
		"failing": {Schedule: "* * * * * *", Run: func(context.Context) error {
			return errors.New("boom")
		}},
		"disabled": {Run: func(context.Context) error {
			t.Error("disabled task ran")
			return nil
		}},
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop())

	// Stop is idempotent.
	assert.NoError(t, s.Stop())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s, err := scheduler.New(logger.Discard(), map[string]scheduler.Task{
		"bad": {Schedule: "not a cron", Run: func(context.Context) error { return nil }},
	})
	require.NoError(t, err)

	err = s.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Error(t, s.Start(context.Background()), "second start must fail")
	require.NoError(t, s.Stop())
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	s, err := scheduler.New(logger.Discard(), map[string]scheduler.Task{
		"wait": {Schedule: "* * * * * *", Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("task never started")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
