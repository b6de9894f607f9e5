package supervisor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/launcher/internal/config"
	"github.com/edgard/launcher/internal/database"
	"github.com/edgard/launcher/internal/metrics"
	"github.com/edgard/launcher/internal/notify"
	"github.com/edgard/launcher/internal/process"
	"github.com/edgard/launcher/internal/supervisor"
)

const eventually = 5 * time.Second

func testSupervisorConfig() config.SupervisorConfig {
	cfg := config.Default().Supervisor
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.Backoff.Initial = 10 * time.Millisecond
	cfg.Backoff.Max = 50 * time.Millisecond
	cfg.Breaker.MinUptime = 0
	return cfg
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	sup      *supervisor.Supervisor
	store    *memStore
	stdout   *syncBuffer
	notifier *recordingNotifier
	reg      *prometheus.Registry
	cancel   context.CancelFunc
	result   chan runResult
}

type runResult struct {
	code int
	err  error
}

func start(t *testing.T, plan *supervisor.Plan, cfg config.SupervisorConfig) *harness {
	t.Helper()

	h := &harness{
		store:    &memStore{},
		stdout:   &syncBuffer{},
		notifier: &recordingNotifier{},
		reg:      prometheus.NewRegistry(),
		result:   make(chan runResult, 1),
	}
	h.sup = supervisor.New(plan, cfg, supervisor.Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:    h.store,
		Metrics:  metrics.New(h.reg),
		Notifier: h.notifier,
		Stdout:   h.stdout,
		Stderr:   h.stdout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		code, err := h.sup.Run(ctx)
		h.result <- runResult{code: code, err: err}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.result:
		case <-time.After(10 * time.Second):
		}
	})
	return h
}

func (h *harness) wait(t *testing.T) runResult {
	t.Helper()
	select {
	case r := <-h.result:
		h.result <- r
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not return")
		return runResult{}
	}
}

func (h *harness) process(name string) supervisor.ProcessStatus {
	for _, p := range h.sup.Status().Processes {
		if p.Name == name {
			return p
		}
	}
	return supervisor.ProcessStatus{}
}

func TestRun_PropagatesPrimaryExitCode(t *testing.T) {
	t.Parallel()

	plan := &supervisor.Plan{
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "exit", "7"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, testSupervisorConfig())

	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, 7, r.code)
	assert.Equal(t, 1, h.store.count("server", database.EventExited))
	assert.Contains(t, h.notifier.kinds(), string(database.EventExited))

	st := h.process("server")
	assert.Equal(t, supervisor.StateExited, st.State)
	require.NotNil(t, st.LastExit)
	assert.Equal(t, 7, st.LastExit.Code)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, notify.Event) error {
	return errors.New("chat not found")
}

func TestRun_LogsNotificationFailure(t *testing.T) {
	t.Parallel()

	logs := &syncBuffer{}
	plan := &supervisor.Plan{
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "exit", "3"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	sup := supervisor.New(plan, testSupervisorConfig(), supervisor.Deps{
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
		Store:    &memStore{},
		Notifier: failingNotifier{},
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	})

	code, err := sup.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, 1, strings.Count(logs.String(), "chat not found"), logs.String())
}

func TestRun_MissingPrimaryBinary(t *testing.T) {
	t.Parallel()

	plan := &supervisor.Plan{
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: []string{"/nonexistent/gunicorn"}},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, testSupervisorConfig())

	r := h.wait(t)
	assert.Error(t, r.err)
	assert.Equal(t, 127, r.code)
	assert.Equal(t, 1, h.store.count("server", database.EventStartFailed))
}

func TestRun_AuxiliaryStartsBeforePrimaryListens(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "sleep"), Env: helperEnvList(), Restart: config.RestartNever},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "serve", addr), Env: helperEnvList()},
		ProbeAddress: addr,
	}
	h := start(t, plan, testSupervisorConfig())

	require.Eventually(t, h.sup.Ready, eventually, 20*time.Millisecond)

	botStarted := h.store.index("bot", database.EventStarted)
	serverStarted := h.store.index("server", database.EventStarted)
	serverReady := h.store.index("server", database.EventReady)
	require.NotEqual(t, -1, botStarted)
	assert.Less(t, botStarted, serverStarted)
	assert.Less(t, serverStarted, serverReady)

	bot := h.process("bot")
	assert.Equal(t, supervisor.StateRunning, bot.State)
	assert.True(t, process.Alive(bot.PID))

	h.cancel()
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, 0, r.code)
	assert.False(t, process.Alive(bot.PID), "auxiliary must be stopped with the primary")
	assert.Equal(t, supervisor.StateStopped, h.process("bot").State)
	assert.Equal(t, 1, h.store.count("bot", database.EventStopped))
	assert.Empty(t, h.notifier.kinds(), "graceful shutdown is not a crash")
}

func TestRun_KillingAuxiliaryKeepsPrimary(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "sleep"), Env: helperEnvList(), Restart: config.RestartNever},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "serve", addr), Env: helperEnvList()},
		ProbeAddress: addr,
	}
	h := start(t, plan, testSupervisorConfig())
	require.Eventually(t, h.sup.Ready, eventually, 20*time.Millisecond)

	botPID := h.process("bot").PID
	require.NoError(t, syscall.Kill(botPID, syscall.SIGKILL))

	require.Eventually(t, func() bool {
		return h.process("bot").State == supervisor.StateExited
	}, eventually, 20*time.Millisecond)
	assert.Equal(t, 137, h.process("bot").LastExit.Code)
	assert.True(t, h.sup.Ready(), "primary keeps serving after the auxiliary dies")
	assert.Equal(t, supervisor.StateRunning, h.process("server").State)

	serverPID := h.process("server").PID
	require.NoError(t, syscall.Kill(serverPID, syscall.SIGKILL))

	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, 137, r.code, "signal death maps to 128+signo")
}

func TestRun_RestartsFailedAuxiliary(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.MaxRestarts = 2
	cfg.FailOnStartupTimeout = false

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "exit", "3"), Env: helperEnvList(), Restart: config.RestartOnFailure},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	require.Eventually(t, func() bool {
		return h.process("bot").State == supervisor.StateGaveUp
	}, eventually, 20*time.Millisecond)

	bot := h.process("bot")
	assert.Equal(t, 2, bot.Restarts)
	assert.Equal(t, 3, h.store.count("bot", database.EventExited))
	assert.Equal(t, 2, h.store.count("bot", database.EventRestartScheduled))
	assert.Equal(t, 1, h.store.count("bot", database.EventGaveUp))
	assert.Equal(t, supervisor.StateRunning, h.process("server").State)

	restarts, err := testutil.GatherAndCount(h.reg, "launcher_process_restarts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, restarts)
}

func TestRun_NeverPolicyDoesNotRestart(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.FailOnStartupTimeout = false

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "exit", "1"), Env: helperEnvList(), Restart: config.RestartNever},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	require.Eventually(t, func() bool {
		return h.process("bot").State == supervisor.StateExited
	}, eventually, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, h.process("bot").Restarts)
	assert.Equal(t, 0, h.store.count("bot", database.EventRestartScheduled))
}

func TestRun_BreakerStopsCrashLoop(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.FailOnStartupTimeout = false
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.Cooldown = time.Hour
	cfg.Breaker.MinUptime = time.Minute

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "exit", "1"), Env: helperEnvList(), Restart: config.RestartAlways},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	require.Eventually(t, func() bool {
		return h.process("bot").State == supervisor.StateGaveUp
	}, eventually, 20*time.Millisecond)

	assert.Equal(t, 1, h.process("bot").Restarts)
	assert.Equal(t, 2, h.store.count("bot", database.EventExited))
	assert.Equal(t, 1, h.store.count("bot", database.EventGaveUp))

	h.cancel()
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, supervisor.StateStopped, h.process("bot").State)
}

func TestRun_BreakerOpensWithoutMinUptime(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.FailOnStartupTimeout = false
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.Cooldown = time.Hour
	cfg.Breaker.MinUptime = 0

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "exit", "1"), Env: helperEnvList(), Restart: config.RestartAlways},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	require.Eventually(t, func() bool {
		return h.process("bot").State == supervisor.StateGaveUp
	}, eventually, 20*time.Millisecond)

	assert.Equal(t, 1, h.process("bot").Restarts)
	assert.Equal(t, 2, h.store.count("bot", database.EventExited))
	assert.Equal(t, 1, h.store.count("bot", database.EventGaveUp))

	var details []string
	events, err := h.store.RecentEvents(context.Background(), "bot", 100)
	require.NoError(t, err)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == database.EventRestartScheduled {
			details = append(details, events[i].Detail)
		}
	}
	require.Len(t, details, 2)
	assert.True(t, strings.HasPrefix(details[0], "attempt 1 "), details[0])
	assert.True(t, strings.HasPrefix(details[1], "attempt 2 "), "backoff keeps growing: %s", details[1])
}

func TestRun_StartupTimeout(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.StartupTimeout = 200 * time.Millisecond

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "sleep"), Env: helperEnvList(), Restart: config.RestartOnFailure},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	r := h.wait(t)
	assert.ErrorIs(t, r.err, supervisor.ErrStartupTimeout)
	assert.Equal(t, 1, r.code)
	assert.Equal(t, 1, h.store.count("server", database.EventStartupTimeout))
	assert.Equal(t, supervisor.StateStopped, h.process("server").State)
	assert.Equal(t, supervisor.StateStopped, h.process("bot").State)
}

func TestRun_ForwardsUnbufferedOutput(t *testing.T) {
	t.Parallel()

	cfg := testSupervisorConfig()
	cfg.FailOnStartupTimeout = false

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{
			{Name: "bot", Argv: helperArgv(t, "getenv", "PYTHONUNBUFFERED"), Env: helperEnvList(), Restart: config.RestartNever},
		},
		Primary:      supervisor.ProcessPlan{Name: "server", Argv: helperArgv(t, "sleep"), Env: helperEnvList()},
		ProbeAddress: freeAddr(t),
	}
	h := start(t, plan, cfg)

	assert.Eventually(t, func() bool {
		return strings.Contains(h.stdout.String(), "[bot] PYTHONUNBUFFERED=1\n")
	}, time.Second, 10*time.Millisecond, "line must reach stdout without waiting for exit")
	assert.Equal(t, supervisor.StateRunning, h.process("bot").State)
}

func TestStatus_JSON(t *testing.T) {
	t.Parallel()

	plan := &supervisor.Plan{
		Auxiliaries: []supervisor.ProcessPlan{{Name: "bot", Argv: []string{"true"}}},
		Primary:     supervisor.ProcessPlan{Name: "server", Argv: []string{"true"}},
	}
	sup := supervisor.New(plan, testSupervisorConfig(), supervisor.Deps{})

	st := sup.Status()
	assert.False(t, st.Ready)
	require.Len(t, st.Processes, 2)
	assert.True(t, st.Processes[0].Primary)
	assert.Equal(t, supervisor.StatePending, st.Processes[1].State)

	raw, err := json.Marshal(st.Processes)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name": "server", "primary": true, "state": "pending", "restarts": 0},
		{"name": "bot", "primary": false, "state": "pending", "restarts": 0}
	]`, string(raw))

	assert.False(t, sup.ProbePrimary(context.Background()))
}
