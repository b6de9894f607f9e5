package supervisor

import (
	"sync"
	"time"

	"github.com/edgard/launcher/internal/process"
)

// State is the lifecycle state of a supervised process.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateBackoff State = "backoff"
	StateExited  State = "exited"
	StateGaveUp  State = "gave_up"
	StateStopped State = "stopped"
)

// ExitStatus describes the most recent exit of a process.
type ExitStatus struct {
	Code   int           `json:"code"`
	Signal string        `json:"signal,omitempty"`
	Error  string        `json:"error,omitempty"`
	Uptime time.Duration `json:"uptime"`
	At     time.Time     `json:"at"`
}

// ProcessStatus is a point-in-time view of one process.
type ProcessStatus struct {
	Name      string      `json:"name"`
	Primary   bool        `json:"primary"`
	PID       int         `json:"pid,omitempty"`
	State     State       `json:"state"`
	Restarts  int         `json:"restarts"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	LastExit  *ExitStatus `json:"last_exit,omitempty"`
}

// Status is a point-in-time view of the whole launcher.
type Status struct {
	Ready     bool            `json:"ready"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	Processes []ProcessStatus `json:"processes"`
}

// tracked holds the mutable status of one process.
type tracked struct {
	mu        sync.Mutex
	name      string
	primary   bool
	state     State
	child     *process.Child
	restarts  int
	startedAt time.Time
	lastExit  *ExitStatus
}

func newTracked(name string, primary bool) *tracked {
	return &tracked{name: name, primary: primary, state: StatePending}
}

func (t *tracked) running(child *process.Child) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.child = child
	t.state = StateRunning
	t.startedAt = child.StartedAt()
}

func (t *tracked) exited(exit process.Exit, state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.child = nil
	t.state = state
	es := &ExitStatus{Code: exit.Code, Uptime: exit.Duration, At: time.Now().UTC()}
	if exit.Signaled() {
		es.Signal = exit.Signal.String()
	}
	if exit.Err != nil {
		es.Error = exit.Err.Error()
	}
	t.lastExit = es
}

func (t *tracked) setState(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

func (t *tracked) restarted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restarts++
	return t.restarts
}

func (t *tracked) restartCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restarts
}

func (t *tracked) current() *process.Child {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.child
}

func (t *tracked) snapshot() ProcessStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := ProcessStatus{
		Name:      t.name,
		Primary:   t.primary,
		State:     t.state,
		Restarts:  t.restarts,
		StartedAt: t.startedAt,
	}
	if t.child != nil {
		ps.PID = t.child.PID()
	}
	if t.lastExit != nil {
		le := *t.lastExit
		ps.LastExit = &le
	}
	return ps
}
