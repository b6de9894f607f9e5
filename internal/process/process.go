// Package process starts and controls child processes: it resolves the
// binary, puts the child in its own process group, forwards its output line
// by line, and reports how it exited.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrEmptyCommand is returned when a Spec has no argv.
	ErrEmptyCommand = errors.New("empty command")
	// ErrNotStarted is returned when signalling a child that never started.
	ErrNotStarted = errors.New("process not started")
)

// waitDelay bounds how long Wait keeps copying output after the child exits,
// in case a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Spec describes a child command.
type Spec struct {
	Name string
	Argv []string
	Dir  string
	Env  []string
}

// Child is a running (or finished) child process.
type Child struct {
	spec    Spec
	cmd     *exec.Cmd
	started time.Time
	stdout  *LineWriter
	stderr  *LineWriter

	done chan struct{}
	once sync.Once
	exit Exit
}

// Start launches spec and returns once the process exists (has a pid).
// Output is forwarded to stdout/stderr; when prefix is true every line is
// prefixed with "[name] ".
func Start(spec Spec, stdout, stderr io.Writer, prefix bool) (*Child, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("%s: %w", spec.Name, ErrEmptyCommand)
	}

	path, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	linePrefix := ""
	if prefix {
		linePrefix = "[" + spec.Name + "] "
	}

	c := &Child{
		spec:   spec,
		stdout: NewLineWriter(stdout, linePrefix),
		stderr: NewLineWriter(stderr, linePrefix),
		done:   make(chan struct{}),
	}

	cmd := exec.Command(path, spec.Argv[1:]...)
	cmd.Args[0] = spec.Argv[0]
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = nil
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: start: %w", spec.Name, err)
	}
	c.cmd = cmd
	c.started = time.Now()

	go c.wait()
	return c, nil
}

func (c *Child) wait() {
	err := c.cmd.Wait()
	exit := exitFromState(c.cmd.ProcessState, err, time.Since(c.started))

	_ = c.stdout.Flush()
	_ = c.stderr.Flush()

	c.once.Do(func() {
		c.exit = exit
		close(c.done)
	})
}

// Name returns the configured process name.
func (c *Child) Name() string { return c.spec.Name }

// Spec returns the spec the child was started from.
func (c *Child) Spec() Spec { return c.spec }

// PID returns the process id.
func (c *Child) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// StartedAt returns when the child was started.
func (c *Child) StartedAt() time.Time { return c.started }

// Done is closed once the child has exited and its output is flushed.
func (c *Child) Done() <-chan struct{} { return c.done }

// Running reports whether the child has not exited yet.
func (c *Child) Running() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the child exits and returns how it exited.
func (c *Child) Wait() Exit {
	<-c.done
	return c.exit
}

// Signal delivers sig to the child's process group.
func (c *Child) Signal(sig syscall.Signal) error {
	pid := c.PID()
	if pid == 0 {
		return ErrNotStarted
	}
	if !c.Running() {
		return nil
	}
	return signalGroup(pid, sig)
}

// Stop asks the child to terminate with SIGTERM and escalates to SIGKILL if
// it is still running after grace. It returns the child's exit.
func (c *Child) Stop(grace time.Duration) Exit {
	if !c.Running() {
		return c.Wait()
	}

	_ = c.Signal(syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		_ = c.Signal(syscall.SIGKILL)
	}
	return c.Wait()
}
