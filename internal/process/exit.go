package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Exit describes how a child ended.
type Exit struct {
	// Code is the exit status, 128+signo for signal deaths, -1 if unknown.
	Code     int
	Signal   syscall.Signal
	Err      error
	Duration time.Duration
}

// Signaled reports whether the child was killed by a signal.
func (e Exit) Signaled() bool { return e.Signal != 0 }

// Failed reports whether the child ended uncleanly.
func (e Exit) Failed() bool { return e.Code != 0 || e.Err != nil }

// String renders the exit for logs.
func (e Exit) String() string {
	switch {
	case e.Signaled():
		return fmt.Sprintf("signal: %s (code %d)", e.Signal, e.Code)
	case e.Err != nil && e.Code < 0:
		return fmt.Sprintf("error: %v", e.Err)
	default:
		return fmt.Sprintf("exit code %d", e.Code)
	}
}

func exitFromState(state *os.ProcessState, err error, d time.Duration) Exit {
	exit := Exit{Duration: d}

	if state == nil {
		exit.Code = -1
		exit.Err = err
		return exit
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		exit.Signal = ws.Signal()
		exit.Code = 128 + int(ws.Signal())
		return exit
	}

	exit.Code = state.ExitCode()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// e.g. exec.ErrWaitDelay: the process exited but its pipes stayed open.
		exit.Err = err
	}
	return exit
}

// StartExitCode maps a Start error to the exit status a shell would report:
// 127 when the command is missing, 126 when it cannot be executed.
func StartExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return 127
	default:
		return 126
	}
}
