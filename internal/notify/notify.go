// Package notify delivers process lifecycle notices to operators.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event describes a lifecycle change worth telling someone about.
type Event struct {
	Process  string
	Kind     string
	PID      int
	ExitCode *int
	Detail   string
	Time     time.Time
}

// Notifier sends events somewhere a human will see them.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// FormatEvent renders an event as a short plain-text message.
func FormatEvent(host string, ev Event) string {
	var b strings.Builder
	if host != "" {
		fmt.Fprintf(&b, "[%s] ", host)
	}
	fmt.Fprintf(&b, "%s: %s", ev.Process, strings.ReplaceAll(ev.Kind, "_", " "))
	if ev.PID > 0 {
		fmt.Fprintf(&b, " (pid %d)", ev.PID)
	}
	if ev.ExitCode != nil {
		fmt.Fprintf(&b, ", exit code %d", *ev.ExitCode)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, "\n%s", ev.Detail)
	}
	return b.String()
}

type nop struct{}

func (nop) Notify(context.Context, Event) error { return nil }

// Nop returns a Notifier that discards every event.
func Nop() Notifier {
	return nop{}
}
