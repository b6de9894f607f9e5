package supervisor

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/edgard/launcher/internal/process"
)

// ErrStartupTimeout is returned when the primary does not accept connections
// within the startup timeout.
var ErrStartupTimeout = errors.New("primary did not start listening before the startup timeout")

var errPrimaryExited = errors.New("primary exited")

const dialTimeout = time.Second

// probe reports whether addr accepts TCP connections.
func probe(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// waitReady probes until the primary listens, the startup timeout passes,
// the primary exits, or ctx is done.
func (s *Supervisor) waitReady(ctx context.Context, child *process.Child) error {
	deadline := time.NewTimer(s.cfg.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		if probe(ctx, s.plan.ProbeAddress) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-child.Done():
			return errPrimaryExited
		case <-deadline.C:
			return ErrStartupTimeout
		case <-ticker.C:
		}
	}
}

// ProbePrimary re-checks the primary listener and updates readiness.
func (s *Supervisor) ProbePrimary(ctx context.Context) bool {
	child := s.primary.current()
	ready := child != nil && child.Running() && probe(ctx, s.plan.ProbeAddress)
	if s.ready.Swap(ready) != ready {
		s.logger.Info("Primary readiness changed", "ready", ready, "addr", s.plan.ProbeAddress)
	}
	s.metrics.SetReady(ready)
	return ready
}

// Ready reports whether the primary is running and was last seen listening.
func (s *Supervisor) Ready() bool {
	child := s.primary.current()
	return child != nil && child.Running() && s.ready.Load()
}
