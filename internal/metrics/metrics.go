// Package metrics exposes Prometheus collectors describing supervised
// process activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "launcher"

// Exit outcomes used as the "outcome" label.
const (
	OutcomeClean   = "clean"
	OutcomeFailed  = "failed"
	OutcomeStopped = "stopped"
)

// Metrics holds the launcher collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	up       *prometheus.GaugeVec
	starts   *prometheus.CounterVec
	exits    *prometheus.CounterVec
	restarts *prometheus.CounterVec
	ready    prometheus.Gauge
}

// New constructs Metrics and registers the collectors on reg. Registration
// errors panic, mirroring promauto, so that duplicate names surface early.
// Tests should pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_up",
			Help:      "Whether the supervised process is currently running (1) or not (0).",
		}, []string{"process"}),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_starts_total",
			Help:      "Number of times the process was started.",
		}, []string{"process"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Number of process exits by outcome.",
		}, []string{"process", "outcome"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Number of restarts scheduled for the process.",
		}, []string{"process"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "primary_ready",
			Help:      "Whether the primary server accepts connections on its port.",
		}),
	}

	reg.MustRegister(m.up, m.starts, m.exits, m.restarts, m.ready)
	return m
}

// ProcessStarted records a successful start.
func (m *Metrics) ProcessStarted(process string) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(process).Inc()
	m.up.WithLabelValues(process).Set(1)
}

// ProcessExited records an exit with the given outcome.
func (m *Metrics) ProcessExited(process, outcome string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(process, outcome).Inc()
	m.up.WithLabelValues(process).Set(0)
}

// RestartScheduled records a pending restart.
func (m *Metrics) RestartScheduled(process string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(process).Inc()
}

// SetReady records primary readiness.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.ready.Set(1)
	} else {
		m.ready.Set(0)
	}
}
