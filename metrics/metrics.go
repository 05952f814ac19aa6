// Package metrics holds the Prometheus collectors of the client library.
//
// Collectors are registered on the Registerer passed to New, never on the global
// default registry, so several drones in one process do not collide. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "drone_rpc"

// Metrics holds the client collectors. A nil *Metrics records nothing.
type Metrics struct {
	openCalls       prometheus.Gauge
	calls           *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	resubscriptions *prometheus.CounterVec
	listeners       *prometheus.GaugeVec
	dispatchPanics  prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		openCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "open_calls",
			Help:      "Unary and streaming calls currently in flight on a channel",
		}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "calls_total",
			Help:      "Calls issued on a channel, by method and call type",
		}, []string{"method", "type"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "outcomes_total",
			Help:      "Classified call outcomes, by method and kind",
		}, []string{"method", "kind"}),
		resubscriptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "resubscriptions_total",
			Help:      "Streaming calls reopened after an infrastructure failure",
		}, []string{"method"}),
		listeners: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "stream_listeners",
			Help:      "Listeners attached to a multicast stream",
		}, []string{"method"}),
		dispatchPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "dispatch_panics_total",
			Help:      "Listener or future callbacks that panicked on the worker pool",
		}),
	}
}

func (m *Metrics) CallOpened(method, typ string) {
	if m == nil {
		return
	}
	m.openCalls.Inc()
	m.calls.WithLabelValues(method, typ).Inc()
}

func (m *Metrics) CallClosed() {
	if m == nil {
		return
	}
	m.openCalls.Dec()
}

func (m *Metrics) Outcome(method, kind string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(method, kind).Inc()
}

func (m *Metrics) Resubscribed(method string) {
	if m == nil {
		return
	}
	m.resubscriptions.WithLabelValues(method).Inc()
}

func (m *Metrics) Listeners(method string, n int) {
	if m == nil {
		return
	}
	m.listeners.WithLabelValues(method).Set(float64(n))
}

func (m *Metrics) DispatchPanicked() {
	if m == nil {
		return
	}
	m.dispatchPanics.Inc()
}
