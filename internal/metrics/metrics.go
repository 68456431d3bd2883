// Package metrics exposes session and dispatch counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/wsgate/internal/protocol"
	"github.com/muurk/wsgate/internal/session"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "wsgate"

// Metrics holds the collectors. It implements session.Observer so sessions
// report into it directly.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions prometheus.Gauge
	transitions    *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
	dispatched     prometheus.Counter
	tickDuration   prometheus.Histogram
}

var _ session.Observer = (*Metrics)(nil)

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently open",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state",
		}, []string{"state"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames routed to a handler, by opcode",
		}, []string{"opcode"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped, by reason",
		}, []string{"reason"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages written, by opcode",
		}, []string{"opcode"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_received_total",
			Help:      "Payload bytes of routed inbound frames",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_sent_total",
			Help:      "Payload bytes of written outbound messages",
		}),
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handlers_dispatched_total",
			Help:      "Handler calls executed by the tick loop",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent draining dispatch queues per tick",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StateChanged tracks open sessions and counts transitions.
func (m *Metrics) StateChanged(from, to session.State) {
	m.transitions.WithLabelValues(to.String()).Inc()
	switch {
	case to == session.StateOpen:
		m.activeSessions.Inc()
	case from == session.StateOpen:
		m.activeSessions.Dec()
	}
}

// FrameReceived counts an accepted inbound frame and its payload bytes.
func (m *Metrics) FrameReceived(op protocol.Opcode, size int) {
	m.framesReceived.WithLabelValues(op.Name()).Inc()
	m.bytesReceived.Add(float64(size))
}

// FrameDropped counts an inbound frame discarded for reason.
func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// MessageSent counts an outbound message written to the socket.
func (m *Metrics) MessageSent(op protocol.Opcode, size int) {
	m.messagesSent.WithLabelValues(op.Name()).Inc()
	m.bytesSent.Add(float64(size))
}

// ObserveDrain records one HandleIncomingMessages pass.
func (m *Metrics) ObserveDrain(calls int, seconds float64) {
	m.dispatched.Add(float64(calls))
	m.tickDuration.Observe(seconds)
}
