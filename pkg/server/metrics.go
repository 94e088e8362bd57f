package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instrumentation. It is constructed
// once at startup and threaded through the command handlers, dispatcher, and
// heartbeat supervisor so each can record counts without any of them owning
// the registration logic.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	messagesDropped  *prometheus.CounterVec // label: policy
	activeSessions   prometheus.Gauge
	queueDepth       prometheus.Gauge
	sessionsCreated  prometheus.Counter
	sessionsEvicted  *prometheus.CounterVec // label: reason
	connectAttempts  *prometheus.CounterVec // label: outcome
}

// NewMetrics creates and registers a fresh set of metrics against their own
// registry — a private registry (rather than prometheus.DefaultRegisterer)
// so that running the server's test suite never collides with global state.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "messages_sent_total",
			Help:      "Messages successfully delivered to a recipient socket.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "messages_received_total",
			Help:      "SEND commands accepted from clients, regardless of eventual delivery outcome.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by the queue's policy.",
		}, []string{"policy"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wireline",
			Name:      "active_sessions",
			Help:      "Currently registered (authenticated) sessions.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wireline",
			Name:      "queue_depth",
			Help:      "Messages currently waiting in the routing queue.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "sessions_created_total",
			Help:      "Successful CONNECTs (sessions bound to a username), over any transport.",
		}),
		sessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wireline",
			Name:      "connect_attempts_total",
			Help:      "CONNECT attempts, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.messagesSent,
		m.messagesReceived,
		m.messagesDropped,
		m.activeSessions,
		m.queueDepth,
		m.sessionsCreated,
		m.sessionsEvicted,
		m.connectAttempts,
	)
	return m
}

// Handler returns an http.Handler exposing these metrics in the Prometheus
// text exposition format, for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
