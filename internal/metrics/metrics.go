// Package metrics exposes Prometheus collectors for the discussion core.
// Each Metrics value owns its registry so tests and multiple controllers never collide.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadsync/pkg/types"
)

const namespace = "threadsync"

// Metrics groups every collector the core records.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived   prometheus.Counter
	duplicatesDropped  prometheus.Counter
	malformedDropped   *prometheus.CounterVec
	outboundEvents     *prometheus.CounterVec
	reconnectAttempts  prometheus.Counter
	rateLimited        prometheus.Counter
	connectionState    *prometheus.GaugeVec
	historyFetchTiming *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Live discussion messages received from the transport.",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_messages_total",
			Help:      "Live messages suppressed because their identity was already present.",
		}),
		malformedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound frames dropped because they could not be decoded or validated.",
		}, []string{"event"}),
		outboundEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_events_total",
			Help:      "Intents written to the transport, by wire event.",
		}, []string{"event"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Dial attempts after the first one.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_sends_total",
			Help:      "Outbound messages dropped by the send limiter.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current transport status, 0 for the others.",
		}, []string{"status"}),
		historyFetchTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_fetch_seconds",
			Help:      "Latency of thread history fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.messagesReceived,
		m.duplicatesDropped,
		m.malformedDropped,
		m.outboundEvents,
		m.reconnectAttempts,
		m.rateLimited,
		m.connectionState,
		m.historyFetchTiming,
	)
	m.ConnectionState(types.Disconnected())
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageReceived() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *Metrics) DuplicateDropped() {
	if m != nil {
		m.duplicatesDropped.Inc()
	}
}

func (m *Metrics) MalformedDropped(event string) {
	if m != nil {
		m.malformedDropped.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) OutboundEvent(event string) {
	if m != nil {
		m.outboundEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) ReconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

// ConnectionState marks state's status as the current one.
func (m *Metrics) ConnectionState(state types.ConnectionState) {
	if m == nil {
		return
	}
	current := state.Status
	if current == "" {
		current = types.StatusDisconnected
	}
	for _, s := range []types.Status{types.StatusConnecting, types.StatusConnected, types.StatusDisconnected, types.StatusErrored} {
		v := 0.0
		if s == current {
			v = 1
		}
		m.connectionState.WithLabelValues(string(s)).Set(v)
	}
}

// HistoryFetch records how long a fetch took. outcome is "ok", "not_found" or "error".
func (m *Metrics) HistoryFetch(outcome string, d time.Duration) {
	if m != nil {
		m.historyFetchTiming.WithLabelValues(outcome).Observe(d.Seconds())
	}
}
