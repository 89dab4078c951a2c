package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	ticketsIssued   prometheus.Counter
	broadcastDrops  *prometheus.CounterVec
	storeFallbacks  *prometheus.CounterVec
	pushConnections prometheus.Gauge
}

// NewMetrics initializes collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanquery_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loanquery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanquery_http_errors_total",
			Help: "HTTP errors by domain code",
		}, []string{"method", "path", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanquery_transitions_total",
			Help: "Applied lifecycle transitions",
		}, []string{"from", "to"}),
		ticketsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "loanquery_approval_tickets_issued_total",
			Help: "Approval ticket ids issued",
		}),
		broadcastDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanquery_broadcast_failures_total",
			Help: "Update events a subscriber did not receive",
		}, []string{"topic", "reason"}),
		storeFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loanquery_store_fallbacks_total",
			Help: "Durable store calls that fell back to memory",
		}, []string{"op"}),
		pushConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loanquery_push_connections",
			Help: "Open websocket push connections",
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordTransition counts a sub-query status change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordTicketIssued counts a new approval ticket id.
func (m *Metrics) RecordTicketIssued() {
	if m == nil {
		return
	}
	m.ticketsIssued.Inc()
}

// RecordBroadcastFailure counts an undelivered event.
func (m *Metrics) RecordBroadcastFailure(topic, reason string) {
	if m == nil {
		return
	}
	m.broadcastDrops.WithLabelValues(topic, reason).Inc()
}

// RecordStoreFallback counts a store call served from memory.
func (m *Metrics) RecordStoreFallback(op string) {
	if m == nil {
		return
	}
	m.storeFallbacks.WithLabelValues(op).Inc()
}

// PushConnected adjusts the open push connection gauge.
func (m *Metrics) PushConnected(delta int) {
	if m == nil {
		return
	}
	m.pushConnections.Add(float64(delta))
}
