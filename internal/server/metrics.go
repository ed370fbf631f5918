package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "filecloud"

// Metrics holds the Prometheus collectors updated by the server and its
// sessions. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsTotal   prometheus.Counter
	activeSessions  prometheus.Gauge
	messagesTotal   prometheus.Counter
	protocolErrors  *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	logoutWrites    *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	bytesSent       prometheus.Counter
	bindFailures    prometheus.Counter
	requestDuration prometheus.Histogram
}

// NewMetrics registers the server collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "sessions_total",
			Help:      "Total number of accepted client sessions",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of client sessions currently open",
		}),
		messagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "messages_total",
			Help:      "Total number of requests dispatched to protocol handlers",
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Protocol handler failures converted into error responses",
		}, []string{"kind"}),
		transportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "transport_errors_total",
			Help:      "Connection read and write failures",
		}, []string{"op"}),
		logoutWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "logout_writes_total",
			Help:      "Logged-in flag clears issued at session teardown",
		}, []string{"result"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "bytes_received_total",
			Help:      "Request bytes received after framing",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "bytes_sent_total",
			Help:      "Response bytes written to clients",
		}),
		bindFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "bind_failures_total",
			Help:      "Listener bind failures",
		}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in the protocol handler per request",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) request(received int, took time.Duration) {
	if m == nil {
		return
	}
	m.messagesTotal.Inc()
	m.bytesReceived.Add(float64(received))
	m.requestDuration.Observe(took.Seconds())
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) protocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) transportError(op string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) logoutWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.logoutWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) bindFailed() {
	if m == nil {
		return
	}
	m.bindFailures.Inc()
}
