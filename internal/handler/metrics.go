package handler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dispatchlab/notification-service/internal/worker"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	notificationsAccepted *prometheus.CounterVec
	notificationsRejected *prometheus.CounterVec
	attemptsProcessed     *prometheus.CounterVec
	attemptDuration       *prometheus.HistogramVec
	websocketConnections  prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsAccepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_accepted_total",
				Help: "Total number of notifications accepted for dispatch",
			},
			[]string{"channel"},
		),
		notificationsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_rejected_total",
				Help: "Total number of submissions rejected before persistence",
			},
			[]string{"channel", "reason"},
		),
		attemptsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_attempts_total",
				Help: "Total number of delivery attempts by outcome",
			},
			[]string{"channel", "outcome"},
		),
		attemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_attempt_duration_seconds",
				Help:    "Delivery attempt duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"channel"},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections",
				Help: "Current number of live websocket connections",
			},
		),
	}
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAccepted records an accepted submission
func (m *Metrics) RecordAccepted(channel string) {
	m.notificationsAccepted.WithLabelValues(channel).Inc()
}

// RecordRejected records a rejected submission
func (m *Metrics) RecordRejected(channel, reason string) {
	m.notificationsRejected.WithLabelValues(channel, reason).Inc()
}

// SetWebsocketConnections sets the live connection gauge
func (m *Metrics) SetWebsocketConnections(n float64) {
	m.websocketConnections.Set(n)
}

// WorkerHooks exposes the attempt metrics to the consumer pools.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		Processed: func(channel, outcome string) {
			m.attemptsProcessed.WithLabelValues(channel, outcome).Inc()
		},
		Duration: func(channel string, seconds float64) {
			m.attemptDuration.WithLabelValues(channel).Observe(seconds)
		},
	}
}

// MetricsHandler handles the metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handler returns the Prometheus HTTP handler
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}
