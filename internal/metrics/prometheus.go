package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for our service
type Metrics struct {
	// Request counters
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Engine metrics
	EndpointRequests  *prometheus.CounterVec
	EndpointDuration  *prometheus.HistogramVec
	StatusTransitions *prometheus.CounterVec
	PreviewWarnings   prometheus.Counter
	MessagesResolved  *prometheus.CounterVec
	DispatchErrors    *prometheus.CounterVec
	DatabaseQueries   *prometheus.CounterVec
	DatabaseErrors    *prometheus.CounterVec

	// Health check metrics
	HealthCheckStatus *prometheus.GaugeVec
}

// NewPrometheusMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		// HTTP request metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailbeacon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailbeacon_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),

		EndpointRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_endpoint_requests_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		EndpointDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailbeacon_endpoint_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_campaign_status_transitions_total",
				Help: "Total number of campaign status transitions",
			},
			[]string{"action", "to"},
		),

		PreviewWarnings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailbeacon_preview_warnings_total",
				Help: "Total number of render warnings reported by previews",
			},
		),

		MessagesResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_delivery_messages_total",
				Help: "Total number of messages handed to the mail transport",
			},
			[]string{"backend"},
		),

		DispatchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_delivery_dispatch_errors_total",
				Help: "Total number of failed work token or signal hand-offs",
			},
			[]string{"backend", "kind"},
		),

		DatabaseQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table"},
		),

		DatabaseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailbeacon_database_errors_total",
				Help: "Total number of database errors",
			},
			[]string{"operation", "error_type"},
		),

		// Health check metrics
		HealthCheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailbeacon_health_check_status",
				Help: "Health check status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"check_type"},
		),
	}

	return metrics
}

// RecordHTTPRequest records an HTTP request with its duration and status
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordEndpoint records one engine operation
func (m *Metrics) RecordEndpoint(endpoint, outcome string, duration float64) {
	m.EndpointRequests.WithLabelValues(endpoint, outcome).Inc()
	m.EndpointDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordTransition records a campaign moving to a new status
func (m *Metrics) RecordTransition(action, to string) {
	m.StatusTransitions.WithLabelValues(action, to).Inc()
}

// RecordPreviewWarnings adds render warnings from a preview
func (m *Metrics) RecordPreviewWarnings(count int) {
	m.PreviewWarnings.Add(float64(count))
}

// RecordMessages records messages resolved by a delivery backend
func (m *Metrics) RecordMessages(backend string, count int) {
	m.MessagesResolved.WithLabelValues(backend).Add(float64(count))
}

// RecordDispatchError records a failed hand-off to the delivery subsystem
func (m *Metrics) RecordDispatchError(backend, kind string) {
	m.DispatchErrors.WithLabelValues(backend, kind).Inc()
}

// RecordDatabaseQuery records a database query
func (m *Metrics) RecordDatabaseQuery(operation, table string) {
	m.DatabaseQueries.WithLabelValues(operation, table).Inc()
}

// RecordDatabaseError records a database error
func (m *Metrics) RecordDatabaseError(operation, errorType string) {
	m.DatabaseErrors.WithLabelValues(operation, errorType).Inc()
}

// SetHealthCheckStatus sets the health check status
func (m *Metrics) SetHealthCheckStatus(checkType string, healthy bool) {
	status := 0.0
	if healthy {
		status = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(checkType).Set(status)
}

// IncRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncRequestsInFlight(method, endpoint string) {
	m.HTTPRequestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecRequestsInFlight(method, endpoint string) {
	m.HTTPRequestsInFlight.WithLabelValues(method, endpoint).Dec()
}
