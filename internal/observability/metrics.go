package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the request service.
// Metrics are organized by subsystem: request flows, submissions, backend
// calls, availability lookups, and email delivery. All counters and
// histograms are registered via promauto for automatic registration with
// the default Prometheus registry.
type Metrics struct {
	// RequestsTotal counts request flows, labeled by service key and outcome
	// (form, redirect, confirm, denied, error).
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes end-to-end request flow duration in seconds,
	// labeled by service key.
	RequestDuration *prometheus.HistogramVec

	// EligibilityDenied counts requests denied by an eligibility gate,
	// labeled by service key and gate (patron, bib).
	EligibilityDenied *prometheus.CounterVec

	// SubmissionsTotal counts form submissions, labeled by service key.
	SubmissionsTotal *prometheus.CounterVec

	// SubmissionsFailed counts submissions that failed, labeled by service
	// key and error type.
	SubmissionsFailed *prometheus.CounterVec

	// BackendRequestsTotal counts calls to external systems, labeled by
	// backend (folio, scsb, caiasoft, clio) and operation.
	BackendRequestsTotal *prometheus.CounterVec

	// BackendRequestsFailed counts failed backend calls, labeled by backend,
	// operation, and error type.
	BackendRequestsFailed *prometheus.CounterVec

	// BackendRequestDuration observes backend call duration in seconds,
	// labeled by backend.
	BackendRequestDuration *prometheus.HistogramVec

	// AvailabilityLookups counts item availability resolutions, labeled by
	// backend that served the item statuses.
	AvailabilityLookups *prometheus.CounterVec

	// AvailabilityItems observes the distribution of item counts per
	// availability resolution.
	AvailabilityItems prometheus.Histogram

	// EmailsSent counts notification emails delivered, labeled by recipient
	// kind (staff, patron).
	EmailsSent *prometheus.CounterVec

	// EmailsFailed counts notification emails that could not be delivered.
	EmailsFailed prometheus.Counter

	// AuditWritesFailed counts request log writes that failed.
	AuditWritesFailed prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Request flows
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of request flows by service and outcome",
		}, []string{"service", "outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request flow duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		EligibilityDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_denied_total",
			Help:      "Total number of requests denied by an eligibility gate",
		}, []string{"service", "gate"}),

		// Submissions
		SubmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of form submissions by service",
		}, []string{"service"}),
		SubmissionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_failed_total",
			Help:      "Total number of failed form submissions",
		}, []string{"service", "error_type"}),

		// Backend calls
		BackendRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of calls to external backends",
		}, []string{"backend", "operation"}),
		BackendRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_failed_total",
			Help:      "Total number of failed calls to external backends",
		}, []string{"backend", "operation", "error_type"}),
		BackendRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "External backend call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend"}),

		// Availability
		AvailabilityLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_lookups_total",
			Help:      "Total number of item availability resolutions by backend",
		}, []string{"backend"}),
		AvailabilityItems: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_items",
			Help:      "Distribution of item counts per availability resolution",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		// Email delivery
		EmailsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of notification emails sent by recipient kind",
		}, []string{"kind"}),
		EmailsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of notification emails that failed to send",
		}),

		// Audit log
		AuditWritesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_failed_total",
			Help:      "Total number of request log writes that failed",
		}),
	}
}

// RecordRequest records a completed request flow with its outcome.
func (m *Metrics) RecordRequest(service, outcome string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(durationSeconds)
}

// RecordEligibilityDenied records a request turned away by an eligibility gate.
func (m *Metrics) RecordEligibilityDenied(service, gate string) {
	m.EligibilityDenied.WithLabelValues(service, gate).Inc()
}

// RecordSubmission records a successful form submission.
func (m *Metrics) RecordSubmission(service string) {
	m.SubmissionsTotal.WithLabelValues(service).Inc()
}

// RecordSubmissionFailed records a form submission that failed.
func (m *Metrics) RecordSubmissionFailed(service, errorType string) {
	m.SubmissionsFailed.WithLabelValues(service, errorType).Inc()
}

// RecordBackendRequest records a call to an external backend.
func (m *Metrics) RecordBackendRequest(backend, operation string, durationSeconds float64) {
	m.BackendRequestsTotal.WithLabelValues(backend, operation).Inc()
	m.BackendRequestDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordBackendRequestFailed records a failed call to an external backend.
func (m *Metrics) RecordBackendRequestFailed(backend, operation, errorType string) {
	m.BackendRequestsFailed.WithLabelValues(backend, operation, errorType).Inc()
}

// RecordAvailabilityLookup records one availability resolution.
func (m *Metrics) RecordAvailabilityLookup(backend string, itemCount int) {
	m.AvailabilityLookups.WithLabelValues(backend).Inc()
	m.AvailabilityItems.Observe(float64(itemCount))
}

// RecordEmailSent records a delivered notification email.
func (m *Metrics) RecordEmailSent(kind string) {
	m.EmailsSent.WithLabelValues(kind).Inc()
}

// RecordEmailFailed records a notification email that could not be sent.
func (m *Metrics) RecordEmailFailed() {
	m.EmailsFailed.Inc()
}

// RecordAuditWriteFailed records a request log write failure.
func (m *Metrics) RecordAuditWriteFailed() {
	m.AuditWritesFailed.Inc()
}
