// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks console gateway request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "Console gateway request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total console gateway requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_requests_total",
			Help: "Total console gateway requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendRequestDuration tracks outbound backend request duration.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	// BackendRequestsTotal tracks total outbound backend requests.
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Total backend requests",
		},
		[]string{"operation", "status"},
	)

	// BackendRetriesTotal tracks automatic retries of backend requests.
	BackendRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_retries_total",
			Help: "Automatic retries of backend requests",
		},
		[]string{"operation"},
	)

	// StaleResponsesDiscarded tracks history responses dropped because a
	// newer request for the same thread was already issued.
	StaleResponsesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thread_stale_responses_discarded_total",
			Help: "History responses discarded as stale by the generation rule",
		},
	)

	// PendingMessages tracks optimistic messages awaiting server confirmation.
	PendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thread_pending_messages",
			Help: "Optimistic messages not yet confirmed by the server",
		},
	)

	// MessagesSentTotal tracks messages sent, by sender role.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Messages sent from the console",
		},
		[]string{"sender"},
	)

	// BookingsTotal tracks booking submissions by outcome.
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking submissions by outcome",
		},
		[]string{"outcome"},
	)

	// OtpVerificationsTotal tracks OTP verification outcomes.
	OtpVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SuggestionsConsumedTotal tracks suggestions marked used.
	SuggestionsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "suggestions_consumed_total",
			Help: "Bot suggestions marked used by an agent",
		},
	)
)

// RecordRequest records metrics for a console gateway request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendRequest records metrics for one backend request attempt.
func RecordBackendRequest(operation, status string, duration float64) {
	BackendRequestDuration.WithLabelValues(operation, status).Observe(duration)
	BackendRequestsTotal.WithLabelValues(operation, status).Inc()
}
