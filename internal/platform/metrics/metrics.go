package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_transitions_total",
		Help: "Session state transitions by target state and origin",
	}, []string{"state", "origin"})

	sessionVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_verifications_total",
		Help: "Start-up token verifications by outcome",
	}, []string{"outcome"})

	remoteLogoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_session_remote_logout_failures_total",
		Help: "Remote logout calls that failed after local cleanup",
	})

	externalChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_session_external_changes_total",
		Help: "Token store mutations observed from other contexts",
	})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_api_request_duration_seconds",
		Help:    "Latency of remote API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	storeOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_token_store_op_duration_ms",
		Help:    "Latency of token store operations in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
	}, []string{"backend", "op"})
)

// Verification outcomes.
const (
	OutcomeValid    = "valid"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition records a state change of a session manager.
func ObserveTransition(state, origin string) {
	sessionTransitions.WithLabelValues(state, origin).Inc()
}

// ObserveVerification records the outcome of a start-up verification.
func ObserveVerification(outcome string) {
	sessionVerifications.WithLabelValues(outcome).Inc()
}

// IncRemoteLogoutFailure counts a best-effort remote logout that failed.
func IncRemoteLogoutFailure() {
	remoteLogoutFailures.Inc()
}

// IncExternalChange counts a cross-context store notification.
func IncExternalChange() {
	externalChanges.Inc()
}

// ObserveAPIRequest records latency of an API call; status 0 means no response.
func ObserveAPIRequest(operation string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestDuration.WithLabelValues(operation, label).Observe(time.Since(start).Seconds())
}

// ObserveStoreOp records latency of a token store operation.
func ObserveStoreOp(backend, op string, start time.Time) {
	storeOpDurationMs.WithLabelValues(backend, op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
