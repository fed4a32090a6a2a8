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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	appointmentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_created_total",
			Help: "Total number of appointments created",
		},
		[]string{"status", "assignment"},
	)

	appointmentsStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_status_changed_total",
			Help: "Total number of appointment status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	bookingConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Total number of bookings rejected for overlap",
		},
		[]string{"entity"},
	)

	autoAssignmentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_assignment_outcomes_total",
			Help: "Total number of auto-assignment runs by outcome",
		},
		[]string{"outcome"},
	)

	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_access_decisions_total",
			Help: "Total number of patient-access policy decisions",
		},
		[]string{"basis", "decision"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications processed",
		},
		[]string{"channel", "status"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath caps path cardinality for metrics labels
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordAppointmentCreated records a booking; assignment is "explicit",
// "auto" or "unassigned".
func RecordAppointmentCreated(status, assignment string) {
	appointmentsCreated.WithLabelValues(status, assignment).Inc()
}

// RecordStatusChange records an appointment state transition
func RecordStatusChange(fromStatus, toStatus string) {
	appointmentsStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordBookingConflict records an overlap rejection for "doctor" or "patient"
func RecordBookingConflict(entity string) {
	bookingConflicts.WithLabelValues(entity).Inc()
}

// RecordAutoAssignment records an auto-assignment outcome:
// "assigned", "suggestion", "pending"
func RecordAutoAssignment(outcome string) {
	autoAssignmentOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAccessDecision records a patient-access policy decision together
// with the basis that granted it ("department", "referral", "treatment",
// "none")
func RecordAccessDecision(basis string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	accessDecisions.WithLabelValues(basis, decision).Inc()
}

// RecordNotification records a notification delivery attempt
func RecordNotification(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}
