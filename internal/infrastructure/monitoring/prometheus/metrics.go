package prometheus

import (
	"strconv"
	"time"

	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// AppMetrics holds all application metrics. A nil *AppMetrics is valid and
// records nothing, so callers never need to guard.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Settlement
	OperationsTotal    CounterVec
	OperationDuration  HistogramVec
	DemurrageAmount    CounterVec
	OverdueMissions    GaugeVec
	NotificationsTotal CounterVec
	LockContention     CounterVec
	ExportsTotal       CounterVec

	// Auth
	LoginAttemptsTotal CounterVec

	// Infrastructure
	DBConnectionsOpen  GaugeVec
	DBConnectionsInUse GaugeVec
	EventsPublished    CounterVec
	ErrorsTotal        CounterVec
}

var (
	DefaultHTTPDurationBuckets      = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultOperationDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")

	m.OperationsTotal = collector.RegisterCounter("settlement_operations_total", "Settlement operations by outcome", "operation", "result")
	m.OperationDuration = collector.RegisterHistogram("settlement_operation_duration_seconds", "Settlement operation duration", DefaultOperationDurationBuckets, "operation")
	m.DemurrageAmount = collector.RegisterCounter("demurrage_amount_fcfa_total", "Demurrage charged, FCFA", "source")
	m.OverdueMissions = collector.RegisterGauge("overdue_missions", "Missions past their return deadline at the last scan")
	m.NotificationsTotal = collector.RegisterCounter("notifications_total", "Notifications emitted", "type")
	m.LockContention = collector.RegisterCounter("lock_contention_total", "Resource locks not obtained", "resource")
	m.ExportsTotal = collector.RegisterCounter("exports_total", "Settlement exports generated", "result")

	m.LoginAttemptsTotal = collector.RegisterCounter("login_attempts_total", "Login attempts", "result")

	m.DBConnectionsOpen = collector.RegisterGauge("db_connections_open", "Open database connections")
	m.DBConnectionsInUse = collector.RegisterGauge("db_connections_in_use", "Database connections in use")
	m.EventsPublished = collector.RegisterCounter("events_published_total", "Kafka records published", "topic", "result")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.IsValidation(err) || apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition):
		return "rejected"
	case apperrors.IsConflict(err):
		return "conflict"
	case apperrors.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight(m *AppMetrics, method string) func() {
	if m == nil {
		return func() {}
	}
	g := m.HTTPActiveRequests.WithLabelValues(method)
	g.Inc()
	return g.Dec
}

// OperationTimer times one settlement operation. The zero value and a timer
// started on nil metrics record nothing.
type OperationTimer struct {
	m         *AppMetrics
	operation string
	timer     *Timer
}

// StartOperation starts timing operation; Stop records its outcome.
func StartOperation(m *AppMetrics, operation string) *OperationTimer {
	t := &OperationTimer{m: m, operation: operation}
	if m != nil {
		t.timer = NewTimer(m.OperationDuration.WithLabelValues(operation))
	}
	return t
}

// Stop counts the operation by outcome and observes its duration.
func (t *OperationTimer) Stop(err error) {
	if t.m == nil {
		return
	}
	t.timer.ObserveDuration()
	result := resultLabel(err)
	t.m.OperationsTotal.WithLabelValues(t.operation, result).Inc()
	if result == "error" {
		t.m.ErrorsTotal.WithLabelValues("settlement", string(apperrors.GetCode(err))).Inc()
	}
}

// RecordDemurrage adds amount FCFA of demurrage from source
// ("arrival", "unloading", "termination").
func RecordDemurrage(m *AppMetrics, source string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.DemurrageAmount.WithLabelValues(source).Add(amount)
}

func SetOverdueMissions(m *AppMetrics, n int) {
	if m == nil {
		return
	}
	m.OverdueMissions.WithLabelValues().Set(float64(n))
}

func RecordNotification(m *AppMetrics, notificationType string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(notificationType).Inc()
}

func RecordLockContention(m *AppMetrics, resource string) {
	if m == nil {
		return
	}
	m.LockContention.WithLabelValues(resource).Inc()
}

func RecordExport(m *AppMetrics, err error) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordLogin counts a login attempt; result is "success", "failure" or
// "throttled".
func RecordLogin(m *AppMetrics, result string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(result).Inc()
}

func RecordPublish(m *AppMetrics, topic string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(topic, resultLabel(err)).Inc()
}

// SetDBPool reports connection pool occupancy.
func SetDBPool(m *AppMetrics, open, inUse int) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.WithLabelValues().Set(float64(open))
	m.DBConnectionsInUse.WithLabelValues().Set(float64(inUse))
}
