package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Database metrics
	dbQueryDuration *prometheus.HistogramVec

	// Scheduling metrics
	availabilityQueries  *prometheus.CounterVec
	slotsOffered         *prometheus.HistogramVec
	bookingsTotal        *prometheus.CounterVec
	validationFailures   *prometheus.CounterVec
	scheduleReplacements *prometheus.CounterVec

	// System metrics
	systemErrors *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector with its own registry
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"query_type", "status", "service"},
		),
		availabilityQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_availability_queries_total",
				Help: "Total number of availability lookups by outcome",
			},
			[]string{"outcome", "service"},
		),
		slotsOffered: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scheduling_slots_offered",
				Help:    "Number of bookable slots returned per availability lookup",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"service"},
		),
		bookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_bookings_total",
				Help: "Total number of booking attempts by result code",
			},
			[]string{"result", "service"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_schedule_validation_failures_total",
				Help: "Total number of rejected weekly schedules by rule",
			},
			[]string{"rule", "service"},
		),
		scheduleReplacements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduling_schedule_replacements_total",
				Help: "Total number of doctor schedule replacements",
			},
			[]string{"success", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	// Register metrics
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dbQueryDuration,
		m.availabilityQueries,
		m.slotsOffered,
		m.bookingsTotal,
		m.validationFailures,
		m.scheduleReplacements,
		m.systemErrors,
	)

	return m
}

// Registry exposes the collector's registry
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics
func (m *MetricsCollector) RecordDBQuery(queryType string, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(queryType, status, m.serviceName).Observe(duration.Seconds())
}

// RecordAvailabilityQuery records the outcome of an availability lookup and the slots it offered
func (m *MetricsCollector) RecordAvailabilityQuery(outcome string, slots int) {
	m.availabilityQueries.WithLabelValues(outcome, m.serviceName).Inc()
	if outcome == "ok" {
		m.slotsOffered.WithLabelValues(m.serviceName).Observe(float64(slots))
	}
}

// RecordBooking records a booking attempt by result: booked, slot_full, invalid or failed
func (m *MetricsCollector) RecordBooking(result string) {
	m.bookingsTotal.WithLabelValues(result, m.serviceName).Inc()
}

// RecordValidationFailure records a rejected weekly schedule
func (m *MetricsCollector) RecordValidationFailure(rule string) {
	m.validationFailures.WithLabelValues(rule, m.serviceName).Inc()
}

// RecordScheduleReplacement records a schedule replacement attempt
func (m *MetricsCollector) RecordScheduleReplacement(success bool) {
	m.scheduleReplacements.WithLabelValues(strconv.FormatBool(success), m.serviceName).Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
