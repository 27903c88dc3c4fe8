package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec

	// Aggregator metrics
	ScanDuration    *prometheus.HistogramVec
	ScanFailures    *prometheus.CounterVec
	PatientsScanned *prometheus.CounterVec

	// Reminder delivery metrics
	RemindersSent    *prometheus.CounterVec
	ReminderDuration prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics on the default registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer), namespace, subsystem)
}

// NewWithRegistry registers metrics on reg. Tests pass a fresh registry so
// constructors can run more than once per process.
func NewWithRegistry(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	return newMetrics(promauto.With(reg), namespace, subsystem)
}

func newMetrics(f promauto.Factory, namespace, subsystem string) *Metrics {
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP responses with status >= 400",
		}, []string{"method", "path", "status"}),

		ScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of reminder aggregation scans",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		ScanFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aggregation_failures_total",
			Help:      "Total number of failed or partial aggregation scans",
		}, []string{"operation", "kind"}),
		PatientsScanned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aggregation_patients_scanned_total",
			Help:      "Total number of patients scanned by aggregations",
		}, []string{"operation"}),

		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_sent_total",
			Help:      "Total number of reminder notifications by channel and outcome",
		}, []string{"channel", "outcome"}),
		ReminderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminder_run_duration_seconds",
			Help:      "Duration of a full reminder worker run",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// Nop returns metrics registered on a throwaway registry.
func Nop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), "", "")
}
