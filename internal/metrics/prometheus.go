package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the gateway.
// Every Record/Update method is a no-op on a nil receiver.
type PrometheusMetrics struct {
	// Contract state metrics
	StorageReadsTotal   *prometheus.CounterVec
	StorageReadDuration *prometheus.HistogramVec
	WatchListLength     prometheus.Gauge

	// Transaction metrics
	TransactionsSubmittedTotal *prometheus.CounterVec
	TransactionsAcceptedTotal  *prometheus.CounterVec
	AddressDecodeErrorsTotal   *prometheus.CounterVec

	// Owner updater metrics
	PollerRunsTotal     *prometheus.CounterVec
	RecordsUpdatedTotal prometheus.Counter

	// Connection and error metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		StorageReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_storage_reads_total",
				Help: "Total number of contract storage words read",
			},
			[]string{"operation", "status"},
		),

		StorageReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinwatch_storage_read_duration_seconds",
				Help:    "Duration of contract storage reads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		WatchListLength: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinwatch_watch_list_length",
				Help: "Watch list length reported by the contract on the last read",
			},
		),

		TransactionsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_transactions_submitted_total",
				Help: "Total number of contract transactions submitted",
			},
			[]string{"command", "status"},
		),

		TransactionsAcceptedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_transactions_accepted_total",
				Help: "Total number of contract transactions accepted by the node",
			},
			[]string{"command"},
		),

		AddressDecodeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_address_decode_errors_total",
				Help: "Total number of rejected cryptocurrency addresses",
			},
			[]string{"operation"},
		),

		PollerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_poller_runs_total",
				Help: "Total number of owner updater runs",
			},
			[]string{"status"},
		),

		RecordsUpdatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coinwatch_records_updated_total",
				Help: "Total number of address records refreshed by the owner updater",
			},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_connection_errors_total",
				Help: "Total number of connection errors to Ethereum nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_rpc_requests_total",
				Help: "Total number of RPC requests made to Ethereum nodes",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinwatch_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to Ethereum nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_database_operations_total",
				Help: "Total number of journal database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinwatch_database_operation_duration_seconds",
				Help:    "Duration of journal database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "level"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "level"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinwatch_notification_duration_seconds",
				Help:    "Duration of notification delivery",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinwatch_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinwatch_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinwatch_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinwatch_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinwatch_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coinwatch_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordStorageRead records a contract storage read
func (m *PrometheusMetrics) RecordStorageRead(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StorageReadsTotal.WithLabelValues(operation, status).Inc()
	m.StorageReadDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateWatchListLength updates the watch list length gauge
func (m *PrometheusMetrics) UpdateWatchListLength(length uint64) {
	if m == nil {
		return
	}
	m.WatchListLength.Set(float64(length))
}

// RecordTransactionSubmitted records a submitted contract transaction
func (m *PrometheusMetrics) RecordTransactionSubmitted(command, status string) {
	if m == nil {
		return
	}
	m.TransactionsSubmittedTotal.WithLabelValues(command, status).Inc()
}

// RecordTransactionAccepted records a transaction accepted by the node
func (m *PrometheusMetrics) RecordTransactionAccepted(command string) {
	if m == nil {
		return
	}
	m.TransactionsAcceptedTotal.WithLabelValues(command).Inc()
}

// RecordAddressDecodeError records a rejected address
func (m *PrometheusMetrics) RecordAddressDecodeError(operation string) {
	if m == nil {
		return
	}
	m.AddressDecodeErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordPollerRun records an owner updater run
func (m *PrometheusMetrics) RecordPollerRun(status string, updated int) {
	if m == nil {
		return
	}
	m.PollerRunsTotal.WithLabelValues(status).Inc()
	m.RecordsUpdatedTotal.Add(float64(updated))
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	if m == nil {
		return
	}
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, level string, duration time.Duration) {
	if m == nil {
		return
	}
	m.NotificationsSentTotal.WithLabelValues(channel, level).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, level string) {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.WithLabelValues(channel, level).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	if m == nil {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	if m == nil {
		return
	}
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	if m == nil {
		return
	}
	m.GoroutineCount.Set(float64(count))
}
