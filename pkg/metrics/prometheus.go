// Package metrics provides Prometheus metrics for the pitwall service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ordering
	collectionMutations   *prometheus.CounterVec
	reorderRetries        prometheus.Counter
	consistencyViolations *prometheus.CounterVec

	// Leaderboard
	leaderboardComputations prometheus.Counter
	leaderboardLatency      prometheus.Histogram
	leaderboardSize         prometheus.Histogram
	lapsRecorded            prometheus.Counter

	// Store
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record* helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitwall",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.collectionMutations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "collection_mutations_total",
		Help:        "Collection mutations by operation and outcome",
		ConstLabels: constLabels,
	}, []string{"op", "outcome"})

	m.reorderRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "reorder_retries_total",
		Help:        "Reorders retried after a transient store failure",
		ConstLabels: constLabels,
	})

	m.consistencyViolations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "consistency_violations_total",
		Help:        "Position invariant violations detected, by operation",
		ConstLabels: constLabels,
	}, []string{"op"})

	m.leaderboardComputations = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "leaderboard_computations_total",
		Help:        "Leaderboards computed from raw lap records",
		ConstLabels: constLabels,
	})

	m.leaderboardLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "leaderboard_latency_milliseconds",
		Help:        "Time to fetch and aggregate one leaderboard",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.leaderboardSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "leaderboard_records",
		Help:        "Lap records aggregated per leaderboard read",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		ConstLabels: constLabels,
	})

	m.lapsRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "laps_recorded_total",
		Help:        "Lap records persisted",
		ConstLabels: constLabels,
	})

	m.storeOpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_operation_latency_milliseconds",
		Help:        "Persistent store operation latency",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_errors_total",
		Help:        "Persistent store errors by operation and kind",
		ConstLabels: constLabels,
	}, []string{"op", "kind"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_type_total",
		Help:        "Errors by type and severity",
		ConstLabels: constLabels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_endpoint_total",
		Help:        "Errors by endpoint, method and type",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_time_milliseconds",
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// Enabled reports whether the manager records observations.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RecordCollectionMutation counts an append/remove/reorder/update by outcome.
func RecordCollectionMutation(op, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.collectionMutations.WithLabelValues(op, outcome).Inc()
}

// RecordReorderRetry increments the reorder retry counter.
func RecordReorderRetry() {
	if !globalManager.enabled {
		return
	}
	globalManager.reorderRetries.Inc()
}

// RecordConsistencyViolation counts a detected position invariant violation.
func RecordConsistencyViolation(op string) {
	if !globalManager.enabled {
		return
	}
	globalManager.consistencyViolations.WithLabelValues(op).Inc()
}

// RecordLeaderboardComputation observes one leaderboard aggregation.
func RecordLeaderboardComputation(records int, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.leaderboardComputations.Inc()
	globalManager.leaderboardLatency.Observe(latencyMs)
	globalManager.leaderboardSize.Observe(float64(records))
}

// RecordLapRecorded increments the laps recorded counter.
func RecordLapRecorded() {
	if !globalManager.enabled {
		return
	}
	globalManager.lapsRecorded.Inc()
}

// RecordStoreOperation observes store latency and, on failure, the error kind.
func RecordStoreOperation(op string, latencyMs float64, errKind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
	if errKind != "" {
		globalManager.storeErrors.WithLabelValues(op, errKind).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
