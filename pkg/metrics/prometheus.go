// Package metrics provides Prometheus metrics for the ecoquest service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the ecoquest service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Capture flow
	captures        *prometheus.CounterVec
	captureDuration prometheus.Histogram

	// Ledger
	awards          prometheus.Counter
	duplicateAwards prometheus.Counter
	badgeUnlocks    *prometheus.CounterVec
	totalPoints     prometheus.Gauge
	level           prometheus.Gauge

	// Remote sync
	remoteSync        *prometheus.CounterVec
	remoteSyncLatency prometheus.Histogram
	syncQueueSize     prometheus.Gauge
	syncQueueCapacity prometheus.Gauge
	syncWorkerCount   prometheus.Gauge

	// Location gate
	gateState        prometheus.Gauge
	distanceToTarget prometheus.Gauge
	locationValid    prometheus.Gauge
	locationFixes    prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ecoquest",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.captures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("captures_total"),
		Help:        "Capture attempts by final outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.captureDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("capture_duration_milliseconds"),
		Help:        "Capture flow duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.awards = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("awards_total"),
		Help:        "Point awards granted",
		ConstLabels: labels,
	})

	m.duplicateAwards = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("awards_duplicate_total"),
		Help:        "Award requests refused because the action was already completed",
		ConstLabels: labels,
	})

	m.badgeUnlocks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("badge_unlocks_total"),
		Help:        "Badges unlocked by name",
		ConstLabels: labels,
	}, []string{"badge"})

	m.totalPoints = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("total_points"),
		Help:        "Total points of the active profile",
		ConstLabels: labels,
	})

	m.level = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("level"),
		Help:        "Level of the active profile",
		ConstLabels: labels,
	})

	m.remoteSync = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("remote_sync_total"),
		Help:        "Remote profile store pushes by kind and result",
		ConstLabels: labels,
	}, []string{"kind", "result"})

	m.remoteSyncLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("remote_sync_latency_milliseconds"),
		Help:        "Remote profile store push latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.syncQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sync_queue_size"),
		Help:        "Pending remote sync jobs",
		ConstLabels: labels,
	})

	m.syncQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sync_queue_capacity"),
		Help:        "Capacity of the remote sync queue",
		ConstLabels: labels,
	})

	m.syncWorkerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sync_worker_count"),
		Help:        "Remote sync workers",
		ConstLabels: labels,
	})

	m.gateState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("location_gate_state"),
		Help:        "Location gate state (0 idle, 1 requesting permission, 2 initializing, 3 running, 4 stopped, 5 failed)",
		ConstLabels: labels,
	})

	m.distanceToTarget = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("location_distance_meters"),
		Help:        "Last computed distance between the device fix and the target",
		ConstLabels: labels,
	})

	m.locationValid = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("location_valid"),
		Help:        "1 when the last fix was inside the target radius",
		ConstLabels: labels,
	})

	m.locationFixes = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("location_fixes_total"),
		Help:        "Location samples evaluated by the gate",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_component_total"),
		Help:        "Errors by component and type",
		ConstLabels: labels,
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "HTTP errors by endpoint, method and type",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})
}

// RecordCapture counts a finished capture attempt.
func RecordCapture(outcome string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.captures.WithLabelValues(outcome).Inc()
	globalManager.captureDuration.Observe(durationMs)
}

// RecordAward increments the award counter.
func RecordAward() {
	if globalManager.enabled {
		globalManager.awards.Inc()
	}
}

// RecordDuplicateAward increments the refused-award counter.
func RecordDuplicateAward() {
	if globalManager.enabled {
		globalManager.duplicateAwards.Inc()
	}
}

// RecordBadgeUnlock counts a newly unlocked badge.
func RecordBadgeUnlock(badge string) {
	if globalManager.enabled {
		globalManager.badgeUnlocks.WithLabelValues(badge).Inc()
	}
}

// UpdateProfile publishes the active profile's points and level.
func UpdateProfile(totalPoints, level int) {
	if !globalManager.enabled {
		return
	}
	globalManager.totalPoints.Set(float64(totalPoints))
	globalManager.level.Set(float64(level))
}

// RecordRemoteSync counts a finished push to the remote profile store.
func RecordRemoteSync(kind, result string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.remoteSync.WithLabelValues(kind, result).Inc()
	globalManager.remoteSyncLatency.Observe(latencyMs)
}

// UpdateSyncQueueSize sets the number of pending sync jobs.
func UpdateSyncQueueSize(size int) {
	if globalManager.enabled {
		globalManager.syncQueueSize.Set(float64(size))
	}
}

// UpdateSyncQueueCapacity sets the sync queue capacity.
func UpdateSyncQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.syncQueueCapacity.Set(float64(capacity))
	}
}

// UpdateSyncWorkerCount sets the number of sync workers.
func UpdateSyncWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.syncWorkerCount.Set(float64(count))
	}
}

// UpdateGateState publishes the numeric location gate state.
func UpdateGateState(state int) {
	if globalManager.enabled {
		globalManager.gateState.Set(float64(state))
	}
}

// RecordLocationFix publishes the result of one gate evaluation.
func RecordLocationFix(distanceMeters float64, valid bool) {
	if !globalManager.enabled {
		return
	}
	globalManager.locationFixes.Inc()
	globalManager.distanceToTarget.Set(distanceMeters)
	if valid {
		globalManager.locationValid.Set(1)
	} else {
		globalManager.locationValid.Set(0)
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint records an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount updates the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the custom registry for serving metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns how often gauges should be refreshed by background jobs.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
