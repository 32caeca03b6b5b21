// Package metrics provides Prometheus metrics for the ranking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Sync pipeline
	syncEvents          *prometheus.CounterVec
	syncLatency         prometheus.Histogram
	extractionFailures  *prometheus.CounterVec
	partitionMutations  *prometheus.CounterVec
	rollovers           *prometheus.CounterVec
	changesDuplicate    prometheus.Counter
	partitionsTotal     prometheus.Gauge
	rankedEntriesTotal  prometheus.Gauge
	partitionEntries    *prometheus.GaugeVec
	storeWarmups        *prometheus.CounterVec
	storeWarmupDuration prometheus.Histogram

	// Read path
	queryLatency     *prometheus.HistogramVec
	queryResults     *prometheus.CounterVec
	metadataDegraded *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec
	queueUtilization prometheus.Gauge

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	globalManager  *Manager                                //nolint:gochecknoglobals // singleton metrics manager
	customRegistry = prometheus.NewRegistry()              //nolint:gochecknoglobals // service registry
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000}
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skyrank",
		subsystem:        "engine",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.syncEvents = m.counterVec("sync_events_total",
		"Entity change events handled by the sync pipeline by result", "result")
	m.syncLatency = m.histogram("sync_latency_milliseconds",
		"Time to apply one entity change to every partition", m.histogramBuckets)
	m.extractionFailures = m.counterVec("extraction_failures_total",
		"Score extraction failures by leaderboard", "leaderboard")
	m.partitionMutations = m.counterVec("partition_mutations_total",
		"Ranked store mutations by operation", "op")
	m.rollovers = m.counterVec("rollovers_total",
		"Interval rollovers by result", "result")
	m.changesDuplicate = m.counter("changes_duplicate_total",
		"Entity change notifications dropped as duplicates")
	m.partitionsTotal = m.gauge("partitions",
		"Number of ranked store partitions")
	m.rankedEntriesTotal = m.gauge("ranked_entries",
		"Number of entries across all ranked store partitions")
	m.partitionEntries = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "leaderboard_entries", Help: "Entries per leaderboard across its partitions",
	}, []string{"leaderboard"})
	m.storeWarmups = m.counterVec("store_warmups_total",
		"Partitions repopulated from the relational store by result", "result")
	m.storeWarmupDuration = m.histogram("store_warmup_duration_milliseconds",
		"Time to repopulate one partition", []float64{1, 5, 25, 100, 500, 2500, 10000})

	m.queryLatency = m.histogramVec("query_latency_milliseconds",
		"Read latency by operation and backend", "op", "backend")
	m.queryResults = m.counterVec("query_results_total",
		"Read results by operation and outcome", "op", "outcome")
	m.metadataDegraded = m.counterVec("metadata_degraded_total",
		"Entries returned without presentation metadata", "op")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the change queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum change queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Changes enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Changes dequeued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Changes rejected by reason", "reason")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size / capacity")

	m.workerCount = m.gauge("worker_count", "Number of sync workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker time per change", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker processing errors")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Sync pipeline.

// RecordSyncEvent counts a handled change; result is applied, skipped or failed.
func RecordSyncEvent(result string) { globalManager.syncEvents.WithLabelValues(result).Inc() }

// RecordSyncLatency records how long one change took to apply.
func RecordSyncLatency(ms float64) { globalManager.syncLatency.Observe(ms) }

// RecordExtractionFailure counts a failed score extraction.
func RecordExtractionFailure(leaderboardID string) {
	globalManager.extractionFailures.WithLabelValues(leaderboardID).Inc()
}

// RecordPartitionMutation counts an upsert, remove or seed.
func RecordPartitionMutation(op string) { globalManager.partitionMutations.WithLabelValues(op).Inc() }

// RecordRollover counts a rollover attempt; result is rolled or noop.
func RecordRollover(result string) { globalManager.rollovers.WithLabelValues(result).Inc() }

// RecordChangeDuplicate counts a change dropped by the deduper.
func RecordChangeDuplicate() { globalManager.changesDuplicate.Inc() }

// UpdatePartitions sets the partition and entry gauges.
func UpdatePartitions(partitions, entries int) {
	globalManager.partitionsTotal.Set(float64(partitions))
	globalManager.rankedEntriesTotal.Set(float64(entries))
}

// UpdateLeaderboardEntries sets the entry gauge for one leaderboard.
func UpdateLeaderboardEntries(leaderboardID string, entries int) {
	globalManager.partitionEntries.WithLabelValues(leaderboardID).Set(float64(entries))
}

// RecordStoreWarmup records a partition warm-up.
func RecordStoreWarmup(result string, ms float64) {
	globalManager.storeWarmups.WithLabelValues(result).Inc()
	globalManager.storeWarmupDuration.Observe(ms)
}

// Read path.

// RecordQueryLatency records read latency for op served by backend.
func RecordQueryLatency(op, backend string, ms float64) {
	globalManager.queryLatency.WithLabelValues(op, backend).Observe(ms)
}

// RecordQueryResult counts a read outcome (ok, not_found, invalid, unavailable).
func RecordQueryResult(op, outcome string) {
	globalManager.queryResults.WithLabelValues(op, outcome).Inc()
}

// RecordMetadataDegraded counts entries served without metadata.
func RecordMetadataDegraded(op string, n int) {
	globalManager.metadataDegraded.WithLabelValues(op).Add(float64(n))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// Queue.

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a rejected enqueue (closed, full, cancelled).
func RecordQueueRejected(reason string) { globalManager.queueRejected.WithLabelValues(reason).Inc() }

// Workers.

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerProcessingLatency.Observe(ms) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPauseTime.Observe(ms) }

// GetRegistry returns the registry backing the package-level recorders.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
