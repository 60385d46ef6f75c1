// Package metrics provides Prometheus metrics for the vitals import and
// correlation service.
package metrics

import (
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Import pipeline
	importsTotal     *prometheus.CounterVec
	importRecords    *prometheus.CounterVec
	importRejections *prometheus.CounterVec
	importDuration   prometheus.Histogram
	pendingImports   prometheus.Gauge

	// Commit queue and committer
	commitsTotal        *prometheus.CounterVec
	commitLatency       prometheus.Histogram
	queueSize           prometheus.Gauge
	queueCapacity       prometheus.Gauge
	queueEnqueueErrors  *prometheus.CounterVec
	queueEnqueueTotal   prometheus.Counter
	queueDequeueTotal   prometheus.Counter
	committedSamples    prometheus.Counter
	skippedSamples      prometheus.Counter

	// Metric store
	storeSamples      *prometheus.GaugeVec
	storeSeries       prometheus.Gauge
	storeGeneration   prometheus.Gauge
	storeQueryLatency *prometheus.HistogramVec

	// Correlation
	insightsComputed   prometheus.Counter
	insightsDeclined   *prometheus.CounterVec
	correlationLatency prometheus.Histogram
	insightCacheHits   prometheus.Counter

	// Persistence
	persistenceOps     *prometheus.CounterVec
	persistenceLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewMetricsManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry, which GetRegistry then serves. Call it once at startup, before
// anything records.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewMetricsManager(append(slices.Clone(opts), WithPrometheusRegistry(reg))...)
	customRegistry = reg
}

// NewMetricsManager creates a metrics manager and registers its collectors.
func NewMetricsManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "vitals",
		subsystem:        "engine",
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

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.importsTotal = m.counterVec("imports_total", "Import runs by payload format and outcome", "format", "outcome")
	m.importRecords = m.counterVec("import_records_total", "Export records by import outcome", "outcome")
	m.importRejections = m.counterVec("import_rejections_total", "Rejected export records by reason", "reason")
	m.importDuration = m.histogram("import_duration_milliseconds", "Wall time of a full parse and validate run")
	m.pendingImports = m.gauge("pending_imports", "Imports parsed and waiting for commit")

	m.commitsTotal = m.counterVec("commits_total", "Commits applied to the metric store by outcome", "outcome")
	m.commitLatency = m.histogram("commit_latency_milliseconds", "Time from dequeue to snapshot swap")
	m.queueSize = m.gauge("commit_queue_size", "Batches waiting for the committer")
	m.queueCapacity = m.gauge("commit_queue_capacity", "Maximum batches the commit queue accepts")
	m.queueEnqueueErrors = m.counterVec("commit_queue_enqueue_errors_total", "Rejected enqueue attempts by cause", "cause")
	m.queueEnqueueTotal = m.counter("commit_queue_enqueued_total", "Batches accepted by the commit queue")
	m.queueDequeueTotal = m.counter("commit_queue_dequeued_total", "Batches handed to the committer")
	m.committedSamples = m.counter("committed_samples_total", "Samples inserted into the metric store")
	m.skippedSamples = m.counter("skipped_samples_total", "Samples skipped because the series already held their key")

	m.storeSamples = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("store_samples"),
		Help: "Samples held per metric series", ConstLabels: m.customLabels,
	}, []string{"metric"})
	m.storeSeries = m.gauge("store_series", "Number of metric series in the store")
	m.storeGeneration = m.gauge("store_generation", "Store generation; increments on every effective insert")
	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds", "Range and resample latency", "op")

	m.insightsComputed = m.counter("insights_computed_total", "Metric pairs that produced an insight")
	m.insightsDeclined = m.counterVec("insights_declined_total", "Metric pairs declined by reason", "reason")
	m.correlationLatency = m.histogram("correlation_latency_milliseconds", "Time to correlate one metric pair")
	m.insightCacheHits = m.counter("insight_cache_hits_total", "Insight queries answered from the generation cache")

	m.persistenceOps = m.counterVec("persistence_operations_total", "Snapshot backend operations", "backend", "op", "outcome")
	m.persistenceLatency = m.histogramVec("persistence_latency_milliseconds", "Snapshot backend latency", "backend", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause")
}

// Import pipeline.

// RecordImport counts one import run.
func RecordImport(format, outcome string, durationMs float64) {
	globalManager.importsTotal.WithLabelValues(format, outcome).Inc()
	globalManager.importDuration.Observe(durationMs)
}

// RecordImportRecords adds per-outcome record counts of a finished import.
func RecordImportRecords(accepted, rejected, duplicate int) {
	globalManager.importRecords.WithLabelValues("accepted").Add(float64(accepted))
	globalManager.importRecords.WithLabelValues("rejected").Add(float64(rejected))
	globalManager.importRecords.WithLabelValues("duplicate").Add(float64(duplicate))
}

// RecordImportRejection counts rejections for one reason.
func RecordImportRejection(reason string, n int) {
	globalManager.importRejections.WithLabelValues(reason).Add(float64(n))
}

// UpdatePendingImports sets the staged import count.
func UpdatePendingImports(n int) {
	globalManager.pendingImports.Set(float64(n))
}

// Commit queue and committer.

// RecordCommit counts one applied commit.
func RecordCommit(outcome string, latencyMs float64, inserted, skipped int) {
	globalManager.commitsTotal.WithLabelValues(outcome).Inc()
	globalManager.commitLatency.Observe(latencyMs)
	globalManager.committedSamples.Add(float64(inserted))
	globalManager.skippedSamples.Add(float64(skipped))
}

// UpdateQueueSize sets the commit queue backlog.
func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

// UpdateQueueCapacity sets the commit queue capacity.
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

// RecordQueueEnqueue counts an accepted batch.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue counts a batch handed to the committer.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(cause string) {
	globalManager.queueEnqueueErrors.WithLabelValues(cause).Inc()
}

// Metric store.

// UpdateStoreSeries sets the per-metric sample gauges and series count.
func UpdateStoreSeries(counts map[string]int, generation uint64) {
	for metric, n := range counts {
		globalManager.storeSamples.WithLabelValues(metric).Set(float64(n))
	}
	globalManager.storeSeries.Set(float64(len(counts)))
	globalManager.storeGeneration.Set(float64(generation))
}

// RecordStoreQuery records a range or resample latency.
func RecordStoreQuery(op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// Correlation.

// RecordInsight counts a pair that produced an insight.
func RecordInsight(latencyMs float64) {
	globalManager.insightsComputed.Inc()
	globalManager.correlationLatency.Observe(latencyMs)
}

// RecordInsightDeclined counts a pair declined for reason.
func RecordInsightDeclined(reason string, latencyMs float64) {
	globalManager.insightsDeclined.WithLabelValues(reason).Inc()
	globalManager.correlationLatency.Observe(latencyMs)
}

// RecordInsightCacheHit counts a cached insight answer.
func RecordInsightCacheHit() {
	globalManager.insightCacheHits.Inc()
}

// Persistence.

// RecordPersistence counts one backend operation.
func RecordPersistence(backend, op string, err error, latencyMs float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	globalManager.persistenceOps.WithLabelValues(backend, op, outcome).Inc()
	globalManager.persistenceLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// HTTP.

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap size in bytes.
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

// Enabled reports whether background gauge refreshers should run.
func Enabled() bool {
	return globalManager.enabled
}

// RefreshInterval returns the period of background gauge refreshers.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the registry served by /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Since returns milliseconds elapsed since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
