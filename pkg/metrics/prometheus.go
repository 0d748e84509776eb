// Package metrics provides Prometheus metrics for the conjunction screening service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	missBuckets    []float64
	constLabels    map[string]string
	registry       prometheus.Registerer

	// Screening
	screeningPasses     *prometheus.CounterVec
	screeningDuration   prometheus.Histogram
	screeningCandidates prometheus.Counter
	encountersFound     prometheus.Counter
	missDistance        prometheus.Histogram
	propagationFailures *prometheus.CounterVec
	frameErrors         *prometheus.CounterVec
	pocMethod           *prometheus.CounterVec

	// Lifecycle
	eventsCreated  prometheus.Counter
	eventsUpdated  prometheus.Counter
	eventsRetired  prometheus.Counter
	updatesCreated prometheus.Counter
	changes        *prometheus.CounterVec
	activeEvents   *prometheus.GaugeVec

	// CDM ingestion
	cdmIngested  prometheus.Counter
	cdmRejected  *prometheus.CounterVec
	cdmDuplicate prometheus.Counter

	// Catalog
	catalogObjects *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "conjunct",
		subsystem:      "screening",
		latencyBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		missBuckets:    []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
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
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.latencyBuckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.screeningPasses = m.counterVec("passes_total", "Screening passes by outcome", "outcome")
	m.screeningDuration = m.histogram("pass_duration_milliseconds", "Duration of one satellite screening pass")
	m.screeningCandidates = m.counter("candidates_total", "Secondaries handed to the close-approach solver")
	m.encountersFound = m.counter("encounters_total", "Encounters found inside the screening volume")
	m.missDistance = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "miss_distance_kilometers", Help: "Miss distance at TCA of screened encounters",
		ConstLabels: m.constLabels, Buckets: m.missBuckets,
	})
	m.propagationFailures = m.counterVec("propagation_failures_total", "Probe times that could not be propagated", "propagator")
	m.frameErrors = m.counterVec("frame_errors_total", "Frame conversions that failed", "frame")
	m.pocMethod = m.counterVec("poc_total", "Probability of collision computations by method", "method")

	m.eventsCreated = m.counter("events_created_total", "Conjunction events created")
	m.eventsUpdated = m.counter("events_updated_total", "Existing conjunction events matched and updated")
	m.eventsRetired = m.counter("events_retired_total", "Events marked inactive because they were not reproduced")
	m.updatesCreated = m.counter("updates_created_total", "Event updates appended")
	m.changes = m.counterVec("changes_total", "Risk tier or confidence transitions", "source", "tier_to")
	m.activeEvents = m.gaugeVec("active_events", "Active events by risk tier", "tier")

	m.cdmIngested = m.counter("cdm_ingested_total", "CDMs attached to events")
	m.cdmRejected = m.counterVec("cdm_rejected_total", "CDMs rejected", "reason")
	m.cdmDuplicate = m.counter("cdm_duplicate_total", "Repeated CDM deliveries skipped")

	m.catalogObjects = m.gaugeVec("catalog_objects", "Catalog size by kind", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Current size of the CDM queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordScreeningPass records one satellite pass and its duration.
func RecordScreeningPass(outcome string, durationMs float64) {
	globalManager.screeningPasses.WithLabelValues(outcome).Inc()
	globalManager.screeningDuration.Observe(durationMs)
}

// RecordScreeningCandidate counts a secondary sent to the solver.
func RecordScreeningCandidate() {
	globalManager.screeningCandidates.Inc()
}

// RecordEncounter counts an encounter inside the screening volume.
func RecordEncounter(missKm float64) {
	globalManager.encountersFound.Inc()
	globalManager.missDistance.Observe(missKm)
}

// RecordPropagationFailure counts a skipped probe for a propagator kind.
func RecordPropagationFailure(propagator string) {
	globalManager.propagationFailures.WithLabelValues(propagator).Inc()
}

// RecordFrameError counts a failed conversion out of frame.
func RecordFrameError(frame string) {
	globalManager.frameErrors.WithLabelValues(frame).Inc()
}

// RecordPoC counts a PoC computed with method.
func RecordPoC(method string) {
	globalManager.pocMethod.WithLabelValues(method).Inc()
}

// RecordEventCreated increments the events created counter.
func RecordEventCreated() {
	globalManager.eventsCreated.Inc()
}

// RecordEventUpdated increments the events updated counter.
func RecordEventUpdated() {
	globalManager.eventsUpdated.Inc()
}

// RecordEventsRetired adds n retired events.
func RecordEventsRetired(n int) {
	globalManager.eventsRetired.Add(float64(n))
}

// RecordUpdateCreated increments the updates counter.
func RecordUpdateCreated() {
	globalManager.updatesCreated.Inc()
}

// RecordChange counts a tier or confidence transition.
func RecordChange(source, tierTo string) {
	globalManager.changes.WithLabelValues(source, tierTo).Inc()
}

// UpdateActiveEvents sets the active event count for a tier.
func UpdateActiveEvents(tier string, count int) {
	globalManager.activeEvents.WithLabelValues(tier).Set(float64(count))
}

// RecordCDMIngested increments the attached CDM counter.
func RecordCDMIngested() {
	globalManager.cdmIngested.Inc()
}

// RecordCDMRejected counts a rejected CDM by reason.
func RecordCDMRejected(reason string) {
	globalManager.cdmRejected.WithLabelValues(reason).Inc()
}

// RecordCDMDuplicate counts a repeated delivery.
func RecordCDMDuplicate() {
	globalManager.cdmDuplicate.Inc()
}

// UpdateCatalogObjects sets the catalog size for kind.
func UpdateCatalogObjects(kind string, count int) {
	globalManager.catalogObjects.WithLabelValues(kind).Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
