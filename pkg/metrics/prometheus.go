// Package metrics provides Prometheus metrics for the cadence timing engine.
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

// tickBuckets resolve sub-millisecond judge ticks; a tick must fit in a frame.
var tickBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16} //nolint:gochecknoglobals // constant bucket layout

// analysisBuckets cover short clips up to full songs.
var analysisBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Analysis
	analysisDuration   prometheus.Histogram
	analysisCompleted  prometheus.Counter
	analysisFailures   *prometheus.CounterVec
	analysisSuperseded prometheus.Counter
	detectedBPM        prometheus.Gauge
	targetsGenerated   prometheus.Counter

	// Judging
	tickLatency    prometheus.Histogram
	judgements     *prometheus.CounterVec
	inputsClamped  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	sessionsEnded  prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cadence",
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.analysisDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analysis_duration_milliseconds",
		Help:        "Wall time spent analyzing one track",
		Buckets:     analysisBuckets,
		ConstLabels: labels,
	})

	m.analysisCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analysis_completed_total",
		Help:        "Analyses that produced a result and were published",
		ConstLabels: labels,
	})

	m.analysisFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "analysis_failures_total",
			Help:        "Analyses rejected by the detector, by reason",
			ConstLabels: labels,
		},
		[]string{"reason"},
	)

	m.analysisSuperseded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analysis_superseded_total",
		Help:        "Analyses dropped because a newer request arrived",
		ConstLabels: labels,
	})

	m.detectedBPM = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "detected_bpm",
		Help:        "Tempo of the most recently published analysis",
		ConstLabels: labels,
	})

	m.targetsGenerated = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "targets_generated_total",
		Help:        "Hit circles materialized by the scheduler",
		ConstLabels: labels,
	})

	m.tickLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "tick_latency_milliseconds",
		Help:        "Time spent inside one judge tick",
		Buckets:     tickBuckets,
		ConstLabels: labels,
	})

	m.judgements = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "judgements_total",
			Help:        "Resolved hit circles by kind",
			ConstLabels: labels,
		},
		[]string{"kind"},
	)

	m.inputsClamped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "inputs_clamped_total",
			Help:        "Malformed tick inputs absorbed by clamping, by input",
			ConstLabels: labels,
		},
		[]string{"input"},
	)

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_sessions",
		Help:        "Play sessions currently accepting ticks",
		ConstLabels: labels,
	})

	m.sessionsEnded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sessions_ended_total",
		Help:        "Play sessions that reached the end of the track or were stopped",
		ConstLabels: labels,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_size",
		Help:        "Analysis jobs waiting for a worker",
		ConstLabels: labels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_capacity",
		Help:        "Maximum analysis queue capacity",
		ConstLabels: labels,
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_enqueue_total",
		Help:        "Total number of analysis jobs enqueued",
		ConstLabels: labels,
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_dequeue_total",
		Help:        "Total number of analysis jobs dequeued",
		ConstLabels: labels,
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_enqueue_errors_total",
		Help:        "Total number of rejected enqueues",
		ConstLabels: labels,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_active_count",
		Help:        "Number of analysis workers running",
		ConstLabels: labels,
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_processing_latency_milliseconds",
		Help:        "Time a worker spends on one job including publication",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_errors_total",
		Help:        "Total number of worker errors",
		ConstLabels: labels,
	})

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)
}

// Analysis metrics.

// RecordAnalysisDuration records how long one analysis took in milliseconds.
func RecordAnalysisDuration(ms float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.analysisDuration.Observe(ms)
}

// RecordAnalysisCompleted increments the completed analyses counter.
func RecordAnalysisCompleted() {
	if !globalManager.enabled {
		return
	}
	globalManager.analysisCompleted.Inc()
}

// RecordAnalysisFailure increments the failure counter for reason.
func RecordAnalysisFailure(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.analysisFailures.WithLabelValues(reason).Inc()
}

// RecordAnalysisSuperseded increments the superseded analyses counter.
func RecordAnalysisSuperseded() {
	if !globalManager.enabled {
		return
	}
	globalManager.analysisSuperseded.Inc()
}

// UpdateDetectedBPM sets the tempo of the latest published analysis.
func UpdateDetectedBPM(bpm float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.detectedBPM.Set(bpm)
}

// RecordTargetsGenerated adds n generated hit circles.
func RecordTargetsGenerated(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.targetsGenerated.Add(float64(n))
}

// Judging metrics.

// RecordTickLatency records the time spent in one judge tick.
func RecordTickLatency(ms float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.tickLatency.Observe(ms)
}

// RecordJudgement increments the judgement counter for kind.
func RecordJudgement(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.judgements.WithLabelValues(kind).Inc()
}

// RecordInputClamped counts a malformed tick input that was absorbed.
func RecordInputClamped(input string) {
	if !globalManager.enabled {
		return
	}
	globalManager.inputsClamped.WithLabelValues(input).Inc()
}

// RecordSessionStarted marks a session as accepting ticks.
func RecordSessionStarted() {
	if !globalManager.enabled {
		return
	}
	globalManager.activeSessions.Inc()
}

// RecordSessionEnded marks a session as no longer accepting ticks.
func RecordSessionEnded() {
	if !globalManager.enabled {
		return
	}
	globalManager.activeSessions.Dec()
	globalManager.sessionsEnded.Inc()
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// Worker metrics.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
