package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all Prometheus metrics for ctxpack.
type MetricsCollector struct {
	// Agent driver metrics
	AgentStepsTotal    *prometheus.CounterVec
	AgentStepDuration  *prometheus.HistogramVec
	AgentStreamsActive prometheus.Gauge

	// Indexer metrics
	IndexerOperations  *prometheus.CounterVec
	IndexerDuration    *prometheus.HistogramVec
	IndexedFilesTotal  prometheus.Counter
	IndexedChunksTotal prometheus.Counter
	IndexerErrorsTotal *prometheus.CounterVec

	// Embedding metrics
	EmbeddingRequests    *prometheus.CounterVec
	EmbeddingDuration    *prometheus.HistogramVec
	EmbeddingErrorsTotal *prometheus.CounterVec

	// Search metrics
	SearchRequests *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec

	// Scheduler metrics
	SchedulerJobsQueued  *prometheus.GaugeVec
	SchedulerJobsRunning *prometheus.GaugeVec

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers all Prometheus metrics.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics with a specific registry (for testing).
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "ctxpack"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}
	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}
	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}
	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}
	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		AgentStepsTotal: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_steps_total",
			Help: "Total number of agent driver steps by mode and finish reason",
		}, []string{"mode", "finish_reason"}),
		AgentStepDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "agent_step_duration_seconds",
			Help:    "Agent driver step duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		AgentStreamsActive: autoGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "agent_streams_active",
			Help: "Number of agent streaming sessions currently open",
		}),

		IndexerOperations: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "indexer_operations_total",
			Help: "Total number of indexer operations by type and status",
		}, []string{"operation", "status"}),
		IndexerDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "indexer_operation_duration_seconds",
			Help:    "Indexer operation duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		IndexedFilesTotal: autoCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "indexed_files_total",
			Help: "Total number of files indexed",
		}),
		IndexedChunksTotal: autoCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "indexed_chunks_total",
			Help: "Total number of chunks indexed",
		}),
		IndexerErrorsTotal: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "indexer_errors_total",
			Help: "Total number of indexer errors by kind",
		}, []string{"error_type"}),

		EmbeddingRequests: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "embedding_requests_total",
			Help: "Total number of embedding requests by provider and status",
		}, []string{"provider", "status"}),
		EmbeddingDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "embedding_duration_seconds",
			Help:    "Embedding generation duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"provider"}),
		EmbeddingErrorsTotal: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "embedding_errors_total",
			Help: "Total number of embedding errors by provider",
		}, []string{"provider", "error_type"}),

		SearchRequests: autoCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "search_requests_total",
			Help: "Total number of hybrid search requests by mode and status",
		}, []string{"mode", "status"}),
		SearchDuration: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_duration_seconds",
			Help:    "Hybrid search request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		SearchResults: autoHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_results_count",
			Help:    "Number of results returned by hybrid search",
			Buckets: []float64{0, 1, 5, 10, 25, 50},
		}, []string{"mode"}),

		SchedulerJobsQueued: autoGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduler_jobs_queued",
			Help: "Number of jobs currently queued per resource",
		}, []string{"resource_id"}),
		SchedulerJobsRunning: autoGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "scheduler_jobs_running",
			Help: "Whether a job is currently running for a resource (1/0)",
		}, []string{"resource_id"}),

		SystemStartTime: autoGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_start_time_seconds",
			Help: "Unix timestamp when the system started",
		}),
		SystemHealth: autoGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_health_status",
			Help: "System health status (1 = healthy, 0 = unhealthy)",
		}, []string{"component"}),
	}
}

func (m *MetricsCollector) RecordAgentStep(mode, finishReason string, duration time.Duration) {
	m.AgentStepsTotal.WithLabelValues(mode, finishReason).Inc()
	m.AgentStepDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordIndexerOperation(operation, status string, duration time.Duration) {
	m.IndexerOperations.WithLabelValues(operation, status).Inc()
	m.IndexerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordIndexedFiles(count int)  { m.IndexedFilesTotal.Add(float64(count)) }
func (m *MetricsCollector) RecordIndexedChunks(count int) { m.IndexedChunksTotal.Add(float64(count)) }
func (m *MetricsCollector) RecordIndexerError(errorType string) {
	m.IndexerErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *MetricsCollector) RecordEmbedding(provider, status string, duration time.Duration) {
	m.EmbeddingRequests.WithLabelValues(provider, status).Inc()
	m.EmbeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
func (m *MetricsCollector) RecordEmbeddingError(provider, errorType string) {
	m.EmbeddingErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

func (m *MetricsCollector) RecordSearch(mode, status string, duration time.Duration, resultCount int) {
	m.SearchRequests.WithLabelValues(mode, status).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.SearchResults.WithLabelValues(mode).Observe(float64(resultCount))
}

func (m *MetricsCollector) SetSchedulerQueueDepth(resourceID string, depth int) {
	m.SchedulerJobsQueued.WithLabelValues(resourceID).Set(float64(depth))
}
func (m *MetricsCollector) SetSchedulerRunning(resourceID string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	m.SchedulerJobsRunning.WithLabelValues(resourceID).Set(v)
}

func (m *MetricsCollector) SetSystemStartTime(t time.Time) { m.SystemStartTime.Set(float64(t.Unix())) }
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(v)
}
