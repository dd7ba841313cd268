// Package metrics provides Prometheus metrics for the abbayes analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	chainBuckets     []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Pipeline
	analysesTotal   *prometheus.CounterVec
	stageLatency    *prometheus.HistogramVec
	armsAnalysed    prometheus.Histogram
	analysesStored  prometheus.Gauge
	analysisRunning prometheus.Gauge

	// Sampler
	chainsTotal         *prometheus.CounterVec
	chainDuration       *prometheus.HistogramVec
	chainWorkersActive  prometheus.Gauge
	samplingIssues      *prometheus.CounterVec
	convergenceWarnings *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
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
		namespace:        "abbayes",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		chainBuckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		enabled:          true,
		constLabels:      make(map[string]string),
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
	labels := prometheus.Labels(m.constLabels)

	m.analysesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analyses_total",
		Help:        "Pipeline runs by model and outcome",
		ConstLabels: labels,
	}, []string{"model", "outcome"})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_duration_seconds",
		Help:        "Duration of each pipeline stage in seconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"stage"})

	m.armsAnalysed = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "arms_per_analysis",
		Help:        "Number of aggregated arms handed to the sampler",
		Buckets:     []float64{1, 2, 3, 4, 8, 16},
		ConstLabels: labels,
	})

	m.analysesStored = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analyses_stored",
		Help:        "Analyses currently held by the in-memory store",
		ConstLabels: labels,
	})

	m.analysisRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "analyses_running",
		Help:        "Pipeline runs currently in flight",
		ConstLabels: labels,
	})

	m.chainsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "sampler",
		Name:        "chains_total",
		Help:        "MCMC chains run by engine and outcome",
		ConstLabels: labels,
	}, []string{"engine", "outcome"})

	m.chainDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "sampler",
		Name:        "chain_duration_seconds",
		Help:        "Wall time of a single chain (warmup and sampling)",
		Buckets:     m.chainBuckets,
		ConstLabels: labels,
	}, []string{"engine"})

	m.chainWorkersActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "sampler",
		Name:        "chain_workers_active",
		Help:        "Chain workers currently running a chain",
		ConstLabels: labels,
	})

	m.samplingIssues = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "sampler",
		Name:        "sampling_issues_total",
		Help:        "Per-chain sampling issues (divergences, tree depth saturation, acceptance)",
		ConstLabels: labels,
	}, []string{"kind"})

	m.convergenceWarnings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "diagnostics",
		Name:        "convergence_warnings_total",
		Help:        "Parameters flagged by the convergence diagnostics",
		ConstLabels: labels,
	}, []string{"reason"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_seconds",
		Help:        "HTTP request duration in seconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordAnalysis counts a finished pipeline run. outcome is "ok", "warning" or
// the error class that aborted the run.
func RecordAnalysis(model, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.analysesTotal.WithLabelValues(model, outcome).Inc()
}

// RecordStageDuration records the duration of a pipeline stage in seconds.
func RecordStageDuration(stage string, seconds float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.stageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordArms records how many arms an analysis carried.
func RecordArms(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.armsAnalysed.Observe(float64(n))
}

// UpdateAnalysesStored sets the stored analyses gauge.
func UpdateAnalysesStored(n int) {
	globalManager.analysesStored.Set(float64(n))
}

// AnalysisStarted and AnalysisFinished track in-flight runs.
func AnalysisStarted()  { globalManager.analysisRunning.Inc() }
func AnalysisFinished() { globalManager.analysisRunning.Dec() }

// RecordChain records a completed or failed chain.
func RecordChain(engine, outcome string, seconds float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.chainsTotal.WithLabelValues(engine, outcome).Inc()
	globalManager.chainDuration.WithLabelValues(engine).Observe(seconds)
}

// ChainWorkerBusy and ChainWorkerIdle track busy chain workers.
func ChainWorkerBusy() { globalManager.chainWorkersActive.Inc() }
func ChainWorkerIdle() { globalManager.chainWorkersActive.Dec() }

// RecordSamplingIssue counts a per-chain sampling issue.
func RecordSamplingIssue(kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.samplingIssues.WithLabelValues(kind).Inc()
}

// RecordConvergenceWarning counts a flagged parameter.
func RecordConvergenceWarning(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.convergenceWarnings.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration in seconds.
func RecordHTTPRequest(endpoint, method, statusCode string, seconds float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
