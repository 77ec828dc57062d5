package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the orchestration core
type Metrics struct {
	// Pipeline metrics
	PipelinesRegistered prometheus.Gauge
	PipelineProcessed   *prometheus.CounterVec
	ProcessingDuration  *prometheus.HistogramVec
	BreakerState        *prometheus.GaugeVec

	// Orchestration metrics
	SelectionsTotal *prometheus.CounterVec
	FallbackDepth   prometheus.Histogram

	// Composition metrics
	CompositionsTotal   *prometheus.CounterVec
	CompositionDuration *prometheus.HistogramVec

	// Health and distribution metrics
	HealthCheckStatus *prometheus.GaugeVec
	ResultsPublished  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PipelinesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "percept",
				Subsystem: "pipelines",
				Name:      "registered",
				Help:      "Number of currently registered analysis pipelines",
			},
		),

		PipelineProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "percept",
				Subsystem: "pipelines",
				Name:      "processed_total",
				Help:      "Total pipeline invocations by outcome",
			},
			[]string{"pipeline", "status"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "percept",
				Subsystem: "pipelines",
				Name:      "processing_duration_seconds",
				Help:      "Pipeline processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "percept",
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state per pipeline (0=closed, 1=open, 2=half-open)",
			},
			[]string{"pipeline"},
		),

		SelectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "percept",
				Subsystem: "orchestrator",
				Name:      "selections_total",
				Help:      "Total pipeline selections by strategy",
			},
			[]string{"strategy"},
		),

		FallbackDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "percept",
				Subsystem: "orchestrator",
				Name:      "fallback_depth",
				Help:      "Number of candidates attempted before a fallback request settled",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
			},
		),

		CompositionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "percept",
				Subsystem: "compositions",
				Name:      "executed_total",
				Help:      "Total composition executions by pattern and outcome",
			},
			[]string{"pattern", "status"},
		),

		CompositionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "percept",
				Subsystem: "compositions",
				Name:      "duration_seconds",
				Help:      "Composition execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pattern"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "percept",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status per pipeline (0=unhealthy, 1=healthy)",
			},
			[]string{"pipeline"},
		),

		ResultsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "percept",
				Subsystem: "distribute",
				Name:      "published_total",
				Help:      "Total results published downstream by subject",
			},
			[]string{"subject"},
		),
	}
}

// RecordPipelinesRegistered updates the registered pipeline gauge
func (c *Metrics) RecordPipelinesRegistered(count int) {
	c.PipelinesRegistered.Set(float64(count))
}

// RecordPipelineProcessed increments the invocation counter for a pipeline
func (c *Metrics) RecordPipelineProcessed(pipeline, status string) {
	c.PipelineProcessed.WithLabelValues(pipeline, status).Inc()
}

// RecordProcessingDuration records a pipeline call duration
func (c *Metrics) RecordProcessingDuration(pipeline string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// RecordBreakerState updates the circuit breaker state gauge for a pipeline
func (c *Metrics) RecordBreakerState(pipeline string, state int) {
	c.BreakerState.WithLabelValues(pipeline).Set(float64(state))
}

// RemoveBreakerState drops the breaker gauge series for an unregistered pipeline
func (c *Metrics) RemoveBreakerState(pipeline string) {
	c.BreakerState.DeleteLabelValues(pipeline)
}

// RecordSelection increments the selection counter for a strategy
func (c *Metrics) RecordSelection(strategy string) {
	c.SelectionsTotal.WithLabelValues(strategy).Inc()
}

// RecordFallbackDepth records how many candidates a fallback request attempted
func (c *Metrics) RecordFallbackDepth(attempts int) {
	c.FallbackDepth.Observe(float64(attempts))
}

// RecordComposition increments the composition counter for a pattern
func (c *Metrics) RecordComposition(pattern, status string) {
	c.CompositionsTotal.WithLabelValues(pattern, status).Inc()
}

// RecordCompositionDuration records a composition execution duration
func (c *Metrics) RecordCompositionDuration(pattern string, duration time.Duration) {
	c.CompositionDuration.WithLabelValues(pattern).Observe(duration.Seconds())
}

// RecordHealthStatus updates health check status for a pipeline
func (c *Metrics) RecordHealthStatus(pipeline string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(pipeline).Set(value)
}

// RecordResultPublished increments the published result counter for a subject
func (c *Metrics) RecordResultPublished(subject string) {
	c.ResultsPublished.WithLabelValues(subject).Inc()
}
