package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records workflow engine metrics.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	compilationsTotal   *prometheus.CounterVec
	compilationDuration prometheus.Histogram

	rendersTotal *prometheus.CounterVec

	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec

	programRunsTotal   *prometheus.CounterVec
	programRunDuration prometheus.Histogram

	interventionsPending     prometheus.Gauge
	interventionsResolved    *prometheus.CounterVec
	interventionWaitDuration prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the collectors under namespace on the default
// registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.compilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_compilations_total",
			Help:      "Total number of graph compilations",
		},
		[]string{"status"},
	)
	c.compilationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_compilation_duration_seconds",
			Help:      "Graph compilation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	c.rendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_renders_total",
			Help:      "Total number of code render requests",
		},
		[]string{"status"},
	)

	c.nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"node_type", "status"},
	)
	c.nodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60},
		},
		[]string{"node_type"},
	)

	c.programRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_runs_total",
			Help:      "Total number of compiled program runs",
		},
		[]string{"status"},
	)
	c.programRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "program_run_duration_seconds",
			Help:      "Program run duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
		},
	)

	c.interventionsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interventions_pending",
			Help:      "Number of interventions currently awaiting an operator",
		},
	)
	c.interventionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_resolved_total",
			Help:      "Total interventions by terminal outcome",
		},
		[]string{"outcome"},
	)
	c.interventionWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intervention_wait_duration_seconds",
			Help:      "Time interventions spent waiting for resolution",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600},
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one handled HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCompilation records one graph compilation attempt.
func (c *Collector) RecordCompilation(status string, duration time.Duration) {
	c.compilationsTotal.WithLabelValues(status).Inc()
	c.compilationDuration.Observe(duration.Seconds())
}

// RecordRender records one code render attempt.
func (c *Collector) RecordRender(status string) {
	c.rendersTotal.WithLabelValues(status).Inc()
}

// RecordNodeExecution records one node execution.
func (c *Collector) RecordNodeExecution(nodeType, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordProgramRun records one end-to-end program run.
func (c *Collector) RecordProgramRun(status string, duration time.Duration) {
	c.programRunsTotal.WithLabelValues(status).Inc()
	c.programRunDuration.Observe(duration.Seconds())
}

// InterventionOpened bumps the pending gauge.
func (c *Collector) InterventionOpened() {
	c.interventionsPending.Inc()
}

// InterventionClosed records a terminal outcome ("resolved", "skipped",
// "timed_out") and the time the request spent pending.
func (c *Collector) InterventionClosed(outcome string, waited time.Duration) {
	c.interventionsPending.Dec()
	c.interventionsResolved.WithLabelValues(outcome).Inc()
	c.interventionWaitDuration.Observe(waited.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
