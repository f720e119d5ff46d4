package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bounter"

type moduleMetrics struct {
	modelAttempts   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	rateLimitEvents *prometheus.CounterVec
	streamChunks    *prometheus.CounterVec
	streamParts     *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	activeListeners prometheus.Gauge
	scriptSessions  prometheus.Gauge

	scanTotal    *prometheus.CounterVec
	scanDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
	registry    = prometheus.NewRegistry()
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			modelAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "model_attempts_total",
					Help:      "Model attempts by model and outcome.",
				},
				[]string{"model", "outcome"},
			),
			attemptDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "model_attempt_duration_seconds",
					Help:      "Wall time of one model attempt including tool turns.",
					Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
				},
				[]string{"model"},
			),
			rateLimitEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rate_limit_events_total",
					Help:      "Rate limit detections by model and source (response, transport, budget).",
				},
				[]string{"model", "source"},
			),
			streamChunks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "stream_chunks_total",
					Help:      "Streamed response chunks received by model.",
				},
				[]string{"model"},
			),
			streamParts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "stream_parts_total",
					Help:      "Streamed parts by classification.",
				},
				[]string{"kind"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tokens_total",
					Help:      "Tokens reported by the backend by model and kind.",
				},
				[]string{"model", "kind"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			activeListeners: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "active_listeners",
					Help:      "Listener processes currently running.",
				},
			),
			scriptSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "script_sessions",
					Help:      "Live code executor sessions.",
				},
			),
			scanTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "scans_total",
					Help:      "Completed scans by status.",
				},
				[]string{"status"},
			),
			scanDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "scan_duration_seconds",
					Help:      "End to end scan duration.",
					Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600},
				},
			),
		}

		registry.MustRegister(
			m.modelAttempts,
			m.attemptDuration,
			m.rateLimitEvents,
			m.streamChunks,
			m.streamParts,
			m.tokensTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.activeListeners,
			m.scriptSessions,
			m.scanTotal,
			m.scanDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// Registry returns the registry holding bounter metrics.
func Registry() *prometheus.Registry {
	EnsureRegistered()
	return registry
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the bounter registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

func RecordModelAttempt(model, outcome string, duration time.Duration) {
	m := getMetrics()
	m.modelAttempts.WithLabelValues(model, outcome).Inc()
	m.attemptDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func RecordRateLimit(model, source string) {
	getMetrics().rateLimitEvents.WithLabelValues(model, source).Inc()
}

func RecordStreamChunk(model string) {
	getMetrics().streamChunks.WithLabelValues(model).Inc()
}

func RecordStreamPart(thought bool) {
	kind := "output"
	if thought {
		kind = "thought"
	}
	getMetrics().streamParts.WithLabelValues(kind).Inc()
}

func RecordTokens(model string, thinking, output, total int) {
	m := getMetrics()
	m.tokensTotal.WithLabelValues(model, "thinking").Add(float64(thinking))
	m.tokensTotal.WithLabelValues(model, "output").Add(float64(output))
	m.tokensTotal.WithLabelValues(model, "total").Add(float64(total))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func SetActiveListeners(count int) {
	getMetrics().activeListeners.Set(float64(count))
}

func SetScriptSessions(count int) {
	getMetrics().scriptSessions.Set(float64(count))
}

func RecordScan(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.scanTotal.WithLabelValues(status).Inc()
	m.scanDuration.Observe(duration.Seconds())
}
