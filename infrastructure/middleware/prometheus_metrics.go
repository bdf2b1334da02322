// Package middleware provides cross-cutting concerns for the recipe engine:
// Prometheus metrics and OpenTelemetry tracing of recipe lifecycles.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-recipes/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

const namespace = "recipes"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Well-known metric names get dedicated collectors; anything
// else lands in generic vectors keyed by metric name.
type PrometheusMetrics struct {
	stageLatency   *prometheus.HistogramVec
	recipeOutcomes *prometheus.CounterVec
	degraded       prometheus.Counter
	inFlight       prometheus.Gauge
	metricScores   *prometheus.HistogramVec

	operationLatency *prometheus.HistogramVec
	counters         *prometheus.CounterVec
	gauges           *prometheus.GaugeVec
	histograms       *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Execution time of chef and critic stages.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "technique", "status"},
		),
		recipeOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recipes_total",
				Help:      "Recipes that reached a terminal status.",
			},
			[]string{"status"},
		),
		degraded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "critic_degradations_total",
				Help:      "Critic stages that could not produce their fields.",
			},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recipes_in_flight",
				Help:      "Recipes currently being executed or reviewed.",
			},
		),
		metricScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "metric_score",
				Help:      "Reported metric values, oriented so that higher is better.",
				Buckets:   prometheus.LinearBuckets(-1, 0.1, 21),
			},
			[]string{"metric"},
		),

		// Generic vectors for names without a dedicated collector.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of other operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		counters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Other counted events.",
			},
			[]string{"metric"},
		),
		gauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Other state values.",
			},
			[]string{"metric"},
		),
		histograms: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "observations",
				Help:      "Other observed values.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if operation == ports.MetricStageLatency {
		pm.stageLatency.WithLabelValues(
			label(labels, "stage"),
			label(labels, "technique"),
			label(labels, "status"),
		).Observe(duration.Seconds())
		return
	}
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case ports.MetricRecipeOutcome:
		pm.recipeOutcomes.WithLabelValues(label(labels, "status")).Add(value)
	case ports.MetricDegraded:
		pm.degraded.Add(value)
	default:
		pm.counters.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	if metric == ports.MetricInFlight {
		pm.inFlight.Set(value)
		return
	}
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	if metric == ports.MetricScore {
		pm.metricScores.WithLabelValues(label(labels, "metric")).Observe(value)
		return
	}
	pm.histograms.WithLabelValues(metric).Observe(value)
}
