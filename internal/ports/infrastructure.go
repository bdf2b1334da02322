package ports

import "time"

// Operational metric names reported through MetricsCollector.
const (
	// MetricStageLatency is the latency of one chef or critic stage,
	// labelled by stage, technique and status.
	MetricStageLatency = "stage"

	// MetricRecipeOutcome counts recipes by terminal status.
	MetricRecipeOutcome = "recipe_outcome"

	// MetricDegraded counts degraded critic fields.
	MetricDegraded = "critic_degraded"

	// MetricInFlight is the number of recipes being processed.
	MetricInFlight = "recipes_in_flight"

	// MetricScore is the distribution of reported metric values, labelled
	// by metric.
	MetricScore = "metric_score"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like recipe outcomes and degraded
	// critic stages.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like in-flight recipes.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like metric scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
