package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// ObservedEvent is one callback received by a RecordingObserver.
type ObservedEvent struct {
	Kind   string // "started", "stage" or "finished"
	Recipe int
	Step   domain.Step
	Status domain.Status
	Err    error
}

// RecordingObserver implements ports.RecipeObserver by recording every
// callback. It is safe for concurrent use.
type RecordingObserver struct {
	mu     sync.Mutex
	events []ObservedEvent
}

var _ ports.RecipeObserver = (*RecordingObserver)(nil)

// RecipeStarted implements ports.RecipeObserver.
func (o *RecordingObserver) RecipeStarted(ctx context.Context, recipe *domain.Recipe) context.Context {
	o.record(ObservedEvent{Kind: "started", Recipe: recipe.Index(), Status: recipe.Status()})
	return ctx
}

// StageFinished implements ports.RecipeObserver.
func (o *RecordingObserver) StageFinished(_ context.Context, recipe *domain.Recipe, step domain.Step, err error) {
	o.record(ObservedEvent{Kind: "stage", Recipe: recipe.Index(), Step: step, Status: recipe.Status(), Err: err})
}

// RecipeFinished implements ports.RecipeObserver.
func (o *RecordingObserver) RecipeFinished(_ context.Context, recipe *domain.Recipe) {
	o.record(ObservedEvent{Kind: "finished", Recipe: recipe.Index(), Status: recipe.Status()})
}

func (o *RecordingObserver) record(e ObservedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

// Events returns the events recorded for recipe, in arrival order.
func (o *RecordingObserver) Events(recipe int) []ObservedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []ObservedEvent
	for _, e := range o.events {
		if e.Recipe == recipe {
			out = append(out, e)
		}
	}
	return out
}

// Stages returns the stage names reported for recipe, in order.
func (o *RecordingObserver) Stages(recipe int) []string {
	var out []string
	for _, e := range o.Events(recipe) {
		if e.Kind == "stage" {
			out = append(out, e.Step.Stage)
		}
	}
	return out
}

// Count returns how many events of kind were recorded.
func (o *RecordingObserver) Count(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, e := range o.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// RecordedSample is one value received by a RecordingMetrics.
type RecordedSample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordingMetrics implements ports.MetricsCollector in memory. Latencies
// are recorded in seconds. It is safe for concurrent use.
type RecordingMetrics struct {
	mu         sync.Mutex
	latencies  []RecordedSample
	counters   map[string]float64
	gauges     map[string]float64
	histograms []RecordedSample
	maxGauge   map[string]float64
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// NewRecordingMetrics creates an empty collector.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		maxGauge: make(map[string]float64),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, RecordedSample{Name: operation, Value: d.Seconds(), Labels: labels})
}

// RecordCounter implements ports.MetricsCollector. Counters are keyed by
// metric name and the "status" label, when present.
func (m *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[counterKey(metric, labels["status"])] += value
}

// RecordGauge implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metric] = value
	if value > m.maxGauge[metric] {
		m.maxGauge[metric] = value
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (m *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, RecordedSample{Name: metric, Value: value, Labels: labels})
}

// Counter returns the total recorded for metric and status. An empty
// status matches counters recorded without one.
func (m *RecordingMetrics) Counter(metric, status string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[counterKey(metric, status)]
}

// Gauge returns the last value and the peak value of a gauge.
func (m *RecordingMetrics) Gauge(metric string) (last, peak float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[metric], m.maxGauge[metric]
}

// Latencies returns the latency samples recorded under operation.
func (m *RecordingMetrics) Latencies(operation string) []RecordedSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterSamples(m.latencies, operation)
}

// Histogram returns the histogram samples recorded under metric.
func (m *RecordingMetrics) Histogram(metric string) []RecordedSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterSamples(m.histograms, metric)
}

func filterSamples(samples []RecordedSample, name string) []RecordedSample {
	var out []RecordedSample
	for _, s := range samples {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

func counterKey(metric, status string) string {
	if status == "" {
		return metric
	}
	return metric + "/" + status
}
