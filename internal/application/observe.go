package application

import (
	"context"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// noopObserver is used when no ports.RecipeObserver is injected.
type noopObserver struct{}

func (noopObserver) RecipeStarted(ctx context.Context, _ *domain.Recipe) context.Context { return ctx }
func (noopObserver) StageFinished(context.Context, *domain.Recipe, domain.Step, error)   {}
func (noopObserver) RecipeFinished(context.Context, *domain.Recipe)                      {}

// noopMetrics is used when no ports.MetricsCollector is injected.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)     {}

var (
	_ ports.RecipeObserver   = noopObserver{}
	_ ports.MetricsCollector = noopMetrics{}
)

// outcomeLabel returns "ok" for a nil error and "error" otherwise.
func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
