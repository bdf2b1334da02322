package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var _ ports.RecipeObserver = (*OTelRecipeObserver)(nil)

const instrumentationName = "recipes/runner"

// OTelRecipeObserver traces recipe lifecycles with OpenTelemetry. Every
// recipe gets one span; every chef and critic stage adds an event to it.
// Stage failures are recorded as span errors and a FAILED recipe ends
// with an error status.
type OTelRecipeObserver struct {
	tracer trace.Tracer
}

// NewOTelRecipeObserver creates an observer using tp. A nil tp uses the
// global tracer provider.
func NewOTelRecipeObserver(tp trace.TracerProvider) *OTelRecipeObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OTelRecipeObserver{tracer: tp.Tracer(instrumentationName)}
}

// RecipeStarted implements ports.RecipeObserver. It starts the recipe span
// and returns a context carrying it.
func (o *OTelRecipeObserver) RecipeStarted(ctx context.Context, recipe *domain.Recipe) context.Context {
	attrs := []attribute.KeyValue{attribute.Int("recipe.index", recipe.Index())}
	for _, step := range recipe.Steps() {
		attrs = append(attrs, attribute.String("recipe.step."+step.Stage, step.Technique))
	}
	ctx, _ = o.tracer.Start(ctx, "recipe", trace.WithAttributes(attrs...))
	return ctx
}

// StageFinished implements ports.RecipeObserver by adding a stage event to
// the recipe span.
func (o *OTelRecipeObserver) StageFinished(ctx context.Context, _ *domain.Recipe, step domain.Step, err error) {
	span := trace.SpanFromContext(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err, trace.WithAttributes(attribute.String("stage", step.Stage)))
	}
	span.AddEvent("stage.finished", trace.WithAttributes(
		attribute.String("stage", step.Stage),
		attribute.String("technique", step.Technique),
		attribute.String("status", status),
	))
}

// RecipeFinished implements ports.RecipeObserver. It records the terminal
// status and ends the recipe span.
func (o *OTelRecipeObserver) RecipeFinished(ctx context.Context, recipe *domain.Recipe) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(attribute.String("recipe.status", recipe.Status().String()))
	if failure := recipe.Failure(); failure != nil {
		span.SetAttributes(attribute.Bool("recipe.cancelled", failure.Cancelled()))
		span.SetStatus(codes.Error, failure.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
