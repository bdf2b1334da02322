// Package techniques provides the built-in chef techniques: scalers, a
// train/test splitter, an oversampling sampler, a variance reducer and a
// few small modelers. Every technique implements ports.Technique, decodes
// its options into a defaulted config struct and validates it with
// go-playground/validator.
package techniques

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-recipes/infrastructure/options"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// Errors returned by the built-in techniques.
var (
	// ErrTooFewRows is returned when a partition is too small for the
	// requested operation.
	ErrTooFewRows = errors.New("too few rows")

	// ErrClassCount is returned when the labels hold an unsupported
	// number of classes.
	ErrClassCount = errors.New("unsupported number of classes")

	// ErrAllFeaturesDropped is returned when a reducer would leave no
	// feature.
	ErrAllFeaturesDropped = errors.New("every feature would be dropped")
)

// Package-level validator instance for option validation.
var validate = validator.New()

var tracer = otel.Tracer("recipes/techniques")

// Builtin returns one instance of every built-in technique. The "none"
// pass-through is provided by the registry itself.
func Builtin() []ports.Technique {
	return []ports.Technique{
		NewMinMax(),
		NewNormalize(),
		NewStandard(),
		NewTrainTest(),
		NewOversample(),
		NewVarianceThreshold(),
		NewMajority(),
		NewCentroid(),
		NewPerceptron(),
	}
}

// base carries the identity every technique shares.
type base struct {
	name   string
	stage  string
	params []string
}

// newBase derives the recognized option names from the yaml tags of cfg.
func newBase(name, stage string, cfg any) base {
	return base{name: name, stage: stage, params: options.Names(cfg)}
}

func (b base) Name() string         { return b.name }
func (b base) Stage() string        { return b.stage }
func (b base) Parameters() []string { return slices.Clone(b.params) }

// start opens the span covering one Run call.
func (b base) start(ctx context.Context, in domain.Ingredients) (context.Context, trace.Span) {
	return tracer.Start(ctx, "technique."+b.name,
		trace.WithAttributes(
			attribute.String("recipe.stage", b.stage),
			attribute.String("recipe.technique", b.name),
			attribute.Int("data.rows", in.Full.Rows()),
			attribute.Int("data.features", len(in.Schema.Features)),
		),
	)
}

// fail records err on span and returns the unchanged input.
func fail(span trace.Span, in domain.Ingredients, err error) (domain.Ingredients, any, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return in, nil, err
}

// decode overlays params on defaults and validates the result.
func decode[T any](params map[string]any, defaults T) (T, error) {
	return options.Decode(params, defaults, validate)
}

// keepColumns narrows every partition to the feature columns at keep and
// records dropped on the ingredients.
func keepColumns(in *domain.Ingredients, keep []int, dropped []string) {
	features := make([]string, len(keep))
	for i, j := range keep {
		features[i] = in.Schema.Features[j]
	}
	in.Schema.Features = features
	in.Dropped = append(in.Dropped, dropped...)
	for _, p := range in.Partitions() {
		for r, row := range p.X {
			reduced := make([]float64, len(keep))
			for i, j := range keep {
				reduced[i] = row[j]
			}
			p.X[r] = reduced
		}
	}
}

// columnStats returns the per-column mean and population variance of x.
func columnStats(x [][]float64) (means, variances []float64) {
	if len(x) == 0 {
		return nil, nil
	}
	cols := len(x[0])
	means = make([]float64, cols)
	variances = make([]float64, cols)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(x))
	for j := range means {
		means[j] /= n
	}
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			variances[j] += d * d
		}
	}
	for j := range variances {
		variances[j] /= n
	}
	return means, variances
}

// classesOf returns the distinct labels of y in ascending order.
func classesOf(y []float64) []float64 {
	classes := slices.Clone(y)
	slices.Sort(classes)
	return slices.Compact(classes)
}

// checkWidth verifies every row of x has width columns.
func checkWidth(x [][]float64, width int) error {
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ports.ErrLengthMismatch, i, len(row), width)
		}
	}
	return nil
}

// normalizeSum scales values to sum to one. An all-zero slice is returned
// unchanged.
func normalizeSum(values []float64) []float64 {
	out := make([]float64, len(values))
	var total float64
	for _, v := range values {
		total += math.Abs(v)
	}
	for i, v := range values {
		if total > 0 {
			out[i] = math.Abs(v) / total
		}
	}
	return out
}
