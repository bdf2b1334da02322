package evaluators

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-recipes/infrastructure/options"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var (
	_ ports.Explainer = (*Gini)(nil)
	_ ports.Explainer = (*Permutation)(nil)

	_ ports.ConfigurableExplainer = (*Permutation)(nil)

	validate = validator.New()
	tracer   = otel.Tracer("recipes/evaluators")
)

// Explainers returns the built-in explainers with default settings.
func Explainers() []ports.Explainer {
	perm, _ := NewPermutation(DefaultPermutationConfig())
	return []ports.Explainer{NewGini(), perm}
}

// Gini reports the model's own feature importances. It requires a
// ports.ImportanceModel.
type Gini struct{}

// NewGini creates the "gini" explainer.
func NewGini() *Gini { return &Gini{} }

// Name returns "gini".
func (*Gini) Name() string { return "gini" }

// Explain returns the importances aligned with features.
func (*Gini) Explain(_ context.Context, model ports.Model, _ domain.Partition, features []string) (domain.Explanation, error) {
	im, ok := model.(ports.ImportanceModel)
	if !ok {
		return domain.Explanation{}, fmt.Errorf("%w: model exposes no feature importances", ports.ErrMissingInput)
	}
	values := im.FeatureImportances()
	if len(values) != len(features) {
		return domain.Explanation{}, fmt.Errorf("%w: %d importances for %d features",
			ports.ErrLengthMismatch, len(values), len(features))
	}
	return domain.Explanation{Features: slices.Clone(features), Values: values}, nil
}

// PermutationConfig controls permutation importance.
type PermutationConfig struct {
	// Repeats is the number of shuffles averaged per feature.
	Repeats int `yaml:"repeats" validate:"min=1,max=100"`

	// Seed drives the shuffles.
	Seed int64 `yaml:"seed"`
}

// DefaultPermutationConfig averages five shuffles.
func DefaultPermutationConfig() PermutationConfig {
	return PermutationConfig{Repeats: 5, Seed: 43}
}

// Permutation measures how much accuracy drops when a single feature
// column is shuffled. It works with any model.
type Permutation struct {
	cfg PermutationConfig
}

// NewPermutation creates the "permutation" explainer.
func NewPermutation(cfg PermutationConfig) (*Permutation, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &Permutation{cfg: cfg}, nil
}

// Name returns "permutation".
func (*Permutation) Name() string { return "permutation" }

// Config returns the explainer's settings.
func (p *Permutation) Config() PermutationConfig { return p.cfg }

// Parameters lists the options Configure accepts.
func (*Permutation) Parameters() []string { return options.Names(PermutationConfig{}) }

// Configure returns a permutation explainer with params overlaid on the
// receiver's settings.
func (p *Permutation) Configure(params map[string]any) (ports.Explainer, error) {
	cfg, err := options.Decode(params, p.cfg, validate)
	if err != nil {
		return nil, err
	}
	return &Permutation{cfg: cfg}, nil
}

// Explain returns the mean accuracy drop per feature. Shuffles are seeded
// per feature, so results do not depend on feature order or concurrency.
func (p *Permutation) Explain(ctx context.Context, model ports.Model, data domain.Partition, features []string) (domain.Explanation, error) {
	_, span := tracer.Start(ctx, "explainer.permutation",
		trace.WithAttributes(
			attribute.Int("data.rows", data.Rows()),
			attribute.Int("config.repeats", p.cfg.Repeats),
		),
	)
	defer span.End()

	if data.Empty() {
		return domain.Explanation{}, ports.ErrEmptyData
	}
	baseline, err := scoreModel(model, data.X, data.Y)
	if err != nil {
		span.RecordError(err)
		return domain.Explanation{}, err
	}

	values := make([]float64, len(features))
	x := make([][]float64, data.Rows())
	for j := range features {
		if err := ctx.Err(); err != nil {
			return domain.Explanation{}, err
		}
		rng := rand.New(rand.NewPCG(uint64(p.cfg.Seed), uint64(j)))
		column := make([]float64, data.Rows())
		for i, row := range data.X {
			column[i] = row[j]
		}
		var drop float64
		for range p.cfg.Repeats {
			rng.Shuffle(len(column), func(a, b int) { column[a], column[b] = column[b], column[a] })
			for i, row := range data.X {
				shuffled := slices.Clone(row)
				shuffled[j] = column[i]
				x[i] = shuffled
			}
			score, err := scoreModel(model, x, data.Y)
			if err != nil {
				span.RecordError(err)
				return domain.Explanation{}, err
			}
			drop += baseline - score
		}
		values[j] = drop / float64(p.cfg.Repeats)
	}
	return domain.Explanation{Features: slices.Clone(features), Values: values}, nil
}

func scoreModel(model ports.Model, x [][]float64, y []float64) (float64, error) {
	predicted, err := model.Predict(x)
	if err != nil {
		return 0, err
	}
	if err := aligned("predictions", y, predicted); err != nil {
		return 0, err
	}
	return accuracy(ports.MetricInput{Actual: y, Predicted: predicted})
}
