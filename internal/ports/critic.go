package ports

import (
	"context"

	"github.com/ahrav/go-recipes/internal/domain"
)

// Explainer produces global feature attributions for a fitted model.
type Explainer interface {
	Name() string

	// Explain attributes the model's behaviour on data to its features.
	// An error is isolated to this explainer; other explainers still run.
	Explain(ctx context.Context, model Model, data domain.Partition, features []string) (domain.Explanation, error)
}

// ConfigurableExplainer is an explainer that accepts options from the
// "<name>_parameters" or "explainer_parameters" settings.
type ConfigurableExplainer interface {
	Explainer

	// Parameters lists the recognized option names.
	Parameters() []string

	// Configure returns a new explainer with params applied. The receiver
	// is left unchanged.
	Configure(params map[string]any) (Explainer, error)
}

// Ranker derives ranking fields from the review accumulated so far.
type Ranker interface {
	Name() string
	Rank(ctx context.Context, review domain.State, features []string) ([]domain.Field, error)
}

// MetricInput is the data a metric may read. Probabilities holds the
// positive-class column only.
type MetricInput struct {
	Actual        []float64
	Predicted     []float64
	Probabilities []float64
	Scores        []float64
}

// Requirement names the model output a metric needs beyond predictions.
type Requirement int

// Metric requirements.
const (
	RequiresPredictions Requirement = iota
	RequiresProbabilities
	RequiresScores
)

// String returns the requirement name.
func (r Requirement) String() string {
	switch r {
	case RequiresProbabilities:
		return "probabilities"
	case RequiresScores:
		return "decision scores"
	default:
		return "predictions"
	}
}

// Metric scores predictions against true labels.
type Metric interface {
	Name() string

	// Negative reports whether lower raw values are better. The measurer
	// inverts the sign of negative metrics before reporting them.
	Negative() bool

	Requires() Requirement
	Compute(in MetricInput) (float64, error)
}
