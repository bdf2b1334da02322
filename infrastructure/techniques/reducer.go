package techniques

import (
	"context"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var _ ports.Technique = (*VarianceThreshold)(nil)

// VarianceThresholdConfig sets the minimum feature variance kept.
type VarianceThresholdConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gte=0"`
}

// VarianceThreshold drops features whose variance on the fit partition is
// not above the threshold. Dropped features are removed from the schema,
// from every partition, and appended to Ingredients.Dropped.
type VarianceThreshold struct{ base }

// NewVarianceThreshold creates the "variance_threshold" reducer.
func NewVarianceThreshold() *VarianceThreshold {
	return &VarianceThreshold{base: newBase("variance_threshold", domain.StageReducer, VarianceThresholdConfig{})}
}

// Run drops low-variance features. The artifact is the list of dropped
// feature names.
func (t *VarianceThreshold) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, VarianceThresholdConfig{})
	if err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	if fit.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	_, variances := columnStats(fit.X)
	var keep []int
	var dropped []string
	for j, name := range in.Schema.Features {
		if variances[j] > cfg.Threshold {
			keep = append(keep, j)
		} else {
			dropped = append(dropped, name)
		}
	}
	if len(keep) == 0 {
		return fail(span, in, ErrAllFeaturesDropped)
	}
	if len(dropped) == 0 {
		return in, dropped, nil
	}

	keepColumns(&in, keep, dropped)
	return in, dropped, nil
}
