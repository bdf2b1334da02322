package techniques

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var _ ports.Technique = (*Oversample)(nil)

// OversampleConfig seeds the random oversampler.
type OversampleConfig struct {
	Seed int64 `yaml:"seed"`
}

// ClassCounts maps a class label to its sample count.
type ClassCounts map[float64]int

// Oversample duplicates randomly chosen minority-class samples until every
// class has as many samples as the largest one. Only the fit partition is
// resampled; test and validation data are never touched.
type Oversample struct{ base }

// NewOversample creates the "oversample" sampler.
func NewOversample() *Oversample {
	return &Oversample{base: newBase("oversample", domain.StageSampler, OversampleConfig{})}
}

// Run resamples Train, or Full when no splitter has run. The artifact is
// the class counts after resampling.
func (t *Oversample) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, OversampleConfig{})
	if err != nil {
		return fail(span, in, err)
	}

	target := &in.Full
	if in.IsSplit() {
		target = &in.Train
	}
	if target.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	byClass := make(map[float64][]int)
	for i, y := range target.Y {
		byClass[y] = append(byClass[y], i)
	}
	largest := 0
	for _, rows := range byClass {
		largest = max(largest, len(rows))
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0x5851f42d4c957f2d))
	counts := make(ClassCounts, len(byClass))
	for _, class := range classesOf(target.Y) {
		rows := byClass[class]
		for range largest - len(rows) {
			k := rows[rng.IntN(len(rows))]
			target.X = append(target.X, slices.Clone(target.X[k]))
			target.Y = append(target.Y, class)
		}
		counts[class] = largest
	}
	return in, counts, nil
}
