package techniques

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var (
	_ ports.Technique = (*Majority)(nil)
	_ ports.Technique = (*Centroid)(nil)
	_ ports.Technique = (*Perceptron)(nil)
)

// MajorityConfig is empty; the majority modeler takes no options.
type MajorityConfig struct{}

// Majority fits a model that predicts the most frequent class. It exposes
// predictions only, so probability and score fields of its recipes are
// absent.
type Majority struct{ base }

// NewMajority creates the "majority" modeler.
func NewMajority() *Majority {
	return &Majority{base: newBase("majority", domain.StageModeler, MajorityConfig{})}
}

// Run fits on the fit partition. Ties go to the smallest label.
func (t *Majority) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	if _, err := decode(params, MajorityConfig{}); err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	if fit.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	counts := make(map[float64]int)
	for _, y := range fit.Y {
		counts[y]++
	}
	model := &MajorityModel{width: len(in.Schema.Features)}
	best := -1
	for _, class := range classesOf(fit.Y) {
		if counts[class] > best {
			best = counts[class]
			model.Class = class
		}
	}
	return in, model, nil
}

// CentroidConfig sets the softmax temperature of the centroid modeler.
type CentroidConfig struct {
	Temperature float64 `yaml:"temperature" validate:"gt=0"`
}

// DefaultCentroidConfig uses unit temperature.
func DefaultCentroidConfig() CentroidConfig { return CentroidConfig{Temperature: 1} }

// Centroid fits a nearest-centroid classifier with probabilities,
// log-probabilities and feature importances.
type Centroid struct{ base }

// NewCentroid creates the "centroid" modeler.
func NewCentroid() *Centroid {
	return &Centroid{base: newBase("centroid", domain.StageModeler, CentroidConfig{})}
}

// Run fits one mean per class on the fit partition.
func (t *Centroid) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultCentroidConfig())
	if err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	if fit.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	width := len(in.Schema.Features)
	classes := classesOf(fit.Y)
	position := make(map[float64]int, len(classes))
	for k, c := range classes {
		position[c] = k
	}
	centroids := make([][]float64, len(classes))
	counts := make([]float64, len(classes))
	for k := range centroids {
		centroids[k] = make([]float64, width)
	}
	for i, row := range fit.X {
		k := position[fit.Y[i]]
		counts[k]++
		for j, v := range row {
			centroids[k][j] += v
		}
	}
	for k, c := range centroids {
		for j := range c {
			c[j] /= counts[k]
		}
	}

	_, spread := columnStats(centroids)
	model := &CentroidModel{
		classes:     classes,
		centroids:   centroids,
		temperature: cfg.Temperature,
		importances: normalizeSum(spread),
	}
	return in, model, nil
}

// PerceptronConfig controls perceptron training.
type PerceptronConfig struct {
	Epochs       int     `yaml:"epochs" validate:"min=1,max=10000"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	Shuffle      bool    `yaml:"shuffle"`
	Seed         int64   `yaml:"seed"`
}

// DefaultPerceptronConfig trains for 20 shuffled epochs.
func DefaultPerceptronConfig() PerceptronConfig {
	return PerceptronConfig{Epochs: 20, LearningRate: 1, Shuffle: true}
}

// Perceptron fits a binary linear classifier exposing raw decision scores
// and coefficient importances but no probabilities.
type Perceptron struct{ base }

// NewPerceptron creates the "perceptron" modeler.
func NewPerceptron() *Perceptron {
	return &Perceptron{base: newBase("perceptron", domain.StageModeler, PerceptronConfig{})}
}

// Run trains on the fit partition, which must hold exactly two classes.
func (t *Perceptron) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	ctx, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultPerceptronConfig())
	if err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	classes := classesOf(fit.Y)
	if len(classes) != 2 {
		return fail(span, in, fmt.Errorf("%w: perceptron needs 2 classes, got %d", ErrClassCount, len(classes)))
	}

	model := &PerceptronModel{
		classes: [2]float64{classes[0], classes[1]},
		weights: make([]float64, len(in.Schema.Features)),
	}
	order := make([]int, fit.Rows())
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0xda3e39cb94b95bdb))
	for range cfg.Epochs {
		if err := ctx.Err(); err != nil {
			return fail(span, in, err)
		}
		if cfg.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		mistakes := 0
		for _, i := range order {
			target := -1.0
			if fit.Y[i] == model.classes[1] {
				target = 1
			}
			if target*model.score(fit.X[i]) > 0 {
				continue
			}
			mistakes++
			for j, v := range fit.X[i] {
				model.weights[j] += cfg.LearningRate * target * v
			}
			model.bias += cfg.LearningRate * target
		}
		if mistakes == 0 {
			break
		}
	}
	return in, model, nil
}
