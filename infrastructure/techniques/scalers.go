package techniques

import (
	"context"
	"math"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var (
	_ ports.Technique = (*MinMax)(nil)
	_ ports.Technique = (*Normalize)(nil)
	_ ports.Technique = (*Standard)(nil)
)

// MinMaxConfig sets the target range of the minmax scaler.
type MinMaxConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max" validate:"gtfield=Min"`
}

// DefaultMinMaxConfig scales into [0, 1].
func DefaultMinMaxConfig() MinMaxConfig { return MinMaxConfig{Min: 0, Max: 1} }

// ColumnScale is the fitted per-column affine transform x' = (x-Shift)*Factor + Offset.
type ColumnScale struct {
	Shift  []float64
	Factor []float64
	Offset float64
}

// apply transforms every non-empty partition in place.
func (s ColumnScale) apply(in *domain.Ingredients) {
	for _, p := range in.Partitions() {
		for _, row := range p.X {
			for j := range row {
				row[j] = (row[j]-s.Shift[j])*s.Factor[j] + s.Offset
			}
		}
	}
}

// MinMax rescales each feature linearly into a target range. Bounds are
// learned from the fit partition and applied to every partition.
type MinMax struct{ base }

// NewMinMax creates the "minmax" scaler.
func NewMinMax() *MinMax {
	return &MinMax{base: newBase("minmax", domain.StageScaler, MinMaxConfig{})}
}

// Run fits and applies the scaler. A constant column maps to the lower
// bound of the range. The artifact is the fitted ColumnScale.
func (t *MinMax) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultMinMaxConfig())
	if err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	if fit.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	cols := len(in.Schema.Features)
	scale := ColumnScale{Shift: make([]float64, cols), Factor: make([]float64, cols), Offset: cfg.Min}
	for j := range cols {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range fit.X {
			lo = min(lo, row[j])
			hi = max(hi, row[j])
		}
		scale.Shift[j] = lo
		if hi > lo {
			scale.Factor[j] = (cfg.Max - cfg.Min) / (hi - lo)
		}
	}
	scale.apply(&in)
	return in, scale, nil
}

// StandardConfig toggles centering and scaling.
type StandardConfig struct {
	WithMean bool `yaml:"with_mean"`
	WithStd  bool `yaml:"with_std"`
}

// DefaultStandardConfig centers and scales.
func DefaultStandardConfig() StandardConfig { return StandardConfig{WithMean: true, WithStd: true} }

// Standard removes the mean and scales each feature to unit variance.
type Standard struct{ base }

// NewStandard creates the "standard" scaler.
func NewStandard() *Standard {
	return &Standard{base: newBase("standard", domain.StageScaler, StandardConfig{})}
}

// Run fits and applies the scaler. A zero-variance column is only
// centered. The artifact is the fitted ColumnScale.
func (t *Standard) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultStandardConfig())
	if err != nil {
		return fail(span, in, err)
	}
	fit := in.FitPartition()
	if fit.Empty() {
		return fail(span, in, ErrTooFewRows)
	}

	means, variances := columnStats(fit.X)
	cols := len(in.Schema.Features)
	scale := ColumnScale{Shift: make([]float64, cols), Factor: make([]float64, cols)}
	for j := range cols {
		scale.Factor[j] = 1
		if cfg.WithMean {
			scale.Shift[j] = means[j]
		}
		if cfg.WithStd && variances[j] > 0 {
			scale.Factor[j] = 1 / math.Sqrt(variances[j])
		}
	}
	scale.apply(&in)
	return in, scale, nil
}

// NormalizeConfig selects the row norm.
type NormalizeConfig struct {
	Norm string `yaml:"norm" validate:"oneof=l1 l2 max"`
}

// DefaultNormalizeConfig uses the l2 norm.
func DefaultNormalizeConfig() NormalizeConfig { return NormalizeConfig{Norm: "l2"} }

// Normalize rescales every sample to unit norm. It is stateless, so every
// partition is transformed independently.
type Normalize struct{ base }

// NewNormalize creates the "normalize" scaler.
func NewNormalize() *Normalize {
	return &Normalize{base: newBase("normalize", domain.StageScaler, NormalizeConfig{})}
}

// Run normalizes each row. Rows whose norm is zero are left unchanged.
func (t *Normalize) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultNormalizeConfig())
	if err != nil {
		return fail(span, in, err)
	}

	for _, p := range in.Partitions() {
		for _, row := range p.X {
			n := rowNorm(row, cfg.Norm)
			if n == 0 {
				continue
			}
			for j := range row {
				row[j] /= n
			}
		}
	}
	return in, nil, nil
}

func rowNorm(row []float64, norm string) float64 {
	var n float64
	switch norm {
	case "l1":
		for _, v := range row {
			n += math.Abs(v)
		}
	case "max":
		for _, v := range row {
			n = max(n, math.Abs(v))
		}
	default:
		for _, v := range row {
			n += v * v
		}
		n = math.Sqrt(n)
	}
	return n
}
