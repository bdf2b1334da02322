package testutils

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// ErrStubFailure is the error returned by FailingTechnique.
var ErrStubFailure = errors.New("stub technique failed")

// RunFunc is the body of a StubTechnique.
type RunFunc func(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error)

// StubTechnique implements ports.Technique with a caller supplied body.
// It is safe for concurrent use as long as the body is.
type StubTechnique struct {
	name   string
	stage  string
	params []string
	run    RunFunc
}

var _ ports.Technique = (*StubTechnique)(nil)

// NewStubTechnique creates a technique named name for stage.
func NewStubTechnique(stage, name string, params []string, run RunFunc) *StubTechnique {
	return &StubTechnique{name: name, stage: stage, params: slices.Clone(params), run: run}
}

func (t *StubTechnique) Name() string         { return t.name }
func (t *StubTechnique) Stage() string        { return t.stage }
func (t *StubTechnique) Parameters() []string { return slices.Clone(t.params) }

// Run implements ports.Technique.
func (t *StubTechnique) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	return t.run(ctx, in, params)
}

// ScaleTechnique multiplies every feature of every partition by factor
// after an optional pause. Two instances with different factors give
// contradictory results for the same source, which makes cross-recipe
// leaks visible.
func ScaleTechnique(stage, name string, factor float64, pause time.Duration) *StubTechnique {
	return NewStubTechnique(stage, name, nil, func(ctx context.Context, in domain.Ingredients, _ map[string]any) (domain.Ingredients, any, error) {
		for _, p := range in.Partitions() {
			for _, row := range p.X {
				for j := range row {
					row[j] *= factor
				}
			}
		}
		if pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
			}
		}
		return in, factor, nil
	})
}

// FailingTechnique always returns ErrStubFailure.
func FailingTechnique(stage, name string) *StubTechnique {
	return NewStubTechnique(stage, name, nil, func(context.Context, domain.Ingredients, map[string]any) (domain.Ingredients, any, error) {
		return domain.Ingredients{}, nil, ErrStubFailure
	})
}

// PanickingTechnique panics with msg.
func PanickingTechnique(stage, name, msg string) *StubTechnique {
	return NewStubTechnique(stage, name, nil, func(context.Context, domain.Ingredients, map[string]any) (domain.Ingredients, any, error) {
		panic(msg)
	})
}

// ParamsTechnique records nothing and returns the options it received as
// its artifact. It recognizes the given option names.
func ParamsTechnique(stage, name string, params ...string) *StubTechnique {
	return NewStubTechnique(stage, name, params, func(_ context.Context, in domain.Ingredients, p map[string]any) (domain.Ingredients, any, error) {
		return in, p, nil
	})
}

// ModelTechnique is a modeler returning model.
func ModelTechnique(name string, model ports.Model) *StubTechnique {
	return NewStubTechnique(domain.StageModeler, name, nil, func(_ context.Context, in domain.Ingredients, _ map[string]any) (domain.Ingredients, any, error) {
		return in, model, nil
	})
}

// ThresholdModel predicts 1 when feature Column exceeds Threshold. It
// exposes predictions only: no probabilities, decision scores or
// importances.
type ThresholdModel struct {
	Column    int
	Threshold float64
}

// Predict implements ports.Model.
func (m ThresholdModel) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if row[m.Column] > m.Threshold {
			out[i] = 1
		}
	}
	return out, nil
}

// ProbabilityThresholdModel is a ThresholdModel that also reports fixed
// confidence probabilities for classes 0 and 1.
type ProbabilityThresholdModel struct {
	ThresholdModel

	// Confidence is the probability given to the predicted class.
	Confidence float64
}

var _ ports.ProbabilityModel = ProbabilityThresholdModel{}

// Classes implements ports.ProbabilityModel.
func (m ProbabilityThresholdModel) Classes() []float64 { return []float64{0, 1} }

// PredictProba implements ports.ProbabilityModel.
func (m ProbabilityThresholdModel) PredictProba(x [][]float64) ([][]float64, error) {
	predictions, err := m.Predict(x)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, p := range predictions {
		if p == 1 {
			out[i] = []float64{1 - m.Confidence, m.Confidence}
		} else {
			out[i] = []float64{m.Confidence, 1 - m.Confidence}
		}
	}
	return out, nil
}

// ConstantModel predicts the same value for every row.
type ConstantModel struct{ Value float64 }

// Predict implements ports.Model.
func (m ConstantModel) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.Value
	}
	return out, nil
}

// PanickingModel panics with Message from Predict.
type PanickingModel struct{ Message string }

// Predict implements ports.Model.
func (m PanickingModel) Predict([][]float64) ([]float64, error) { panic(m.Message) }

// PanickingProbabilityModel predicts like its ThresholdModel and panics
// with Message when asked for probabilities.
type PanickingProbabilityModel struct {
	ThresholdModel
	Message string
}

// Classes implements ports.ProbabilityModel.
func (m PanickingProbabilityModel) Classes() []float64 { return []float64{0, 1} }

// PredictProba implements ports.ProbabilityModel.
func (m PanickingProbabilityModel) PredictProba([][]float64) ([][]float64, error) { panic(m.Message) }

// StubMetric is a ports.Metric returning a fixed raw value.
type StubMetric struct {
	MetricName string
	Raw        float64
	IsNegative bool
	Needs      ports.Requirement
	Err        error
}

var _ ports.Metric = StubMetric{}

// Name implements ports.Metric.
func (m StubMetric) Name() string { return m.MetricName }

// Negative implements ports.Metric.
func (m StubMetric) Negative() bool { return m.IsNegative }

// Requires implements ports.Metric.
func (m StubMetric) Requires() ports.Requirement { return m.Needs }

// Compute implements ports.Metric.
func (m StubMetric) Compute(ports.MetricInput) (float64, error) { return m.Raw, m.Err }
