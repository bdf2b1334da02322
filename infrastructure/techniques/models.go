package techniques

import (
	"math"
	"slices"

	"github.com/ahrav/go-recipes/internal/ports"
)

var (
	_ ports.Model               = (*MajorityModel)(nil)
	_ ports.LogProbabilityModel = (*CentroidModel)(nil)
	_ ports.ImportanceModel     = (*CentroidModel)(nil)
	_ ports.DecisionModel       = (*PerceptronModel)(nil)
	_ ports.ImportanceModel     = (*PerceptronModel)(nil)
)

// MajorityModel always predicts the most frequent training class.
type MajorityModel struct {
	Class float64
	width int
}

// Predict returns Class for every row.
func (m *MajorityModel) Predict(x [][]float64) ([]float64, error) {
	if err := checkWidth(x, m.width); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = m.Class
	}
	return out, nil
}

// CentroidModel assigns each sample to the class with the nearest mean.
// Probabilities are a softmax over negative squared distances.
type CentroidModel struct {
	classes     []float64
	centroids   [][]float64
	temperature float64
	importances []float64
}

// Classes returns the class labels in probability column order.
func (m *CentroidModel) Classes() []float64 { return slices.Clone(m.classes) }

// Centroids returns a copy of the class means.
func (m *CentroidModel) Centroids() [][]float64 {
	out := make([][]float64, len(m.centroids))
	for i, c := range m.centroids {
		out[i] = slices.Clone(c)
	}
	return out
}

// FeatureImportances returns the normalized spread of the centroids along
// each feature.
func (m *CentroidModel) FeatureImportances() []float64 { return slices.Clone(m.importances) }

// Predict returns the label of the nearest centroid.
func (m *CentroidModel) Predict(x [][]float64) ([]float64, error) {
	dist, err := m.distances(x)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, d := range dist {
		out[i] = m.classes[argmin(d)]
	}
	return out, nil
}

// PredictProba returns one probability row per sample.
func (m *CentroidModel) PredictProba(x [][]float64) ([][]float64, error) {
	logp, err := m.PredictLogProba(x)
	if err != nil {
		return nil, err
	}
	for _, row := range logp {
		for k, v := range row {
			row[k] = math.Exp(v)
		}
	}
	return logp, nil
}

// PredictLogProba returns one log-probability row per sample.
func (m *CentroidModel) PredictLogProba(x [][]float64) ([][]float64, error) {
	dist, err := m.distances(x)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, d := range dist {
		logits := make([]float64, len(d))
		top := math.Inf(-1)
		for k, v := range d {
			logits[k] = -v / m.temperature
			top = max(top, logits[k])
		}
		var sum float64
		for _, l := range logits {
			sum += math.Exp(l - top)
		}
		norm := top + math.Log(sum)
		for k := range logits {
			logits[k] -= norm
		}
		out[i] = logits
	}
	return out, nil
}

// distances returns squared distances from every sample to every centroid.
func (m *CentroidModel) distances(x [][]float64) ([][]float64, error) {
	if len(m.centroids) == 0 {
		return nil, ports.ErrNotFitted
	}
	if err := checkWidth(x, len(m.centroids[0])); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		d := make([]float64, len(m.centroids))
		for k, c := range m.centroids {
			for j, v := range row {
				diff := v - c[j]
				d[k] += diff * diff
			}
		}
		out[i] = d
	}
	return out, nil
}

// PerceptronModel is a binary linear classifier.
type PerceptronModel struct {
	classes [2]float64
	weights []float64
	bias    float64
}

// Weights returns a copy of the learned coefficients.
func (m *PerceptronModel) Weights() []float64 { return slices.Clone(m.weights) }

// Bias returns the learned intercept.
func (m *PerceptronModel) Bias() float64 { return m.bias }

// DecisionFunction returns w·x + b per sample. Positive scores favour the
// larger class label.
func (m *PerceptronModel) DecisionFunction(x [][]float64) ([]float64, error) {
	if m.weights == nil {
		return nil, ports.ErrNotFitted
	}
	if err := checkWidth(x, len(m.weights)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.score(row)
	}
	return out, nil
}

// Predict thresholds the decision function at zero.
func (m *PerceptronModel) Predict(x [][]float64) ([]float64, error) {
	scores, err := m.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	for i, s := range scores {
		if s > 0 {
			scores[i] = m.classes[1]
		} else {
			scores[i] = m.classes[0]
		}
	}
	return scores, nil
}

// FeatureImportances returns the normalized absolute coefficients.
func (m *PerceptronModel) FeatureImportances() []float64 { return normalizeSum(m.weights) }

func (m *PerceptronModel) score(row []float64) float64 {
	s := m.bias
	for j, v := range row {
		s += m.weights[j] * v
	}
	return s
}

func argmin(values []float64) int {
	best := 0
	for i, v := range values {
		if v < values[best] {
			best = i
		}
	}
	return best
}
