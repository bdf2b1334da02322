package evaluators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

func metricByName(t *testing.T, name string) ports.Metric {
	t.Helper()
	for _, m := range Metrics() {
		if m.Name() == name {
			return m
		}
	}
	t.Fatalf("metric %q not registered", name)
	return nil
}

func TestMetrics(t *testing.T) {
	// actual:    1 1 1 1 0 0 0 0
	// predicted: 1 1 1 0 1 0 0 0  -> tp=3 fn=1 fp=1 tn=3
	binary := ports.MetricInput{
		Actual:        []float64{1, 1, 1, 1, 0, 0, 0, 0},
		Predicted:     []float64{1, 1, 1, 0, 1, 0, 0, 0},
		Probabilities: []float64{0.9, 0.8, 0.7, 0.4, 0.6, 0.3, 0.2, 0.1},
		Scores:        []float64{2, 1, 0.5, -0.5, 0.5, -1, -2, -3},
	}
	regression := ports.MetricInput{
		Actual:    []float64{3, -0.5, 2, 7},
		Predicted: []float64{2.5, 0, 2, 8},
	}

	tests := []struct {
		name     string
		in       ports.MetricInput
		want     float64
		negative bool
	}{
		{"accuracy", binary, 0.75, false},
		{"balanced_accuracy", binary, 0.75, false},
		{"precision", binary, 0.75, false},
		{"recall", binary, 0.75, false},
		{"f1", binary, 0.75, false},
		{"fbeta", binary, 0.75, false},
		{"jaccard", binary, 0.6, false},
		{"matthews", binary, 0.5, false},
		{"hamming_loss", binary, 0.25, true},
		{"zero_one_loss", binary, 0.25, true},
		{"brier_loss", binary, (0.01 + 0.04 + 0.09 + 0.36 + 0.36 + 0.09 + 0.04 + 0.01) / 8, true},
		{"roc_auc", binary, 15.0 / 16, false},
		{"hinge_loss", binary, (0 + 0 + 0.5 + 1.5 + 1.5 + 0 + 0 + 0) / 8, true},
		{"r2", regression, 0.9486081370449679, false},
		{"explained_variance", regression, 0.9571734475374732, false},
		{"mean_absolute_error", regression, 0.5, true},
		{"mean_squared_error", regression, 0.375, true},
		{"max_error", regression, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metricByName(t, tt.name)
			got, err := m.Compute(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.negative, m.Negative())
		})
	}
}

func TestLogLoss(t *testing.T) {
	in := ports.MetricInput{
		Actual:        []float64{1, 0},
		Predicted:     []float64{1, 0},
		Probabilities: []float64{0.8, 0.2},
	}
	got, err := metricByName(t, "log_loss").Compute(in)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.8), got, 1e-12)
}

func TestMetricRequirements(t *testing.T) {
	tests := []struct {
		name string
		want ports.Requirement
	}{
		{"accuracy", ports.RequiresPredictions},
		{"brier_loss", ports.RequiresProbabilities},
		{"log_loss", ports.RequiresProbabilities},
		{"roc_auc", ports.RequiresProbabilities},
		{"hinge_loss", ports.RequiresScores},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, metricByName(t, tt.name).Requires())
		})
	}
}

func TestMetricErrors(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		in     ports.MetricInput
		want   error
	}{
		{"empty", "accuracy", ports.MetricInput{}, ports.ErrEmptyData},
		{"misaligned predictions", "accuracy",
			ports.MetricInput{Actual: []float64{1, 0}, Predicted: []float64{1}}, ports.ErrLengthMismatch},
		{"misaligned probabilities", "brier_loss",
			ports.MetricInput{Actual: []float64{1, 0}, Predicted: []float64{1, 0}, Probabilities: []float64{0.5}},
			ports.ErrLengthMismatch},
		{"single class auc", "roc_auc",
			ports.MetricInput{Actual: []float64{1, 1}, Predicted: []float64{1, 1}, Probabilities: []float64{0.4, 0.6}},
			ports.ErrUndefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metricByName(t, tt.metric).Compute(tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMacroAverage(t *testing.T) {
	in := ports.MetricInput{
		Actual:    []float64{0, 1, 2, 2},
		Predicted: []float64{0, 2, 2, 2},
	}
	// Per class precision: 0 -> 1, 1 -> 0 (no predictions), 2 -> 2/3.
	got, err := metricByName(t, "precision").Compute(in)
	require.NoError(t, err)
	assert.InDelta(t, (1+0+2.0/3)/3, got, 1e-9)
}

func TestMetricNamesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range Metrics() {
		assert.False(t, seen[m.Name()], m.Name())
		seen[m.Name()] = true
	}
	assert.Len(t, seen, 19)
}

// importanceModel predicts the sign of the first feature and reports fixed
// importances.
type importanceModel struct{ importances []float64 }

func (m importanceModel) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		if row[0] > 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (m importanceModel) FeatureImportances() []float64 { return m.importances }

type plainModel struct{}

func (plainModel) Predict(x [][]float64) ([]float64, error) {
	return nil, errors.New("boom")
}

func TestGini(t *testing.T) {
	features := []string{"a", "b"}

	exp, err := NewGini().Explain(context.Background(), importanceModel{importances: []float64{0.7, 0.3}}, domain.Partition{}, features)
	require.NoError(t, err)
	assert.Equal(t, features, exp.Features)
	assert.Equal(t, []float64{0.7, 0.3}, exp.Values)

	_, err = NewGini().Explain(context.Background(), plainModel{}, domain.Partition{}, features)
	require.ErrorIs(t, err, ports.ErrMissingInput)

	_, err = NewGini().Explain(context.Background(), importanceModel{importances: []float64{1}}, domain.Partition{}, features)
	require.ErrorIs(t, err, ports.ErrLengthMismatch)
}

func TestPermutation(t *testing.T) {
	data := domain.Partition{
		X: [][]float64{{1, 0}, {2, 0}, {3, 0}, {-1, 0}, {-2, 0}, {-3, 0}},
		Y: []float64{1, 1, 1, 0, 0, 0},
	}
	features := []string{"signal", "noise"}
	perm, err := NewPermutation(PermutationConfig{Repeats: 10, Seed: 1})
	require.NoError(t, err)

	exp, err := perm.Explain(context.Background(), importanceModel{}, data, features)
	require.NoError(t, err)
	assert.Greater(t, exp.Values[0], 0.0, "shuffling the signal hurts accuracy")
	assert.Equal(t, 0.0, exp.Values[1], "shuffling a constant column changes nothing")

	again, err := perm.Explain(context.Background(), importanceModel{}, data, features)
	require.NoError(t, err)
	assert.Equal(t, exp, again)

	_, err = perm.Explain(context.Background(), plainModel{}, data, features)
	require.Error(t, err)

	_, err = NewPermutation(PermutationConfig{Repeats: 0})
	require.Error(t, err)
}

func TestPermutationConfigure(t *testing.T) {
	perm, err := NewPermutation(DefaultPermutationConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"repeats", "seed"}, perm.Parameters())

	tests := []struct {
		name    string
		params  map[string]any
		want    PermutationConfig
		wantErr bool
	}{
		{name: "defaults kept", params: nil, want: DefaultPermutationConfig()},
		{name: "repeats only", params: map[string]any{"repeats": 2}, want: PermutationConfig{Repeats: 2, Seed: 43}},
		{name: "seed only", params: map[string]any{"seed": int64(7)}, want: PermutationConfig{Repeats: 5, Seed: 7}},
		{name: "repeats out of range", params: map[string]any{"repeats": 0}, wantErr: true},
		{name: "repeats not a number", params: map[string]any{"repeats": "many"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configured, err := perm.Configure(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			got, ok := configured.(*Permutation)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Config())
		})
	}
	assert.Equal(t, DefaultPermutationConfig(), perm.Config(), "the receiver is unchanged")

	data := domain.Partition{
		X: [][]float64{{1, 5}, {2, -4}, {3, 2}, {-1, -3}, {-2, 1}, {-3, 0}},
		Y: []float64{1, 1, 1, 0, 0, 0},
	}
	features := []string{"signal", "noise"}
	configured, err := perm.Configure(map[string]any{"repeats": 3, "seed": int64(11)})
	require.NoError(t, err)
	direct, err := NewPermutation(PermutationConfig{Repeats: 3, Seed: 11})
	require.NoError(t, err)

	got, err := configured.Explain(context.Background(), importanceModel{}, data, features)
	require.NoError(t, err)
	want, err := direct.Explain(context.Background(), importanceModel{}, data, features)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFeatureRanker(t *testing.T) {
	review := domain.With(domain.NewState(), domain.KeyExplanations, []domain.Explanation{
		{Technique: "gini", Features: []string{"a", "b", "c"}, Values: []float64{0.1, -0.7, 0.2}},
	})
	fields, err := NewFeatureRanker().Rank(context.Background(), review, nil)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, domain.Field{Name: "rank_gini_1", Value: domain.Text("b")}, fields[0])
	assert.Equal(t, domain.Field{Name: "rank_gini_2", Value: domain.Text("c")}, fields[1])
	assert.Equal(t, domain.Field{Name: "rank_gini_3", Value: domain.Text("a")}, fields[2])

	fields, err = NewFeatureRanker().Rank(context.Background(), domain.NewState(), nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestOutcomeRanker(t *testing.T) {
	review := domain.With(domain.NewState(), domain.KeyPredictions, []float64{1, 0, 1, 1})
	fields, err := NewOutcomeRanker().Rank(context.Background(), review, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Field{
		{Name: "outcome_0_share", Value: domain.Number(0.25)},
		{Name: "outcome_1_share", Value: domain.Number(0.75)},
	}, fields)

	_, err = NewOutcomeRanker().Rank(context.Background(), domain.NewState(), nil)
	require.ErrorIs(t, err, ports.ErrMissingInput)
}

func reviewOf(actual, predicted []float64) domain.State {
	return domain.NewState().WithMultiple(map[string]any{
		domain.KeyActual.Name():      actual,
		domain.KeyPredictions.Name(): predicted,
	})
}

func TestConfusionRanker(t *testing.T) {
	fields, err := NewConfusionRanker().Rank(context.Background(),
		reviewOf([]float64{0, 0, 1, 1, 2}, []float64{0, 1, 1, 1, 0}), nil)
	require.NoError(t, err)

	got := make(map[string]float64, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := f.Value.Float()
		require.True(t, ok)
		got[f.Name] = v
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"confusion_0_0", "confusion_0_1", "confusion_0_2",
		"confusion_1_0", "confusion_1_1", "confusion_1_2",
		"confusion_2_0", "confusion_2_1", "confusion_2_2",
	}, names)
	assert.Equal(t, 1.0, got[ConfusionField(0, 0)])
	assert.Equal(t, 1.0, got[ConfusionField(0, 1)])
	assert.Equal(t, 2.0, got[ConfusionField(1, 1)])
	assert.Equal(t, 1.0, got[ConfusionField(2, 0)])
	assert.Equal(t, 0.0, got[ConfusionField(2, 2)])
}

func TestClassificationRanker(t *testing.T) {
	fields, err := NewClassificationRanker().Rank(context.Background(),
		reviewOf([]float64{1, 1, 0, 0}, []float64{1, 0, 0, 0}), nil)
	require.NoError(t, err)
	require.Len(t, fields, 8)

	got := make(map[string]float64, len(fields))
	for _, f := range fields {
		got[f.Name], _ = f.Value.Float()
	}
	tests := []struct {
		class float64
		stat  string
		want  float64
	}{
		{0, "precision", 2.0 / 3},
		{0, "recall", 1},
		{0, "f1", 0.8},
		{0, "support", 2},
		{1, "precision", 1},
		{1, "recall", 0.5},
		{1, "f1", 2.0 / 3},
		{1, "support", 2},
	}
	for _, tt := range tests {
		name := ClassField(tt.class, tt.stat)
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, tt.want, got[name], 1e-12)
		})
	}
}

func TestLabelRankersNeedPredictions(t *testing.T) {
	tests := []struct {
		name   string
		review domain.State
		want   error
	}{
		{"empty review", domain.NewState(), ports.ErrMissingInput},
		{"predictions only", domain.With(domain.NewState(), domain.KeyPredictions, []float64{1}), ports.ErrMissingInput},
		{"length mismatch", reviewOf([]float64{1, 0}, []float64{1}), ports.ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, r := range []ports.Ranker{NewConfusionRanker(), NewClassificationRanker()} {
				_, err := r.Rank(context.Background(), tt.review, nil)
				require.ErrorIs(t, err, tt.want, r.Name())
			}
		})
	}
}
