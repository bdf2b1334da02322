package application

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
	"github.com/ahrav/go-recipes/internal/testutils"
)

// executedRecipe returns an EXECUTED recipe holding model and in.
func executedRecipe(t *testing.T, index int, model ports.Model, in domain.Ingredients) *domain.Recipe {
	t.Helper()
	recipe := domain.NewRecipe(index, steps("scaler", "none", "modeler", "stub"))
	require.NoError(t, recipe.Transition(domain.StatusExecuting))
	recipe.Results.Ingredients = &in
	if model != nil {
		recipe.Results.Model = model
	}
	require.NoError(t, recipe.Transition(domain.StatusExecuted))
	return recipe
}

func criticSettings(metrics ...string) CriticSettings {
	cfg := defaultCriticSettings()
	cfg.Metrics = metrics
	if len(metrics) > 0 {
		cfg.PrimaryMetric = metrics[0]
	}
	return cfg
}

var confident = testutils.ProbabilityThresholdModel{
	ThresholdModel: testutils.ThresholdModel{Column: 0, Threshold: 5},
	Confidence:     0.8,
}

func TestCritic_Review(t *testing.T) {
	cfg := criticSettings("accuracy", "brier_loss", "roc_auc")
	cfg.Explainers = []string{"permutation"}
	obs := &testutils.RecordingObserver{}
	metrics := testutils.NewRecordingMetrics()
	critic, err := NewCritic(cfg, NewDefaultCriticCatalog(),
		WithCriticObserver(obs), WithCriticMetrics(metrics))
	require.NoError(t, err)

	recipe := executedRecipe(t, 4, confident, testutils.SmallDataset())
	ctx := WithRunID(context.Background(), "run-7")
	require.NoError(t, critic.Review(ctx, recipe))

	assert.Equal(t, domain.StatusScored, recipe.Status())
	row := recipe.Results.Row
	require.NotNil(t, row)

	number := func(name string) float64 {
		v, ok := row.Get(name).Float()
		require.True(t, ok, "%s is numeric", name)
		return v
	}
	assert.Equal(t, 4.0, number(domain.ColumnRecipe))
	assert.Equal(t, "scored", row.Get(domain.ColumnStatus).String())
	assert.Equal(t, "none", row.Get("scaler").String())
	assert.Equal(t, 4.0, number(FieldReviewedRows))
	assert.Equal(t, "probabilities", row.Get(FieldProbabilitySource).String())
	assert.InDelta(t, 0.5, number(FieldMeanProbability), 1e-12)
	assert.True(t, row.Get(FieldMeanDecisionScore).IsAbsent())
	assert.Equal(t, 1.0, number("accuracy"))
	assert.InDelta(t, -0.04, number("brier_loss"), 1e-12, "losses are reported with inverted sign")
	assert.Equal(t, 1.0, number("roc_auc"))
	assert.Greater(t, number(ExplanationField("permutation", "a")), 0.0)
	assert.Equal(t, 0.0, number(ExplanationField("permutation", "b")))
	assert.Equal(t, "a", row.Get("rank_permutation_1").String())
	assert.InDelta(t, 0.5, number("outcome_1_share"), 1e-12)
	assert.Equal(t, 0.0, number(FieldDegraded), "log-probabilities and scores are optional")

	review := recipe.Results.Review
	rc, ok := review.GetReviewContext()
	require.True(t, ok)
	assert.Equal(t, domain.ReviewContext{RunID: "run-7", RecipeIndex: 4, DataToReview: domain.SplitTest}, rc)
	measurements, ok := domain.Get(review, domain.KeyMeasurements)
	require.True(t, ok)
	assert.InDelta(t, -0.04, measurements["brier_loss"], 1e-12)

	assert.Equal(t, domain.CriticStages, obs.Stages(4), "critic stages run in fixed order")
	assert.Len(t, metrics.Histogram(ports.MetricScore), 3)
}

func TestCritic_DegradedProbabilityFields(t *testing.T) {
	cfg := criticSettings("accuracy", "f1", "brier_loss", "log_loss", "hinge_loss")
	cfg.Explainers = []string{"gini"}
	metrics := testutils.NewRecordingMetrics()
	critic, err := NewCritic(cfg, NewDefaultCriticCatalog(), WithCriticMetrics(metrics))
	require.NoError(t, err)

	model := testutils.ThresholdModel{Column: 0, Threshold: 5}
	recipe := executedRecipe(t, 0, model, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))

	assert.Equal(t, domain.StatusScored, recipe.Status(), "degradation never fails a recipe")
	row := recipe.Results.Row

	for _, name := range []string{
		"brier_loss", "log_loss", "hinge_loss",
		FieldProbabilitySource, FieldMeanProbability, FieldMeanDecisionScore,
		ExplanationField("gini", "a"), ExplanationField("gini", "b"),
	} {
		assert.True(t, row.Has(name), "%s is a column", name)
		assert.True(t, row.Get(name).IsAbsent(), "%s is absent", name)
	}
	for _, name := range []string{"accuracy", "f1"} {
		v, ok := row.Get(name).Float()
		assert.True(t, ok, "%s does not need probabilities", name)
		assert.Equal(t, 1.0, v)
	}

	degradations := recipe.Results.Review.Degradations()
	stages := make(map[string]int)
	for _, d := range degradations {
		stages[d.Stage]++
	}
	assert.Equal(t, map[string]int{"oddsmaker": 1, "explainer": 1, "measurer": 3}, stages)
	degraded, _ := row.Get(FieldDegraded).Float()
	assert.Equal(t, float64(len(degradations)), degraded)
	assert.Equal(t, float64(len(degradations)), metrics.Counter(ports.MetricDegraded, ""))
}

func TestCritic_NegativeMetricIsInverted(t *testing.T) {
	catalog := NewCriticCatalog()
	require.NoError(t, catalog.RegisterMetric(testutils.StubMetric{MetricName: "loss", Raw: -0.25, IsNegative: true}))
	require.NoError(t, catalog.RegisterMetric(testutils.StubMetric{MetricName: "gain", Raw: -0.25}))

	critic, err := NewCritic(criticSettings("loss", "gain"), catalog)
	require.NoError(t, err)
	recipe := executedRecipe(t, 0, testutils.ConstantModel{Value: 1}, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))

	loss, ok := recipe.Results.Row.Get("loss").Float()
	require.True(t, ok)
	assert.Equal(t, 0.25, loss)
	gain, _ := recipe.Results.Row.Get("gain").Float()
	assert.Equal(t, -0.25, gain)
}

func TestCritic_MetricFailuresAreIsolated(t *testing.T) {
	catalog := NewCriticCatalog()
	require.NoError(t, catalog.RegisterMetric(testutils.StubMetric{MetricName: "broken", Err: errors.New("no")}))
	require.NoError(t, catalog.RegisterMetric(testutils.StubMetric{MetricName: "nan", Raw: math.NaN()}))
	require.NoError(t, catalog.RegisterMetric(testutils.StubMetric{MetricName: "fine", Raw: 0.5}))

	critic, err := NewCritic(criticSettings("broken", "nan", "fine"), catalog)
	require.NoError(t, err)
	recipe := executedRecipe(t, 0, testutils.ConstantModel{}, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))

	row := recipe.Results.Row
	assert.True(t, row.Get("broken").IsAbsent())
	assert.True(t, row.Get("nan").IsAbsent())
	fine, _ := row.Get("fine").Float()
	assert.Equal(t, 0.5, fine)
}

func TestCritic_MissingModelOrData(t *testing.T) {
	critic, err := NewCritic(criticSettings("accuracy"), NewDefaultCriticCatalog())
	require.NoError(t, err)

	t.Run("no model", func(t *testing.T) {
		recipe := executedRecipe(t, 0, nil, testutils.SmallDataset())
		require.NoError(t, critic.Review(context.Background(), recipe))
		assert.True(t, recipe.Results.Row.Get("accuracy").IsAbsent())
		assert.Equal(t, "predictor", recipe.Results.Review.Degradations()[0].Stage)
	})

	t.Run("unsplit data", func(t *testing.T) {
		in := testutils.MustDataset(testutils.DefaultDatasetConfig())
		recipe := executedRecipe(t, 1, testutils.ConstantModel{}, in)
		require.NoError(t, critic.Review(context.Background(), recipe))
		rows, _ := recipe.Results.Row.Get(FieldReviewedRows).Float()
		assert.Equal(t, 0.0, rows)
		assert.Contains(t, recipe.Results.Review.Degradations()[0].Reason, "test partition is empty")
	})
}

func TestCritic_DataToReview(t *testing.T) {
	cfg := criticSettings("accuracy")
	cfg.DataToReview = "train"
	critic, err := NewCritic(cfg, NewDefaultCriticCatalog())
	require.NoError(t, err)

	recipe := executedRecipe(t, 0, testutils.ThresholdModel{Column: 0, Threshold: 5}, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))
	rows, _ := recipe.Results.Row.Get(FieldReviewedRows).Float()
	assert.Equal(t, 6.0, rows)
}

func TestNewCritic_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CriticSettings)
		want   string
	}{
		{"unknown split", func(c *CriticSettings) { c.DataToReview = "holdout" }, "critic.data_to_review"},
		{"unknown explainer", func(c *CriticSettings) { c.Explainers = []string{"shap"} }, "explainer shap"},
		{"unknown ranker", func(c *CriticSettings) { c.Rankers = []string{"top"} }, "ranker top"},
		{"unknown metric", func(c *CriticSettings) { c.Metrics = []string{"acc"} }, "measurer acc"},
		{"primary not measured", func(c *CriticSettings) { c.PrimaryMetric = "f1" }, "critic.primary_metric f1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := criticSettings("accuracy")
			tt.mutate(&cfg)
			_, err := NewCritic(cfg, NewDefaultCriticCatalog())
			var cerr *domain.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.want, cerr.Subject)
		})
	}
}

func TestCritic_RequiresExecutedRecipe(t *testing.T) {
	critic, err := NewCritic(criticSettings("accuracy"), NewDefaultCriticCatalog())
	require.NoError(t, err)

	err = critic.Review(context.Background(), domain.NewRecipe(0, nil))
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCritic_Cancellation(t *testing.T) {
	critic, err := NewCritic(criticSettings("accuracy"), NewDefaultCriticCatalog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recipe := executedRecipe(t, 0, confident, testutils.SmallDataset())
	err = critic.Review(ctx, recipe)

	var failure *domain.StageFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Cancelled())
	assert.Equal(t, domain.StagePredictor, failure.Stage)
	assert.Equal(t, domain.StatusFailed, recipe.Status())
	assert.Nil(t, recipe.Results.Row)
}

// panickyExplainer panics on every call.
type panickyExplainer struct{}

func (panickyExplainer) Name() string { return "panicky" }

func (panickyExplainer) Explain(context.Context, ports.Model, domain.Partition, []string) (domain.Explanation, error) {
	panic("explainer bug")
}

func TestCritic_ExplainerPanicIsIsolated(t *testing.T) {
	catalog := NewDefaultCriticCatalog()
	require.NoError(t, catalog.RegisterExplainer(panickyExplainer{}))
	cfg := criticSettings("accuracy")
	cfg.Explainers = []string{"panicky", "permutation"}

	critic, err := NewCritic(cfg, catalog)
	require.NoError(t, err)
	recipe := executedRecipe(t, 0, confident, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))

	row := recipe.Results.Row
	assert.True(t, row.Get(ExplanationField("panicky", "a")).IsAbsent())
	_, ok := row.Get(ExplanationField("permutation", "a")).Float()
	assert.True(t, ok)
	assert.Contains(t, recipe.Results.Review.Degradations()[0].Reason, "panic: explainer bug")
}

func TestCritic_ModelPanicsDegrade(t *testing.T) {
	tests := []struct {
		name         string
		model        ports.Model
		wantStage    string
		wantTech     string
		wantAccuracy bool
	}{
		{
			name:      "predict",
			model:     testutils.PanickingModel{Message: "predict bug"},
			wantStage: domain.StagePredictor,
		},
		{
			name: "predict proba",
			model: testutils.PanickingProbabilityModel{
				ThresholdModel: testutils.ThresholdModel{Column: 0, Threshold: 5},
				Message:        "proba bug",
			},
			wantStage:    domain.StageOddsmaker,
			wantTech:     "probabilities",
			wantAccuracy: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := testutils.NewRecordingMetrics()
			critic, err := NewCritic(criticSettings("accuracy"), NewDefaultCriticCatalog(), WithCriticMetrics(metrics))
			require.NoError(t, err)

			recipe := executedRecipe(t, 0, tt.model, testutils.SmallDataset())
			require.NoError(t, critic.Review(context.Background(), recipe))
			assert.Equal(t, domain.StatusScored, recipe.Status())

			degradations := recipe.Results.Review.Degradations()
			require.NotEmpty(t, degradations)
			assert.Equal(t, tt.wantStage, degradations[0].Stage)
			assert.Equal(t, tt.wantTech, degradations[0].Technique)
			assert.Contains(t, degradations[0].Reason, "panic: ")

			_, ok := recipe.Results.Row.Get("accuracy").Float()
			assert.Equal(t, tt.wantAccuracy, ok)
			degraded, _ := recipe.Results.Row.Get(FieldDegraded).Float()
			assert.Positive(t, degraded)

			var status string
			for _, s := range metrics.Latencies(ports.MetricStageLatency) {
				if s.Labels["stage"] == tt.wantStage {
					status = s.Labels["status"]
				}
			}
			assert.Equal(t, "degraded", status)
		})
	}
}

func TestCritic_LatencyLabels(t *testing.T) {
	metrics := testutils.NewRecordingMetrics()
	cfg := criticSettings("accuracy", "f1")
	cfg.Explainers = nil
	cfg.Rankers = []string{"outcomes"}
	critic, err := NewCritic(cfg, NewDefaultCriticCatalog(), WithCriticMetrics(metrics))
	require.NoError(t, err)

	recipe := executedRecipe(t, 0, testutils.ThresholdModel{Column: 0, Threshold: 5}, testutils.SmallDataset())
	require.NoError(t, critic.Review(context.Background(), recipe))

	got := make(map[string]map[string]string)
	for _, s := range metrics.Latencies(ports.MetricStageLatency) {
		got[s.Labels["stage"]] = s.Labels
	}
	tests := []struct {
		stage      string
		wantTech   string
		wantStatus string
	}{
		{domain.StagePredictor, "predictor", "ok"},
		{domain.StageOddsmaker, "oddsmaker", "degraded"},
		{domain.StageExplainer, "none", "ok"},
		{domain.StageRanker, "outcomes", "ok"},
		{domain.StageMeasurer, "accuracy,f1", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			labels, ok := got[tt.stage]
			require.True(t, ok)
			assert.Equal(t, tt.wantTech, labels["technique"])
			assert.Equal(t, tt.wantStatus, labels["status"])
		})
	}
}
