package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recipes/infrastructure/evaluators"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/testutils"
)

func newProject(t *testing.T, yaml string, opts ...ProjectOption) *Project {
	t.Helper()
	settings, err := ParseSettings([]byte(yaml))
	require.NoError(t, err)
	project, err := NewProject(settings, append([]ProjectOption{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	return project
}

const scalerProject = `
general:
  seed: 7
  workers: 2
chef:
  chef_steps: [scaler, modeler]
  scaler_techniques: [standard, minmax]
  modeler_techniques: centroid
critic:
  data_to_review: full
  measurer_techniques: [accuracy, f1, log_loss]
  explainer_techniques: [gini]
`

func TestProject_Run(t *testing.T) {
	obs := &testutils.RecordingObserver{}
	metrics := testutils.NewRecordingMetrics()
	project := newProject(t, scalerProject,
		WithObserver(obs), WithMetrics(metrics), WithRunIDs(func() string { return "e2e" }))
	assert.Equal(t, 2, project.Plan().Len())
	assert.Equal(t, "accuracy", project.Review().PrimaryMetric)
	assert.Equal(t, int64(7), project.General().Seed)

	source := testutils.MustDataset(testutils.DefaultDatasetConfig())
	report, err := project.Run(context.Background(), source)
	require.NoError(t, err)
	require.Equal(t, 2, report.Len())
	assert.Equal(t, "e2e", report.RunID())

	columns := report.Columns()
	assert.Equal(t, []string{"recipe", "status", "scaler", "modeler"}, columns[:4])
	for _, name := range []string{"accuracy", "f1", "log_loss", FieldMeanProbability, ExplanationField("gini", "f0")} {
		assert.Contains(t, columns, name)
	}

	for i, recipe := range report.Recipes() {
		assert.Equal(t, i, recipe.Index())
		assert.Equal(t, domain.StatusScored, recipe.Status())
		assert.NotNil(t, recipe.Results.Model)
		assert.Equal(t, append([]string{"scaler", "modeler"}, domain.CriticStages...), obs.Stages(i))

		row := recipe.Results.Row
		logLoss, ok := row.Get("log_loss").Float()
		require.True(t, ok)
		assert.LessOrEqual(t, logLoss, 0.0, "losses are reported with inverted sign")
		accuracy, _ := row.Get("accuracy").Float()
		assert.Greater(t, accuracy, 0.8, "separated blobs are easy for centroids")
		_, ok = row.Get(ExplanationField("gini", "f1")).Float()
		assert.True(t, ok)
		degraded, _ := row.Get(FieldDegraded).Float()
		assert.Equal(t, 0.0, degraded)
	}

	row, _ := report.Row(1)
	assert.Equal(t, "minmax", row.Get("scaler").String())
	assert.Equal(t, 2.0, metrics.Counter("recipe_outcome", "scored"))

	verdict, err := project.Best(report)
	require.NoError(t, err)
	assert.Equal(t, "accuracy", verdict.Metric)
	assert.Equal(t, 2, verdict.Candidates)
}

const fullChefProject = `
general:
  seed: 11
  parallelize: false
chef:
  chef_steps: splitter, sampler, reducer, modeler
  splitter_techniques: train_test
  sampler_techniques: [none, oversample]
  reducer_techniques: variance_threshold
  modeler_techniques: [majority, perceptron]
critic:
  measurer_techniques: [accuracy, hinge_loss]
  explainer_techniques: [permutation]
train_test_parameters:
  test_size: 0.3
perceptron_parameters:
  epochs: 200
`

func TestProject_FullChef(t *testing.T) {
	project := newProject(t, fullChefProject)
	require.Equal(t, 4, project.Plan().Len())
	assert.Equal(t, 1, project.runner.Workers())

	cfg := testutils.DefaultDatasetConfig()
	cfg.ConstantFeatures = 1
	cfg.Imbalance = 0.7
	source := testutils.MustDataset(cfg)

	report, err := project.Run(context.Background(), source)
	require.NoError(t, err)
	require.Empty(t, report.Failures())

	assert.NotContains(t, report.Columns(), ExplanationField("permutation", "const0"),
		"dropped features are not explained")
	assert.Contains(t, report.Columns(), ExplanationField("permutation", "f0"))

	tests := []struct {
		index     int
		sampler   string
		modeler   string
		wantHinge bool
	}{
		{0, "none", "majority", false},
		{1, "none", "perceptron", true},
		{2, "oversample", "majority", false},
		{3, "oversample", "perceptron", true},
	}
	for _, tt := range tests {
		t.Run(tt.sampler+"/"+tt.modeler, func(t *testing.T) {
			row, ok := report.Row(tt.index)
			require.True(t, ok)
			assert.Equal(t, tt.sampler, row.Get("sampler").String())
			assert.Equal(t, tt.modeler, row.Get("modeler").String())
			assert.Equal(t, "variance_threshold", row.Get("reducer").String())

			hinge, ok := row.Get("hinge_loss").Float()
			assert.Equal(t, tt.wantHinge, ok, "hinge loss needs decision scores")
			if ok {
				assert.LessOrEqual(t, hinge, 0.0)
			}
			_, ok = row.Get("accuracy").Float()
			assert.True(t, ok)
		})
	}

	recipe, _ := report.Recipe(3)
	assert.Equal(t, []string{"f0", "f1", "f2"}, recipe.Results.Ingredients.Schema.Features)
	assert.Equal(t, []string{"const0"}, recipe.Results.Ingredients.Dropped)
}

func TestNewProject_Errors(t *testing.T) {
	base := func(chef, critic string) string {
		return "chef:\n" + chef + "critic:\n" + critic
	}
	const twoScalers = "  chef_steps: [scaler, modeler]\n  scaler_techniques: [minmax, standard]\n  modeler_techniques: centroid\n"
	const accuracy = "  measurer_techniques: [accuracy]\n"

	tests := []struct {
		name           string
		yaml           string
		wantSubject    string
		wantSuggestion string
	}{
		{
			name:           "technique typo",
			yaml:           base("  chef_steps: [scaler]\n  scaler_techniques: [minmx]\n", accuracy),
			wantSubject:    "technique scaler/minmx",
			wantSuggestion: "minmax",
		},
		{
			name:           "stage typo",
			yaml:           base("  chef_steps: [scalar]\n  scalar_techniques: [minmax]\n", accuracy),
			wantSubject:    "stage scalar",
			wantSuggestion: "scaler",
		},
		{
			name:           "metric typo",
			yaml:           base(twoScalers, "  measurer_techniques: [acuracy]\n"),
			wantSubject:    "measurer acuracy",
			wantSuggestion: "accuracy",
		},
		{
			name:        "primary metric not measured",
			yaml:        base(twoScalers, accuracy+"  primary_metric: f1\n"),
			wantSubject: "critic.primary_metric f1",
		},
		{
			name:           "review split without splitter",
			yaml:           base(twoScalers, accuracy),
			wantSubject:    "critic.data_to_review test",
			wantSuggestion: "full",
		},
		{
			name:           "review split with only the none splitter",
			yaml:           base("  chef_steps: [splitter, modeler]\n  splitter_techniques: none\n  modeler_techniques: centroid\n", "  data_to_review: validation\n"+accuracy),
			wantSubject:    "critic.data_to_review validation",
			wantSuggestion: "full",
		},
		{
			name:        "explainer option out of range",
			yaml:        base(twoScalers, "  data_to_review: full\n  explainer_techniques: [permutation]\n"+accuracy) + "permutation_parameters:\n  repeats: 0\n",
			wantSubject: "explainer permutation",
		},
		{
			name:           "explainer option typo",
			yaml:           base(twoScalers, "  data_to_review: full\n  explainer_techniques: [permutation]\n"+accuracy) + "permutation_parameters:\n  repeat: 2\n",
			wantSubject:    "explainer permutation",
		},
		{
			name:        "too many recipes",
			yaml:        "general:\n  max_recipes: 1\n" + base(twoScalers, accuracy),
			wantSubject: "plan",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := ParseSettings([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = NewProject(settings, WithLogger(discardLogger()))
			var cerr *domain.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantSubject, cerr.Subject)
			assert.Equal(t, tt.wantSuggestion, cerr.Suggestion)
		})
	}

	settings, err := ParseSettings([]byte("general:\n  log_level: loud\n" + base(twoScalers, accuracy)))
	require.NoError(t, err)
	_, err = NewProject(settings)
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "LogLevel")
}

func TestProject_ExplainerParameters(t *testing.T) {
	const head = "general:\n  seed: 21\nchef:\n  chef_steps: [modeler]\n  modeler_techniques: centroid\n" +
		"critic:\n  data_to_review: full\n  explainer_techniques: [permutation]\n"

	tests := []struct {
		name  string
		extra string
		want  evaluators.PermutationConfig
	}{
		{"run seed injected", "", evaluators.PermutationConfig{Repeats: 5, Seed: 21}},
		{"repeats set", "permutation_parameters:\n  repeats: 2\n", evaluators.PermutationConfig{Repeats: 2, Seed: 21}},
		{"explicit seed wins", "permutation_parameters:\n  repeats: 3\n  seed: 99\n", evaluators.PermutationConfig{Repeats: 3, Seed: 99}},
		{"stage options filtered", "explainer_parameters:\n  repeats: 4\n  depth: 2\n", evaluators.PermutationConfig{Repeats: 4, Seed: 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := newProject(t, head+tt.extra)
			require.Len(t, project.Critic().explainers, 1)
			perm, ok := project.Critic().explainers[0].(*evaluators.Permutation)
			require.True(t, ok)
			assert.Equal(t, tt.want, perm.Config())
		})
	}
}

func TestProject_StageParametersWithNone(t *testing.T) {
	project := newProject(t, `
chef:
  chef_steps: [scaler, modeler]
  scaler_techniques: [minmax, none]
  modeler_techniques: centroid
critic:
  data_to_review: full
  measurer_techniques: [accuracy]
scaler_parameters:
  min: 0
  max: 2
`)
	report, err := project.Run(context.Background(), testutils.MustDataset(testutils.DefaultDatasetConfig()))
	require.NoError(t, err)
	require.Empty(t, report.Failures())
	require.Equal(t, 2, report.Len())
	for _, recipe := range report.Recipes() {
		assert.Equal(t, domain.StatusScored, recipe.Status())
	}

	scaled, ok := report.Recipe(0)
	require.True(t, ok)
	assert.Equal(t, "minmax", scaled.Steps()[0].Technique)
	top := 0.0
	for _, row := range scaled.Results.Ingredients.Full.X {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, -1e-9)
			top = max(top, v)
		}
	}
	assert.InDelta(t, 2.0, top, 1e-9, "stage options reach the minmax scaler")
}

const cleaverProject = `
chef:
  chef_steps: [cleaver, modeler]
  cleaver_techniques: [first, rest, all]
  modeler_techniques: centroid
critic:
  data_to_review: full
  measurer_techniques: [accuracy]
  ranker_techniques: [confusion, classification]
cleaver_groups:
  first: [f0]
  rest: "f1, f2"
`

func TestProject_ColumnGroups(t *testing.T) {
	project := newProject(t, cleaverProject)
	require.Equal(t, 3, project.Plan().Len())

	report, err := project.Run(context.Background(), testutils.MustDataset(testutils.DefaultDatasetConfig()))
	require.NoError(t, err)
	require.Empty(t, report.Failures())

	tests := []struct {
		cleaver      string
		wantFeatures []string
	}{
		{"first", []string{"f0"}},
		{"rest", []string{"f1", "f2"}},
		{"all", []string{"f0", "f1", "f2"}},
	}
	for i, tt := range tests {
		t.Run(tt.cleaver, func(t *testing.T) {
			recipe, ok := report.Recipe(i)
			require.True(t, ok)
			assert.Equal(t, domain.StatusScored, recipe.Status())
			assert.Equal(t, tt.cleaver, recipe.Results.Row.Get("cleaver").String())
			assert.Equal(t, tt.wantFeatures, recipe.Results.Ingredients.Schema.Features)

			var total float64
			for _, pair := range [][2]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
				count, ok := recipe.Results.Row.Get(evaluators.ConfusionField(pair[0], pair[1])).Float()
				require.True(t, ok)
				total += count
			}
			assert.Equal(t, 40.0, total, "every reviewed row lands in one cell")
			_, ok = recipe.Results.Row.Get(evaluators.ClassField(1, "f1")).Float()
			assert.True(t, ok)
		})
	}
}
