package application

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recipes/internal/domain"
)

const sampleSettings = `
General:
  Seed: 7
  workers: 2
chef:
  CHEF_STEPS: [Scaler, splitter, modeler]
  scaler_techniques: "normalize, MinMax"
  splitter_techniques: train_test
  modeler_techniques: [centroid]
critic:
  data_to_review: Test
  measurer_techniques: [accuracy, f1]
train_test_parameters:
  test_size: 0.3
modeler_parameters:
  temperature: 2
`

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"general", "chef", "critic", "train_test_parameters", "modeler_parameters"},
		s.Sections())

	general, ok := s.Section("GENERAL")
	require.True(t, ok)
	assert.Equal(t, 7, general["seed"])

	_, ok = s.Section("missing")
	assert.False(t, ok)

	_, err = ParseSettings([]byte("general: [not, a, mapping]"))
	require.Error(t, err)
}

func TestSettings_StepsAndTechniques(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	steps, err := s.Steps(SectionChef)
	require.NoError(t, err)
	assert.Equal(t, []string{"scaler", "splitter", "modeler"}, steps)

	tests := []struct {
		stage string
		want  []string
	}{
		{"scaler", []string{"normalize", "minmax"}},
		{"splitter", []string{"train_test"}},
		{"modeler", []string{"centroid"}},
		{"reducer", nil},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			got, err := s.Techniques(SectionChef, tt.stage)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = s.Steps("critic")
	var cerr *domain.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "critic.critic_steps", cerr.Subject)

	bad := NewSettings(map[string]map[string]any{"chef": {"scaler_techniques": 3}})
	_, err = bad.Techniques(SectionChef, "scaler")
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSettings_Parameters(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	tests := []struct {
		name       string
		stage      string
		technique  string
		want       map[string]any
		wantShared bool
	}{
		{"technique section", "splitter", "train_test", map[string]any{"test_size": 0.3}, false},
		{"stage fallback", "modeler", "centroid", map[string]any{"temperature": 2}, true},
		{"nothing configured", "scaler", "minmax", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, shared := s.Parameters(tt.stage, tt.technique)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantShared, shared)
		})
	}

	p, _ := s.Parameters("splitter", "train_test")
	p["test_size"] = 0.9
	again, _ := s.Parameters("splitter", "train_test")
	assert.Equal(t, 0.3, again["test_size"], "callers get a copy")
}

func TestSettings_General(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	general, err := s.General()
	require.NoError(t, err)
	assert.Equal(t, GeneralSettings{
		Seed:        7,
		Parallelize: true,
		Workers:     2,
		LogLevel:    "info",
		LogFormat:   "text",
	}, general)

	defaults, err := NewSettings(nil).General()
	require.NoError(t, err)
	assert.Equal(t, defaultGeneralSettings(), defaults)

	tests := []struct {
		name    string
		general map[string]any
	}{
		{"negative workers", map[string]any{"workers": -1}},
		{"bad log level", map[string]any{"log_level": "loud"}},
		{"bad log format", map[string]any{"log_format": "xml"}},
		{"wrong type", map[string]any{"seed": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSettings(map[string]map[string]any{"general": tt.general}).General()
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}

func TestSettings_Critic(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	review, err := s.Critic()
	require.NoError(t, err)
	assert.Equal(t, "test", review.DataToReview)
	assert.Equal(t, []string{"accuracy", "f1"}, review.Metrics)
	assert.Equal(t, "accuracy", review.PrimaryMetric, "defaults to the first metric")
	assert.Equal(t, []string{"features", "outcomes"}, review.Rankers)
	assert.Equal(t, "%.4f", review.FloatFormat)
	assert.Equal(t, "NA", review.MissingValue)

	tests := []struct {
		name   string
		critic map[string]any
	}{
		{"unknown split", map[string]any{"data_to_review": "holdout"}},
		{"duplicate metric", map[string]any{"measurer_techniques": "f1, F1"}},
		{"bad float format", map[string]any{"float_format": ".3f"}},
		{"negative column", map[string]any{"positive_class_column": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSettings(map[string]map[string]any{"critic": tt.critic}).Critic()
			require.Error(t, err)
			var verr *domain.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestIdentifierList(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    []string
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"comma string", " A, b ,,c ", []string{"a", "b", "c"}, false},
		{"string slice", []string{"X"}, []string{"x"}, false},
		{"any slice", []any{"Y", "z"}, []string{"y", "z"}, false},
		{"non string item", []any{"a", 1}, nil, true},
		{"number", 5, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identifierList(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettings_ColumnGroups(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		want        map[string][]string
		wantSubject string
	}{
		{name: "absent", yaml: "chef:\n  chef_steps: [modeler]\n"},
		{
			name: "names keep case",
			yaml: "cleaver_groups:\n  Labs: [lab_*, HbA1c]\n  body: bmi, Weight\n",
			want: map[string][]string{"labs": {"lab_*", "HbA1c"}, "body": {"bmi", "Weight"}},
		},
		{name: "reserved name", yaml: "cleaver_groups:\n  all: [a]\n", wantSubject: "cleaver_groups.all"},
		{name: "empty group", yaml: "cleaver_groups:\n  labs: []\n", wantSubject: "cleaver_groups.labs"},
		{name: "bad pattern", yaml: "cleaver_groups:\n  labs: ['lab_[']\n", wantSubject: "cleaver_groups.labs"},
		{name: "not a list", yaml: "cleaver_groups:\n  labs: 3\n", wantSubject: "cleaver_groups.labs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := ParseSettings([]byte(tt.yaml))
			require.NoError(t, err)
			got, err := settings.ColumnGroups()
			if tt.wantSubject != "" {
				var cerr *domain.ConfigurationError
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tt.wantSubject, cerr.Subject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
