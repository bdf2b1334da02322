package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/testutils"
)

func TestNewDefaultCriticCatalog(t *testing.T) {
	c := NewDefaultCriticCatalog()

	for _, name := range []string{"gini", "permutation"} {
		e, err := c.Explainer(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, e.Name())
	}
	for _, name := range []string{"features", "outcomes"} {
		r, err := c.Ranker(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, r.Name())
	}
	assert.Len(t, c.Metrics(), 19)
	assert.Contains(t, c.Metrics(), "log_loss")
}

func TestCriticCatalog_Register(t *testing.T) {
	c := NewCriticCatalog()

	require.NoError(t, c.RegisterMetric(testutils.StubMetric{MetricName: "Loss"}))
	m, err := c.Metric("loss")
	require.NoError(t, err)
	assert.Equal(t, "Loss", m.Name())

	err = c.RegisterMetric(testutils.StubMetric{MetricName: "loss"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.Error(t, c.RegisterMetric(testutils.StubMetric{}))
	require.Error(t, c.RegisterMetric(nil))
	require.Error(t, c.RegisterExplainer(nil))
	require.Error(t, c.RegisterRanker(nil))
}

func TestCriticCatalog_Lookup(t *testing.T) {
	c := NewDefaultCriticCatalog()

	tests := []struct {
		name           string
		lookup         func() error
		wantSubject    string
		wantSuggestion string
	}{
		{
			name:           "metric",
			lookup:         func() error { _, err := c.Metric("acuracy"); return err },
			wantSubject:    "measurer acuracy",
			wantSuggestion: "accuracy",
		},
		{
			name:           "explainer",
			lookup:         func() error { _, err := c.Explainer("shap"); return err },
			wantSubject:    "explainer shap",
			wantSuggestion: "",
		},
		{
			name:           "ranker",
			lookup:         func() error { _, err := c.Ranker("feature"); return err },
			wantSubject:    "ranker feature",
			wantSuggestion: "features",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cerr *domain.ConfigurationError
			require.ErrorAs(t, tt.lookup(), &cerr)
			assert.Equal(t, tt.wantSubject, cerr.Subject)
			assert.Equal(t, tt.wantSuggestion, cerr.Suggestion)
		})
	}
}
