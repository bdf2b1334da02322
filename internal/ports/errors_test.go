package ports

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMetricsError tests the functionality of the MetricsError error type.
// It ensures that the error message is formatted correctly and includes the necessary context.
func TestMetricsError(t *testing.T) {
	err := NewMetricsError("stage_duration", "RecordLatency", errors.New("invalid label"))

	assert.Equal(t, "metrics error: operation=RecordLatency, metric=stage_duration, err=invalid label", err.Error())
	assert.Equal(t, "stage_duration", err.Metric)
	assert.Equal(t, "RecordLatency", err.Operation)
}

// TestConfigError tests the functionality of the ConfigError error type.
func TestConfigError(t *testing.T) {
	err := NewConfigError("settings.yaml", ErrConfigNotFound)

	assert.Equal(t, "config error: key=settings.yaml, err=configuration not found", err.Error())
	assert.Equal(t, "settings.yaml", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonCapabilityErrors checks that each sentinel has the expected message.
func TestCommonCapabilityErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrNotFitted, "model not fitted"},
		{ErrEmptyData, "empty data"},
		{ErrLengthMismatch, "length mismatch"},
		{ErrMissingInput, "missing input"},
		{ErrUndefined, "undefined for input"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewMetricsError("metric", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}

// TestRequirement_String verifies requirement names used in degradation reasons.
func TestRequirement_String(t *testing.T) {
	assert.Equal(t, "predictions", RequiresPredictions.String())
	assert.Equal(t, "probabilities", RequiresProbabilities.String())
	assert.Equal(t, "decision scores", RequiresScores.String())
}
