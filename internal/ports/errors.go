package ports

import (
	"errors"
	"fmt"
)

// Common capability errors returned by techniques, models and evaluators.
var (
	// ErrNotFitted indicates that a model was used before it was fitted.
	ErrNotFitted = errors.New("model not fitted")

	// ErrEmptyData indicates that a capability received no samples.
	ErrEmptyData = errors.New("empty data")

	// ErrLengthMismatch indicates that aligned inputs have different lengths.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrMissingInput indicates that a metric or ranker lacks a required
	// model output such as probabilities or decision scores.
	ErrMissingInput = errors.New("missing input")

	// ErrUndefined indicates that a value is mathematically undefined for
	// the given input, e.g. ROC AUC with a single class present.
	ErrUndefined = errors.New("undefined for input")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string

	// Operation is the name of the metrics operation that failed.
	Operation string

	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

// ConfigError represents an error from reading or decoding settings.
type ConfigError struct {
	// ConfigKey is the configuration key or file that was involved in the
	// failed operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}
