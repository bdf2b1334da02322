package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while planning, executing and scoring
// recipes.
var (
	// ErrInvalidState indicates that an operation received invalid input.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidTransition indicates an illegal recipe status change.
	ErrInvalidTransition = errors.New("invalid recipe transition")

	// ErrCancelled marks a recipe abandoned at a stage boundary.
	ErrCancelled = errors.New("recipe cancelled")

	// ErrDuplicateRow indicates a second report row for one recipe index.
	ErrDuplicateRow = errors.New("duplicate report row")
)

// ConfigurationError reports an unknown stage or technique, an empty
// technique list or another plan-level mistake. It is fatal: it surfaces
// before any recipe executes.
type ConfigurationError struct {
	// Subject names what was misconfigured, e.g. "stage scaler".
	Subject string

	// Reason describes the problem.
	Reason string

	// Suggestion is a close known identifier, if one exists.
	Suggestion string
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfiguration }

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(subject, reason string) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Reason: reason}
}

// ParameterError reports options a technique does not recognize.
type ParameterError struct {
	Stage     string
	Technique string

	// Unknown holds the rejected option names, sorted.
	Unknown []string

	// Suggestions maps an unknown option to the closest recognized one.
	Suggestions map[string]string
}

// Error implements the error interface for ParameterError.
func (e *ParameterError) Error() string {
	parts := make([]string, 0, len(e.Unknown))
	for _, name := range e.Unknown {
		if s, ok := e.Suggestions[name]; ok {
			parts = append(parts, fmt.Sprintf("%s (did you mean %q?)", name, s))
			continue
		}
		parts = append(parts, name)
	}
	return fmt.Sprintf("parameter error: %s/%s does not recognize %s",
		e.Stage, e.Technique, strings.Join(parts, ", "))
}

// ExecutionError wraps an error raised by a technique while it ran.
type ExecutionError struct {
	Stage     string
	Technique string
	Err       error
}

// Error implements the error interface for ExecutionError.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: %s/%s: %v", e.Stage, e.Technique, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// StageFailure is the structured cause recorded on a FAILED recipe.
type StageFailure struct {
	// Stage is the stage that failed, or empty when the recipe was
	// cancelled before its first stage.
	Stage string

	// Technique is the technique selected for Stage.
	Technique string

	// Err is the underlying ParameterError, ExecutionError,
	// ConfigurationError, cancellation or an unexpected runner error.
	Err error
}

// Error implements the error interface for StageFailure.
func (e *StageFailure) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("recipe failed: %v", e.Err)
	}
	return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.Technique, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageFailure) Unwrap() error { return e.Err }

// Cancelled reports whether the failure was a cancellation.
func (e *StageFailure) Cancelled() bool { return errors.Is(e.Err, ErrCancelled) }

// Degradation records a critic stage that could not produce its fields.
// It is never returned as an error; the affected fields become absent.
type Degradation struct {
	Stage     string `json:"stage" yaml:"stage"`
	Technique string `json:"technique,omitempty" yaml:"technique,omitempty"`
	Reason    string `json:"reason" yaml:"reason"`
}

// String formats the degradation for logs.
func (d Degradation) String() string {
	if d.Technique == "" {
		return fmt.Sprintf("%s: %s", d.Stage, d.Reason)
	}
	return fmt.Sprintf("%s/%s: %s", d.Stage, d.Technique, d.Reason)
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
