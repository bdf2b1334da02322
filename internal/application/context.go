package application

import "context"

// runIDKey is an unexported type to prevent collisions with context keys
// from other packages.
type runIDKey struct{}

// WithRunID returns a new context carrying the run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run identifier, or "" when none is set.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
