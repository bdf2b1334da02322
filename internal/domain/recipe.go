package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle position of a Recipe.
type Status int

// Recipe lifecycle. A recipe moves CREATED → EXECUTING → EXECUTED → SCORED;
// FAILED is terminal and reachable from every non-terminal status.
const (
	StatusCreated Status = iota
	StatusExecuting
	StatusExecuted
	StatusScored
	StatusFailed
)

var statusNames = map[Status]string{
	StatusCreated:   "created",
	StatusExecuting: "executing",
	StatusExecuted:  "executed",
	StatusScored:    "scored",
	StatusFailed:    "failed",
}

// String returns the lower-case status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusScored || s == StatusFailed }

// allowedTransitions lists the legal next statuses for each status.
var allowedTransitions = map[Status][]Status{
	StatusCreated:   {StatusExecuting, StatusFailed},
	StatusExecuting: {StatusExecuted, StatusFailed},
	StatusExecuted:  {StatusScored, StatusFailed},
}

// Step is one (stage, technique) choice of a recipe.
type Step struct {
	Stage     string `json:"stage" yaml:"stage"`
	Technique string `json:"technique" yaml:"technique"`
}

// String formats the step as "stage:technique".
func (s Step) String() string { return s.Stage + ":" + s.Technique }

// StageResult is what one executed stage left behind.
type StageResult struct {
	Step Step

	// Artifact is the fitted object the technique returned, if any.
	Artifact any

	// Duration is the wall time the technique took.
	Duration time.Duration

	// Ingredients is a snapshot of the stage output. It is only set when
	// the executor runs with snapshots enabled.
	Ingredients *Ingredients
}

// Results is the per-recipe result container, filled in as stages run.
type Results struct {
	// Stages holds one entry per executed stage in execution order.
	Stages []StageResult

	// Ingredients is the output of the last executed stage.
	Ingredients *Ingredients

	// Model is the fitted model produced by the modeler stage. It holds a
	// ports.Model and is nil until the modeler stage succeeds.
	Model any

	// Review is the critic accumulator: predictions, probabilities,
	// explanations and measurements keyed by the Key* state keys.
	Review State

	// Row is the report row. It is nil until the recipe is scored.
	Row *Row
}

// Recipe is one concrete selection of a technique per stage, plus the
// state of its execution. Index and steps never change after creation.
type Recipe struct {
	index int
	steps []Step

	mu      sync.RWMutex
	status  Status
	failure *StageFailure

	// Results is written only by the goroutine that currently owns the
	// recipe (executor, then critic) and read after the recipe reaches a
	// terminal status.
	Results Results
}

// NewRecipe creates a recipe in the CREATED status.
func NewRecipe(index int, steps []Step) *Recipe {
	return &Recipe{
		index:  index,
		steps:  slices.Clone(steps),
		status: StatusCreated,
	}
}

// Index returns the generation-order position of the recipe.
func (r *Recipe) Index() int { return r.index }

// Steps returns a copy of the recipe steps in declared stage order.
func (r *Recipe) Steps() []Step { return slices.Clone(r.steps) }

// Technique returns the technique chosen for stage.
func (r *Recipe) Technique(stage string) (string, bool) {
	for _, s := range r.steps {
		if s.Stage == stage {
			return s.Technique, true
		}
	}
	return "", false
}

// Status returns the current lifecycle status.
func (r *Recipe) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Failure returns the recorded failure, or nil.
func (r *Recipe) Failure() *StageFailure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failure
}

// Transition moves the recipe to next. Moving to StatusFailed must go
// through Fail so that a cause is always recorded.
func (r *Recipe) Transition(next Status) error {
	if next == StatusFailed {
		return fmt.Errorf("%w: use Fail to record a failure", ErrInvalidTransition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(next)
}

// Fail moves the recipe to FAILED and records the cause.
func (r *Recipe) Fail(failure *StageFailure) error {
	if failure == nil {
		return fmt.Errorf("%w: nil failure", ErrInvalidState)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.transitionLocked(StatusFailed); err != nil {
		return err
	}
	r.failure = failure
	return nil
}

func (r *Recipe) transitionLocked(next Status) error {
	if !slices.Contains(allowedTransitions[r.status], next) {
		return fmt.Errorf("%w: recipe %d cannot move from %s to %s",
			ErrInvalidTransition, r.index, r.status, next)
	}
	r.status = next
	return nil
}

// String returns a compact description such as "recipe 3 [scaler:minmax modeler:centroid]".
func (r *Recipe) String() string {
	parts := make([]string, len(r.steps))
	for i, s := range r.steps {
		parts[i] = s.String()
	}
	return fmt.Sprintf("recipe %d [%s]", r.index, strings.Join(parts, " "))
}
