package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// ParameterSource resolves the options for a technique. shared reports
// that the options were declared for the whole stage rather than for the
// technique. *Settings implements it.
type ParameterSource interface {
	Parameters(stage, technique string) (params map[string]any, shared bool)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSeed injects seed into every technique that recognizes a "seed"
// option and was not given one.
func WithSeed(seed int64) ExecutorOption {
	return func(e *Executor) {
		e.seed = seed
		e.seeded = true
	}
}

// WithSnapshots keeps a copy of the ingredients after every stage.
func WithSnapshots(enabled bool) ExecutorOption {
	return func(e *Executor) { e.snapshots = enabled }
}

// WithExecutorObserver sets the observer notified after every stage.
func WithExecutorObserver(o ports.RecipeObserver) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithExecutorMetrics sets the collector receiving stage latencies.
func WithExecutorMetrics(m ports.MetricsCollector) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// Executor runs the chef stages of one recipe at a time. An Executor holds
// no per-recipe state and is safe for concurrent use.
type Executor struct {
	registry  ports.TechniqueRegistry
	params    ParameterSource
	seed      int64
	seeded    bool
	snapshots bool
	observer  ports.RecipeObserver
	metrics   ports.MetricsCollector
	logger    *slog.Logger
}

// NewExecutor creates an executor resolving techniques from registry and
// options from params. params may be nil, in which case every technique
// runs with no options.
func NewExecutor(registry ports.TechniqueRegistry, params ParameterSource, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		params:   params,
		observer: noopObserver{},
		metrics:  noopMetrics{},
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every step of recipe in order against a private copy of
// source. The recipe must be CREATED; it ends EXECUTED or FAILED.
//
// Cancellation is observed only between stages. A stage failure or a
// cancellation moves the recipe to FAILED with a *domain.StageFailure,
// which is also returned. source is never modified.
func (e *Executor) Execute(ctx context.Context, recipe *domain.Recipe, source domain.Ingredients) error {
	if status := recipe.Status(); status != domain.StatusCreated {
		return fmt.Errorf("%w: recipe %d is %s, want %s",
			domain.ErrInvalidTransition, recipe.Index(), status, domain.StatusCreated)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(recipe, domain.Step{}, fmt.Errorf("%w: %w", domain.ErrCancelled, err))
	}
	if err := recipe.Transition(domain.StatusExecuting); err != nil {
		return err
	}

	current := source.Clone()
	for _, step := range recipe.Steps() {
		if err := ctx.Err(); err != nil {
			return e.fail(recipe, step, fmt.Errorf("%w: %w", domain.ErrCancelled, err))
		}

		start := time.Now()
		out, artifact, err := e.runStage(ctx, step, current)
		duration := time.Since(start)

		e.metrics.RecordLatency(ports.MetricStageLatency, duration, map[string]string{
			"stage":     step.Stage,
			"technique": step.Technique,
			"status":    outcomeLabel(err),
		})

		if err == nil && step.Stage == domain.StageModeler && step.Technique != domain.TechniqueNone {
			model, ok := artifact.(ports.Model)
			if !ok {
				err = &domain.ExecutionError{
					Stage:     step.Stage,
					Technique: step.Technique,
					Err:       fmt.Errorf("modeler returned %T, want a fitted model", artifact),
				}
			} else {
				recipe.Results.Model = model
			}
		}
		e.observer.StageFinished(ctx, recipe, step, err)
		if err != nil {
			return e.fail(recipe, step, err)
		}

		result := domain.StageResult{Step: step, Artifact: artifact, Duration: duration}
		if e.snapshots {
			snapshot := out.Clone()
			result.Ingredients = &snapshot
		}
		recipe.Results.Stages = append(recipe.Results.Stages, result)
		current = out

		e.logger.Debug("stage finished",
			"recipe", recipe.Index(),
			"stage", step.Stage,
			"technique", step.Technique,
			"duration", duration)
	}

	recipe.Results.Ingredients = &current
	return recipe.Transition(domain.StatusExecuted)
}

// runStage resolves, parameterizes and runs one step. Panics raised by the
// technique are converted into an ExecutionError.
func (e *Executor) runStage(ctx context.Context, step domain.Step, in domain.Ingredients) (out domain.Ingredients, artifact any, err error) {
	technique, err := e.registry.Lookup(step.Stage, step.Technique)
	if err != nil {
		return in, nil, err
	}

	params := e.parameters(step, technique)
	if err := checkParameters(step.Stage, step.Technique, technique.Parameters(), params); err != nil {
		return in, nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = &domain.ExecutionError{
				Stage:     step.Stage,
				Technique: step.Technique,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
	}()

	out, artifact, err = technique.Run(ctx, in, params)
	if err != nil {
		return in, nil, &domain.ExecutionError{Stage: step.Stage, Technique: step.Technique, Err: err}
	}
	return out, artifact, nil
}

// parameters returns the options for step with the run seed injected.
// Options from a shared stage section are narrowed to the ones the
// technique recognizes; options declared for the technique itself are
// passed through and checked strictly.
func (e *Executor) parameters(step domain.Step, technique ports.Technique) map[string]any {
	return resolveParameters(e.params, step.Stage, step.Technique, technique.Parameters(), e.seed, e.seeded)
}

func resolveParameters(src ParameterSource, stage, name string, known []string, seed int64, seeded bool) map[string]any {
	params := map[string]any{}
	if src != nil {
		p, shared := src.Parameters(stage, name)
		if p != nil {
			params = p
		}
		if shared {
			maps.DeleteFunc(params, func(k string, _ any) bool { return !slices.Contains(known, k) })
		}
	}
	if seeded && slices.Contains(known, "seed") {
		if _, set := params["seed"]; !set {
			params["seed"] = seed
		}
	}
	return params
}

// checkParameters rejects options the technique does not recognize.
func checkParameters(stage, name string, known []string, params map[string]any) error {
	var unknown []string
	for option := range params {
		if !slices.Contains(known, option) {
			unknown = append(unknown, option)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)

	perr := &domain.ParameterError{
		Stage:       stage,
		Technique:   name,
		Unknown:     unknown,
		Suggestions: make(map[string]string),
	}
	for _, option := range unknown {
		if s := suggest(option, known); s != "" {
			perr.Suggestions[option] = s
		}
	}
	return perr
}

// fail records the failure on the recipe and returns it.
func (e *Executor) fail(recipe *domain.Recipe, step domain.Step, err error) error {
	failure := &domain.StageFailure{Stage: step.Stage, Technique: step.Technique, Err: err}
	if ferr := recipe.Fail(failure); ferr != nil {
		return fmt.Errorf("recording failure %v: %w", failure, ferr)
	}
	e.logger.Debug("recipe failed",
		"recipe", recipe.Index(),
		"stage", step.Stage,
		"technique", step.Technique,
		"error", err)
	return failure
}
