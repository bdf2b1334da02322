package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds the number of recipes processed at once. Zero or a
// negative value uses runtime.NumCPU.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

// WithParallel disables concurrent processing when false.
func WithParallel(enabled bool) RunnerOption {
	return func(r *Runner) { r.parallel = enabled }
}

// WithRunIDGenerator replaces the uuid run identifier source.
func WithRunIDGenerator(gen func() string) RunnerOption {
	return func(r *Runner) { r.newRunID = gen }
}

// WithRunnerObserver sets the observer notified when a recipe starts and
// finishes.
func WithRunnerObserver(o ports.RecipeObserver) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// WithRunnerMetrics sets the collector receiving recipe outcomes and the
// in-flight gauge.
func WithRunnerMetrics(m ports.MetricsCollector) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// Runner drives every recipe of a plan through the executor and the
// critic and collects the outcome into a Report.
type Runner struct {
	plan     *Plan
	executor *Executor
	critic   *Critic

	workers  int
	parallel bool
	newRunID func() string

	observer ports.RecipeObserver
	metrics  ports.MetricsCollector
	logger   *slog.Logger

	inFlight atomic.Int64
}

// NewRunner creates a runner. The executor and critic are shared by every
// worker and must be safe for concurrent use.
func NewRunner(plan *Plan, executor *Executor, critic *Critic, opts ...RunnerOption) *Runner {
	r := &Runner{
		plan:     plan,
		executor: executor,
		critic:   critic,
		parallel: true,
		newRunID: uuid.NewString,
		observer: noopObserver{},
		metrics:  noopMetrics{},
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workers returns the effective worker count.
func (r *Runner) Workers() int {
	switch {
	case !r.parallel:
		return 1
	case r.workers <= 0:
		return runtime.NumCPU()
	default:
		return r.workers
	}
}

// Run executes and scores every recipe of the plan against source and
// returns the report. Recipe failures are isolated and recorded in the
// report; they are not returned.
//
// When ctx is cancelled, recipes that have not started are recorded as
// FAILED (cancelled) and running recipes stop at their next stage
// boundary, so every index of the plan still appears in the report. Run
// then returns the report together with an error wrapping
// domain.ErrCancelled.
func (r *Runner) Run(ctx context.Context, source domain.Ingredients) (*Report, error) {
	runID := r.newRunID()
	ctx = WithRunID(ctx, runID)
	logger := r.logger.With("run_id", runID)
	report := NewReport(runID, r.plan.Stages())

	workers := r.Workers()
	logger.Info("run started", "recipes", r.plan.Len(), "workers", workers)
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(workers)
	for recipe := range r.plan.Recipes() {
		if err := ctx.Err(); err != nil {
			if aerr := r.skip(report, recipe, err); aerr != nil {
				return report, errors.Join(aerr, g.Wait())
			}
			continue
		}
		g.Go(func() error {
			return r.process(ctx, logger, report, recipe, source)
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	failed := len(report.Failures())
	logger.Info("run finished",
		"recipes", report.Len(),
		"failed", failed,
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return report, nil
}

// process runs one recipe to a terminal state and adds it to the report.
func (r *Runner) process(ctx context.Context, logger *slog.Logger, report *Report, recipe *domain.Recipe, source domain.Ingredients) error {
	r.metrics.RecordGauge(ports.MetricInFlight, float64(r.inFlight.Add(1)), nil)
	defer func() {
		r.metrics.RecordGauge(ports.MetricInFlight, float64(r.inFlight.Add(-1)), nil)
	}()

	ctx = r.observer.RecipeStarted(ctx, recipe)

	err := r.executor.Execute(ctx, recipe, source)
	if err == nil {
		err = r.critic.Review(ctx, recipe)
	}
	var failure *domain.StageFailure
	if err != nil && !errors.As(err, &failure) {
		failure = &domain.StageFailure{Err: fmt.Errorf("recipe %d: %w", recipe.Index(), err)}
		if !recipe.Status().Terminal() {
			if ferr := recipe.Fail(failure); ferr != nil {
				return fmt.Errorf("recording failure %v: %w", failure, ferr)
			}
		}
	}
	r.observer.RecipeFinished(ctx, recipe)

	status := recipe.Status()
	r.metrics.RecordCounter(ports.MetricRecipeOutcome, 1, map[string]string{"status": status.String()})

	if failure != nil {
		logger.Warn("recipe failed", "recipe", recipe.Index(), "steps", recipe.String(), "error", failure)
	} else {
		logger.Debug("recipe scored", "recipe", recipe.Index(), "steps", recipe.String())
	}

	return report.Add(recipe)
}

// skip records a recipe that was never started because ctx was cancelled.
func (r *Runner) skip(report *Report, recipe *domain.Recipe, cause error) error {
	failure := &domain.StageFailure{Err: fmt.Errorf("%w: %w", domain.ErrCancelled, cause)}
	if err := recipe.Fail(failure); err != nil {
		return err
	}
	r.metrics.RecordCounter(ports.MetricRecipeOutcome, 1, map[string]string{"status": recipe.Status().String()})
	return report.Add(recipe)
}
