package application

import (
	"context"
	"log/slog"
	"os"
	"slices"

	"github.com/ahrav/go-recipes/infrastructure/techniques"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// ProjectOption configures NewProject.
type ProjectOption func(*projectOptions)

type projectOptions struct {
	registry ports.TechniqueRegistry
	catalog  *CriticCatalog
	observer ports.RecipeObserver
	metrics  ports.MetricsCollector
	logger   *slog.Logger
	runIDs   func() string
}

// WithRegistry replaces the built-in technique registry.
func WithRegistry(r ports.TechniqueRegistry) ProjectOption {
	return func(o *projectOptions) { o.registry = r }
}

// WithCatalog replaces the built-in critic catalog.
func WithCatalog(c *CriticCatalog) ProjectOption {
	return func(o *projectOptions) { o.catalog = c }
}

// WithObserver sets the observer shared by the runner, executor and critic.
func WithObserver(obs ports.RecipeObserver) ProjectOption {
	return func(o *projectOptions) { o.observer = obs }
}

// WithMetrics sets the collector shared by every component.
func WithMetrics(m ports.MetricsCollector) ProjectOption {
	return func(o *projectOptions) { o.metrics = m }
}

// WithLogger overrides the logger built from the general settings.
func WithLogger(l *slog.Logger) ProjectOption {
	return func(o *projectOptions) { o.logger = l }
}

// WithRunIDs replaces the run identifier source.
func WithRunIDs(gen func() string) ProjectOption {
	return func(o *projectOptions) { o.runIDs = gen }
}

// Project is a fully wired recipe engine built from one settings file.
type Project struct {
	settings *Settings
	general  GeneralSettings
	review   CriticSettings
	logger   *slog.Logger

	plan     *Plan
	executor *Executor
	critic   *Critic
	runner   *Runner
}

// NewProject validates settings and wires the plan, executor, critic and
// runner. Every configuration problem is reported here, before any recipe
// runs.
func NewProject(settings *Settings, opts ...ProjectOption) (*Project, error) {
	var o projectOptions
	for _, opt := range opts {
		opt(&o)
	}

	general, err := settings.General()
	if err != nil {
		return nil, err
	}
	review, err := settings.Critic()
	if err != nil {
		return nil, err
	}

	if o.registry == nil {
		o.registry = NewDefaultTechniqueRegistry()
	}
	if o.catalog == nil {
		o.catalog = NewDefaultCriticCatalog()
	}
	if o.observer == nil {
		o.observer = noopObserver{}
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.logger == nil {
		o.logger = NewLogger(general.LogLevel, general.LogFormat, os.Stderr)
	}

	groups, err := settings.ColumnGroups()
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		if o.registry, err = withTechniques(o.registry, techniques.ColumnGroups(groups)); err != nil {
			return nil, err
		}
	}

	plan, err := PlanFromSettings(settings, SectionChef, o.registry, WithMaxRecipes(general.MaxRecipes))
	if err != nil {
		return nil, err
	}

	executor := NewExecutor(o.registry, settings,
		WithSeed(general.Seed),
		WithSnapshots(general.Snapshots),
		WithExecutorObserver(o.observer),
		WithExecutorMetrics(o.metrics),
		WithExecutorLogger(o.logger),
	)

	critic, err := NewCritic(review, o.catalog,
		WithCriticParameters(settings, general.Seed),
		WithCriticObserver(o.observer),
		WithCriticMetrics(o.metrics),
		WithCriticLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := checkReviewSplit(plan, critic.split, o.logger); err != nil {
		return nil, err
	}

	runnerOpts := []RunnerOption{
		WithWorkers(general.Workers),
		WithParallel(general.Parallelize),
		WithRunnerObserver(o.observer),
		WithRunnerMetrics(o.metrics),
		WithRunnerLogger(o.logger),
	}
	if o.runIDs != nil {
		runnerOpts = append(runnerOpts, WithRunIDGenerator(o.runIDs))
	}

	return &Project{
		settings: settings,
		general:  general,
		review:   review,
		logger:   o.logger,
		plan:     plan,
		executor: executor,
		critic:   critic,
		runner:   NewRunner(plan, executor, critic, runnerOpts...),
	}, nil
}

// checkReviewSplit rejects a plan that can never produce the partition the
// critic reviews. A splitter stage that also offers "none" only warns.
func checkReviewSplit(plan *Plan, split domain.DataSplit, logger *slog.Logger) error {
	if split == domain.SplitFull {
		return nil
	}
	var techniques []string
	for _, spec := range plan.Specs() {
		if spec.Stage == domain.StageSplitter {
			techniques = spec.Techniques
		}
	}
	splitting := slices.DeleteFunc(slices.Clone(techniques), func(t string) bool { return t == domain.TechniqueNone })
	if len(splitting) == 0 {
		err := domain.NewConfigurationError("critic.data_to_review "+string(split),
			"no splitter technique in chef_steps produces this partition")
		err.Suggestion = string(domain.SplitFull)
		return err
	}
	if len(splitting) < len(techniques) {
		logger.Warn("recipes without a split will review an empty partition",
			"data_to_review", string(split), "splitter_techniques", techniques)
	}
	return nil
}

// Settings returns the raw settings the project was built from.
func (p *Project) Settings() *Settings { return p.settings }

// General returns the validated general settings.
func (p *Project) General() GeneralSettings { return p.general }

// Review returns the validated critic settings.
func (p *Project) Review() CriticSettings { return p.review }

// Plan returns the recipe plan.
func (p *Project) Plan() *Plan { return p.plan }

// Executor returns the chef executor.
func (p *Project) Executor() *Executor { return p.executor }

// Critic returns the critic pipeline.
func (p *Project) Critic() *Critic { return p.critic }

// Run executes and scores every recipe against source.
func (p *Project) Run(ctx context.Context, source domain.Ingredients) (*Report, error) {
	return p.runner.Run(ctx, source)
}

// Best returns the best scored recipe of report by the primary metric.
func (p *Project) Best(report *Report) (domain.Verdict, error) {
	return report.Best(p.review.PrimaryMetric)
}
