package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// Report field names produced by the critic stages. Explanation, ranking
// and metric fields are named after their technique.
const (
	FieldReviewedRows      = "reviewed_rows"
	FieldProbabilitySource = "probability_source"
	FieldMeanProbability   = "mean_probability"
	FieldMeanDecisionScore = "mean_decision_score"
	FieldDegraded          = "degraded"
)

// ExplanationField names the attribution of feature by explainer.
func ExplanationField(explainer, feature string) string {
	return "explain_" + explainer + "_" + feature
}

// CriticOption configures a Critic.
type CriticOption func(*Critic)

// WithCriticObserver sets the observer notified after every critic stage.
func WithCriticObserver(o ports.RecipeObserver) CriticOption {
	return func(c *Critic) { c.observer = o }
}

// WithCriticMetrics sets the collector receiving stage latencies, metric
// scores and degradation counts.
func WithCriticMetrics(m ports.MetricsCollector) CriticOption {
	return func(c *Critic) { c.metrics = m }
}

// WithCriticLogger sets the logger.
func WithCriticLogger(l *slog.Logger) CriticOption {
	return func(c *Critic) { c.logger = l }
}

// WithCriticParameters sets where configurable explainers read their
// options. seed is injected as the "seed" option when none is given.
func WithCriticParameters(src ParameterSource, seed int64) CriticOption {
	return func(c *Critic) {
		c.params = src
		c.seed = seed
		c.seeded = true
	}
}

// Critic scores executed recipes through the fixed chain predictor,
// oddsmaker, explainer, ranker, measurer and reporter. A Critic holds no
// per-recipe state and is safe for concurrent use.
type Critic struct {
	cfg        CriticSettings
	split      domain.DataSplit
	explainers []ports.Explainer
	rankers    []ports.Ranker
	measures   []ports.Metric

	params ParameterSource
	seed   int64
	seeded bool

	observer ports.RecipeObserver
	metrics  ports.MetricsCollector
	logger   *slog.Logger
}

// NewCritic resolves every configured explainer, ranker and metric from
// catalog. It fails fast with a *domain.ConfigurationError on an unknown
// identifier, an unknown data split, a primary metric that is not
// measured or explainer options that do not apply.
func NewCritic(cfg CriticSettings, catalog *CriticCatalog, opts ...CriticOption) (*Critic, error) {
	split, err := domain.ParseDataSplit(cfg.DataToReview)
	if err != nil {
		return nil, domain.NewConfigurationError("critic.data_to_review", err.Error())
	}

	c := &Critic{
		cfg:      cfg,
		split:    split,
		observer: noopObserver{},
		metrics:  noopMetrics{},
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, name := range cfg.Explainers {
		e, err := catalog.Explainer(name)
		if err != nil {
			return nil, err
		}
		if ce, ok := e.(ports.ConfigurableExplainer); ok {
			if e, err = c.configure(name, ce); err != nil {
				return nil, err
			}
		}
		c.explainers = append(c.explainers, e)
	}
	for _, name := range cfg.Rankers {
		r, err := catalog.Ranker(name)
		if err != nil {
			return nil, err
		}
		c.rankers = append(c.rankers, r)
	}
	for _, name := range cfg.Metrics {
		m, err := catalog.Metric(name)
		if err != nil {
			return nil, err
		}
		c.measures = append(c.measures, m)
	}
	if cfg.PrimaryMetric != "" && !slices.Contains(cfg.Metrics, cfg.PrimaryMetric) {
		err := domain.NewConfigurationError("critic.primary_metric "+cfg.PrimaryMetric, "not among measurer_techniques")
		err.Suggestion = suggest(cfg.PrimaryMetric, cfg.Metrics)
		return nil, err
	}
	return c, nil
}

// configure applies the explainer's options and the run seed.
func (c *Critic) configure(name string, e ports.ConfigurableExplainer) (ports.Explainer, error) {
	known := e.Parameters()
	params := resolveParameters(c.params, domain.StageExplainer, name, known, c.seed, c.seeded)
	if err := checkParameters(domain.StageExplainer, name, known, params); err != nil {
		return nil, domain.NewConfigurationError("explainer "+name, err.Error())
	}
	configured, err := e.Configure(params)
	if err != nil {
		return nil, domain.NewConfigurationError("explainer "+name, err.Error())
	}
	return configured, nil
}

// Settings returns the configuration the critic was built with.
func (c *Critic) Settings() CriticSettings { return c.cfg }

// reviewInput is what every critic stage may read about the recipe.
type reviewInput struct {
	model    ports.Model
	data     domain.Partition
	features []string
}

// criticStage returns the updated accumulator and the partial report
// fields it produced. Stages never fail the recipe; problems are recorded
// as degradations in the returned state.
type criticStage struct {
	name string
	run  func(ctx context.Context, in *reviewInput, state domain.State) (domain.State, []domain.Field)
}

func (c *Critic) stages() []criticStage {
	return []criticStage{
		{name: domain.StagePredictor, run: c.predict},
		{name: domain.StageOddsmaker, run: c.odds},
		{name: domain.StageExplainer, run: c.explain},
		{name: domain.StageRanker, run: c.rank},
		{name: domain.StageMeasurer, run: c.measure},
	}
}

// Review scores an EXECUTED recipe, storing the review state and the
// report row on it and moving it to SCORED. Cancellation is observed
// between critic stages and moves the recipe to FAILED.
func (c *Critic) Review(ctx context.Context, recipe *domain.Recipe) error {
	if status := recipe.Status(); status != domain.StatusExecuted {
		return fmt.Errorf("%w: recipe %d is %s, want %s",
			domain.ErrInvalidTransition, recipe.Index(), status, domain.StatusExecuted)
	}

	in := c.input(recipe)
	state := domain.NewState().WithReviewContext(domain.ReviewContext{
		RunID:        RunIDFromContext(ctx),
		RecipeIndex:  recipe.Index(),
		DataToReview: c.split,
	})

	var fields []domain.Field
	for _, stage := range c.stages() {
		if err := ctx.Err(); err != nil {
			return c.cancel(recipe, stage.name, err)
		}
		start := time.Now()
		next, partial := runCriticStage(ctx, stage, in, state)
		added := next.Degradations()[len(state.Degradations()):]
		status := "ok"
		if len(added) > 0 {
			status = "degraded"
		}
		c.metrics.RecordLatency(ports.MetricStageLatency, time.Since(start), map[string]string{
			"stage":     stage.name,
			"technique": c.techniqueLabel(stage.name),
			"status":    status,
		})
		for _, d := range added {
			c.logger.Debug("critic stage degraded", "recipe", recipe.Index(), "degradation", d.String())
		}
		state = next
		fields = append(fields, partial...)
		c.observer.StageFinished(ctx, recipe, domain.Step{Stage: stage.name}, nil)
	}

	if err := ctx.Err(); err != nil {
		return c.cancel(recipe, domain.StageReporter, err)
	}
	err := c.report(recipe, state, fields)
	c.observer.StageFinished(ctx, recipe, domain.Step{Stage: domain.StageReporter}, err)
	return err
}

// runCriticStage runs one stage and records a panic that escaped it as a
// degradation of that stage. The stage's partial fields are lost.
func runCriticStage(ctx context.Context, stage criticStage, in *reviewInput, state domain.State) (next domain.State, fields []domain.Field) {
	defer func() {
		if r := recover(); r != nil {
			next, fields = degrade(state, stage.name, "", fmt.Sprintf("panic: %v", r)), nil
		}
	}()
	return stage.run(ctx, in, state)
}

// techniqueLabel names what ran in a critic stage for latency metrics.
func (c *Critic) techniqueLabel(stage string) string {
	var names []string
	switch stage {
	case domain.StageExplainer:
		names = c.cfg.Explainers
	case domain.StageRanker:
		names = c.cfg.Rankers
	case domain.StageMeasurer:
		names = c.cfg.Metrics
	default:
		return stage
	}
	if len(names) == 0 {
		return domain.TechniqueNone
	}
	return strings.Join(names, ",")
}

// guarded calls fn, turning a panic into an error. Every call into a
// fitted model or a critic capability goes through it.
func guarded[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (c *Critic) cancel(recipe *domain.Recipe, stage string, cause error) error {
	failure := &domain.StageFailure{Stage: stage, Err: fmt.Errorf("%w: %w", domain.ErrCancelled, cause)}
	if err := recipe.Fail(failure); err != nil {
		return fmt.Errorf("recording failure %v: %w", failure, err)
	}
	return failure
}

func (c *Critic) input(recipe *domain.Recipe) *reviewInput {
	in := &reviewInput{}
	if m, ok := recipe.Results.Model.(ports.Model); ok {
		in.model = m
	}
	if ing := recipe.Results.Ingredients; ing != nil {
		in.features = slices.Clone(ing.Schema.Features)
		// The split was validated in NewCritic.
		in.data, _ = ing.Split(c.split)
	}
	return in
}

// predict stores true labels and discrete predictions.
func (c *Critic) predict(_ context.Context, in *reviewInput, state domain.State) (domain.State, []domain.Field) {
	rows := domain.Field{Name: FieldReviewedRows, Value: domain.Number(float64(in.data.Rows()))}
	switch {
	case in.model == nil:
		return degrade(state, domain.StagePredictor, "", "no fitted model"), []domain.Field{rows}
	case in.data.Empty():
		return degrade(state, domain.StagePredictor, "", fmt.Sprintf("%s partition is empty", c.split)), []domain.Field{rows}
	}

	predictions, err := guarded(func() ([]float64, error) { return in.model.Predict(in.data.X) })
	if err == nil && len(predictions) != in.data.Rows() {
		err = fmt.Errorf("%w: %d predictions for %d rows", ports.ErrLengthMismatch, len(predictions), in.data.Rows())
	}
	if err != nil {
		return degrade(state, domain.StagePredictor, "", err.Error()), []domain.Field{rows}
	}

	state = state.WithMultiple(map[string]any{
		domain.KeyActual.Name():      in.data.Y,
		domain.KeyPredictions.Name(): predictions,
	})
	return state, []domain.Field{rows}
}

// odds stores probability estimates when the model exposes them and raw
// decision scores when it exposes a decision function. A model exposing
// neither leaves every oddsmaker field absent.
func (c *Critic) odds(_ context.Context, in *reviewInput, state domain.State) (domain.State, []domain.Field) {
	source := domain.Absent()
	meanProba, meanScore := domain.Absent(), domain.Absent()
	fields := func() []domain.Field {
		return []domain.Field{
			{Name: FieldProbabilitySource, Value: source},
			{Name: FieldMeanProbability, Value: meanProba},
			{Name: FieldMeanDecisionScore, Value: meanScore},
		}
	}

	if _, ok := domain.Get(state, domain.KeyPredictions); !ok {
		return degrade(state, domain.StageOddsmaker, "", "no predictions"), fields()
	}

	proba, hasProba := in.model.(ports.ProbabilityModel)
	decision, hasDecision := in.model.(ports.DecisionModel)
	if !hasProba && !hasDecision {
		return degrade(state, domain.StageOddsmaker, "", "model exposes neither probabilities nor decision scores"), fields()
	}

	if hasProba {
		probabilities, err := guarded(func() ([][]float64, error) { return proba.PredictProba(in.data.X) })
		if err == nil {
			var positive []float64
			positive, err = positiveColumn(probabilities, c.cfg.PositiveClassColumn, in.data.Rows())
			if err == nil {
				state = domain.With(state, domain.KeyProbabilities, probabilities)
				source = domain.Text("probabilities")
				meanProba = domain.Number(mean(positive))
			}
		}
		if err != nil {
			state = degrade(state, domain.StageOddsmaker, "probabilities", err.Error())
		}
		if logProba, ok := in.model.(ports.LogProbabilityModel); ok && err == nil {
			lp, lerr := guarded(func() ([][]float64, error) { return logProba.PredictLogProba(in.data.X) })
			if lerr == nil {
				state = domain.With(state, domain.KeyLogProbabilities, lp)
			} else {
				state = degrade(state, domain.StageOddsmaker, "log_probabilities", lerr.Error())
			}
		}
	}

	if hasDecision {
		scores, err := guarded(func() ([]float64, error) { return decision.DecisionFunction(in.data.X) })
		if err == nil && len(scores) != in.data.Rows() {
			err = fmt.Errorf("%w: %d scores for %d rows", ports.ErrLengthMismatch, len(scores), in.data.Rows())
		}
		if err != nil {
			state = degrade(state, domain.StageOddsmaker, "decision_function", err.Error())
		} else {
			state = domain.With(state, domain.KeyDecisionScores, scores)
			meanScore = domain.Number(mean(scores))
			if source.IsAbsent() {
				source = domain.Text("decision_function")
			}
		}
	}

	return state, fields()
}

// explain runs every configured explainer in isolation.
func (c *Critic) explain(ctx context.Context, in *reviewInput, state domain.State) (domain.State, []domain.Field) {
	var fields []domain.Field
	var explanations []domain.Explanation
	for _, explainer := range c.explainers {
		name := explainer.Name()
		exp, err := c.runExplainer(ctx, explainer, in)
		if err != nil {
			state = degrade(state, domain.StageExplainer, name, err.Error())
			for _, feature := range in.features {
				fields = append(fields, domain.Field{Name: ExplanationField(name, feature), Value: domain.Absent()})
			}
			continue
		}
		exp.Technique = name
		explanations = append(explanations, exp)
		for i, feature := range exp.Features {
			fields = append(fields, domain.Field{Name: ExplanationField(name, feature), Value: domain.Number(exp.Values[i])})
		}
	}
	if len(explanations) > 0 {
		state = domain.With(state, domain.KeyExplanations, explanations)
	}
	return state, fields
}

// runExplainer guards a single explainer against missing inputs, invalid
// output and panics.
func (c *Critic) runExplainer(ctx context.Context, explainer ports.Explainer, in *reviewInput) (exp domain.Explanation, err error) {
	if in.model == nil || in.data.Empty() {
		return exp, fmt.Errorf("%w: no fitted model or reviewed data", ports.ErrMissingInput)
	}
	exp, err = guarded(func() (domain.Explanation, error) {
		return explainer.Explain(ctx, in.model, in.data, in.features)
	})
	if err != nil {
		return exp, err
	}
	if len(exp.Features) != len(exp.Values) {
		return exp, fmt.Errorf("%w: %d features but %d values", ports.ErrLengthMismatch, len(exp.Features), len(exp.Values))
	}
	return exp, nil
}

// rank runs every configured ranker in isolation.
func (c *Critic) rank(ctx context.Context, in *reviewInput, state domain.State) (domain.State, []domain.Field) {
	var fields []domain.Field
	for _, ranker := range c.rankers {
		partial, err := guarded(func() ([]domain.Field, error) { return ranker.Rank(ctx, state, in.features) })
		if err != nil {
			state = degrade(state, domain.StageRanker, ranker.Name(), err.Error())
			continue
		}
		fields = append(fields, partial...)
	}
	return state, fields
}

// measure computes every configured metric. Negative-oriented metrics are
// sign inverted so that higher is better across the report. A metric whose
// inputs are missing or whose computation fails is reported absent.
func (c *Critic) measure(_ context.Context, _ *reviewInput, state domain.State) (domain.State, []domain.Field) {
	actual, hasActual := domain.Get(state, domain.KeyActual)
	predicted, _ := domain.Get(state, domain.KeyPredictions)
	input := ports.MetricInput{Actual: actual, Predicted: predicted}
	if probabilities, ok := domain.Get(state, domain.KeyProbabilities); ok {
		input.Probabilities, _ = positiveColumn(probabilities, c.cfg.PositiveClassColumn, len(actual))
	}
	input.Scores, _ = domain.Get(state, domain.KeyDecisionScores)

	measurements := make(map[string]float64, len(c.measures))
	fields := make([]domain.Field, 0, len(c.measures))
	for _, metric := range c.measures {
		name := metric.Name()
		value, err := computeMetric(metric, input, hasActual)
		if err != nil {
			state = degrade(state, domain.StageMeasurer, name, err.Error())
			fields = append(fields, domain.Field{Name: name, Value: domain.Absent()})
			continue
		}
		if metric.Negative() {
			value = -value
		}
		measurements[name] = value
		fields = append(fields, domain.Field{Name: name, Value: domain.Number(value)})
		c.metrics.RecordHistogram(ports.MetricScore, value, map[string]string{"metric": name})
	}
	return domain.With(state, domain.KeyMeasurements, measurements), fields
}

func computeMetric(metric ports.Metric, in ports.MetricInput, hasActual bool) (value float64, err error) {
	if !hasActual {
		return 0, fmt.Errorf("%w: predictions", ports.ErrMissingInput)
	}
	switch req := metric.Requires(); req {
	case ports.RequiresProbabilities:
		if in.Probabilities == nil {
			return 0, fmt.Errorf("%w: %s", ports.ErrMissingInput, req)
		}
	case ports.RequiresScores:
		if in.Scores == nil {
			return 0, fmt.Errorf("%w: %s", ports.ErrMissingInput, req)
		}
	}
	value, err = guarded(func() (float64, error) { return metric.Compute(in) })
	if err == nil && (math.IsNaN(value) || math.IsInf(value, 0)) {
		err = fmt.Errorf("%w: %v", ports.ErrUndefined, value)
	}
	return value, err
}

// report merges the partial fields into the recipe's row and scores it.
func (c *Critic) report(recipe *domain.Recipe, state domain.State, fields []domain.Field) error {
	degradations := state.Degradations()

	row := domain.NewRecipeRow(recipe, domain.StatusScored)
	row.Merge(fields...)
	row.Set(FieldDegraded, domain.Number(float64(len(degradations))))

	if len(degradations) > 0 {
		c.metrics.RecordCounter(ports.MetricDegraded, float64(len(degradations)), nil)
	}

	recipe.Results.Review = state
	recipe.Results.Row = row
	return recipe.Transition(domain.StatusScored)
}

func degrade(state domain.State, stage, technique, reason string) domain.State {
	return state.WithDegradation(domain.Degradation{Stage: stage, Technique: technique, Reason: reason})
}

// positiveColumn extracts column col from per-class probabilities.
func positiveColumn(probabilities [][]float64, col, rows int) ([]float64, error) {
	if len(probabilities) != rows {
		return nil, fmt.Errorf("%w: %d probability rows for %d samples", ports.ErrLengthMismatch, len(probabilities), rows)
	}
	out := make([]float64, rows)
	for i, row := range probabilities {
		if col >= len(row) {
			return nil, fmt.Errorf("%w: positive class column %d but only %d classes", ports.ErrMissingInput, col, len(row))
		}
		out[i] = row[col]
	}
	return out, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
