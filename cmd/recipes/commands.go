package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-recipes/infrastructure/middleware"
	"github.com/ahrav/go-recipes/infrastructure/reportio"
	"github.com/ahrav/go-recipes/internal/application"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

type rootOptions struct {
	settingsPath string
}

type runOptions struct {
	dataPath        string
	label           string
	reportPath      string
	predictionsPath string
	recipesPath     string
	traceExporter   string
	metricsPath     string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions
	root := &cobra.Command{
		Use:           "recipes",
		Short:         "Plan, run and score every combination of stage techniques",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.settingsPath, "settings", "s", "recipes.yaml", "YAML settings file")

	root.AddCommand(newPlanCmd(&opts), newRunCmd(&opts))
	return root
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print every recipe the settings generate without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project, err := loadProject(cmd, root.settingsPath)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), project.Plan())
		},
	}
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute and score every recipe against a CSV dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, root.settingsPath, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.dataPath, "data", "d", "", "CSV dataset with a header line")
	flags.StringVar(&opts.label, "label", reportio.DefaultLabelColumn, "label column of the dataset")
	flags.StringVarP(&opts.reportPath, "output", "o", "report.csv", "report CSV path")
	flags.StringVar(&opts.predictionsPath, "predictions", "", "predictions CSV path (default: none unless critic.join_predictions is set)")
	flags.StringVar(&opts.recipesPath, "recipes", "", "YAML export of every recipe and the best one")
	flags.StringVar(&opts.traceExporter, "trace", "none", "trace exporter: none or stdout")
	flags.StringVar(&opts.metricsPath, "metrics-out", "", "write Prometheus metrics in text format to this path after the run")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func loadProject(cmd *cobra.Command, path string, opts ...application.ProjectOption) (*application.Project, error) {
	settings, err := application.NewSettingsLoader().LoadFromFile(cmd.Context(), path)
	if err != nil {
		return nil, err
	}
	general, err := settings.General()
	if err != nil {
		return nil, err
	}
	logger := application.NewLogger(general.LogLevel, general.LogFormat, cmd.ErrOrStderr())
	return application.NewProject(settings, append([]application.ProjectOption{application.WithLogger(logger)}, opts...)...)
}

func run(cmd *cobra.Command, settingsPath string, opts runOptions) (err error) {
	ctx := cmd.Context()

	tp, shutdown, err := middleware.NewTracerProvider(opts.traceExporter, version, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, shutdown(ctx))
	}()

	registry := prometheus.NewRegistry()
	project, err := loadProject(cmd, settingsPath,
		application.WithObserver(middleware.NewOTelRecipeObserver(tp)),
		application.WithMetrics(middleware.NewPrometheusMetrics(registry)),
	)
	if err != nil {
		return err
	}

	source, err := reportio.LoadDatasetFile(opts.dataPath, opts.label)
	if err != nil {
		return err
	}

	report, runErr := project.Run(ctx, source)
	if report == nil {
		return runErr
	}
	if err := writeOutputs(project, report, opts); err != nil {
		return errors.Join(runErr, err)
	}
	if opts.metricsPath != "" {
		if err := writeMetrics(opts.metricsPath, registry); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d recipes, %d failed, report written to %s\n",
		report.RunID(), report.Len(), len(report.Failures()), opts.reportPath)
	if verdict, err := project.Best(report); err == nil {
		fmt.Fprintf(out, "best recipe %d by %s = %g: %s\n",
			verdict.RecipeIndex, verdict.Metric, verdict.Score, formatSteps(verdict.Steps))
	}
	return nil
}

func writeOutputs(project *application.Project, report *application.Report, opts runOptions) error {
	review := project.Review()
	format := reportio.Format{FloatFormat: review.FloatFormat, MissingValue: review.MissingValue}
	if err := reportio.SaveReport(opts.reportPath, report, format); err != nil {
		return err
	}

	predictionsPath := opts.predictionsPath
	if predictionsPath == "" && review.JoinPredictions {
		predictionsPath = strings.TrimSuffix(opts.reportPath, ".csv") + "_predictions.csv"
	}
	if predictionsPath != "" {
		pf := reportio.PredictionFormat{
			Format:              format,
			Probabilities:       review.JoinProbabilities,
			PositiveClassColumn: review.PositiveClassColumn,
		}
		if err := reportio.SavePredictions(predictionsPath, report.Recipes(), pf); err != nil {
			return err
		}
	}

	if opts.recipesPath != "" {
		var best *domain.Verdict
		if verdict, err := project.Best(report); err == nil {
			best = &verdict
		}
		doc := reportio.NewRunExport(report.RunID(), report.Recipes(), best)
		if err := reportio.SaveRecipes(opts.recipesPath, doc); err != nil {
			return err
		}
	}
	return nil
}

func writeMetrics(path string, gatherer prometheus.Gatherer) (err error) {
	families, err := gatherer.Gather()
	if err != nil {
		return ports.NewMetricsError("*", "gather", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(file, mf); err != nil {
			return ports.NewMetricsError(mf.GetName(), "write", err)
		}
	}
	return nil
}

func printPlan(w io.Writer, plan *application.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "recipe\t%s\n", strings.Join(plan.Stages(), "\t"))
	for recipe := range plan.Recipes() {
		techniques := make([]string, 0, len(plan.Stages()))
		for _, step := range recipe.Steps() {
			techniques = append(techniques, step.Technique)
		}
		fmt.Fprintf(tw, "%d\t%s\n", recipe.Index(), strings.Join(techniques, "\t"))
	}
	fmt.Fprintf(tw, "\n%d recipes\n", plan.Len())
	return tw.Flush()
}

func formatSteps(steps []domain.Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}
