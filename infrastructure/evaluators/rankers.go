package evaluators

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var (
	_ ports.Ranker = (*FeatureRanker)(nil)
	_ ports.Ranker = (*OutcomeRanker)(nil)
	_ ports.Ranker = (*ConfusionRanker)(nil)
	_ ports.Ranker = (*ClassificationRanker)(nil)
)

// Rankers returns the built-in rankers.
func Rankers() []ports.Ranker {
	return []ports.Ranker{NewFeatureRanker(), NewOutcomeRanker(), NewConfusionRanker(), NewClassificationRanker()}
}

// RankField names the feature holding position k (1-based) in the ranking
// produced from explainer.
func RankField(explainer string, k int) string {
	return "rank_" + explainer + "_" + strconv.Itoa(k)
}

// OutcomeField names the prediction share of class.
func OutcomeField(class float64) string {
	return "outcome_" + classLabel(class) + "_share"
}

// ConfusionField names the count of samples labelled actual and predicted
// as predicted.
func ConfusionField(actual, predicted float64) string {
	return "confusion_" + classLabel(actual) + "_" + classLabel(predicted)
}

// ClassField names a per-class classification statistic such as
// "precision", "recall", "f1" or "support".
func ClassField(class float64, stat string) string {
	return "class_" + classLabel(class) + "_" + stat
}

func classLabel(class float64) string {
	return strconv.FormatFloat(class, 'f', -1, 64)
}

// FeatureRanker orders features by the magnitude of their attribution,
// once per explanation in the review.
type FeatureRanker struct{}

// NewFeatureRanker creates the "features" ranker.
func NewFeatureRanker() *FeatureRanker { return &FeatureRanker{} }

// Name returns "features".
func (*FeatureRanker) Name() string { return "features" }

// Rank emits one text field per feature and explanation. Ties keep schema
// order. A review without explanations yields no fields.
func (*FeatureRanker) Rank(_ context.Context, review domain.State, _ []string) ([]domain.Field, error) {
	explanations, _ := domain.Get(review, domain.KeyExplanations)
	var fields []domain.Field
	for _, exp := range explanations {
		order := make([]int, len(exp.Features))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			return cmp.Compare(math.Abs(exp.Values[b]), math.Abs(exp.Values[a]))
		})
		for k, i := range order {
			fields = append(fields, domain.Field{
				Name:  RankField(exp.Technique, k+1),
				Value: domain.Text(exp.Features[i]),
			})
		}
	}
	return fields, nil
}

// OutcomeRanker reports the share of predictions per class.
type OutcomeRanker struct{}

// NewOutcomeRanker creates the "outcomes" ranker.
func NewOutcomeRanker() *OutcomeRanker { return &OutcomeRanker{} }

// Name returns "outcomes".
func (*OutcomeRanker) Name() string { return "outcomes" }

// Rank emits one numeric field per predicted class, ordered by label.
func (*OutcomeRanker) Rank(_ context.Context, review domain.State, _ []string) ([]domain.Field, error) {
	predictions, ok := domain.Get(review, domain.KeyPredictions)
	if !ok || len(predictions) == 0 {
		return nil, fmt.Errorf("%w: predictions", ports.ErrMissingInput)
	}
	counts := make(map[float64]int)
	for _, p := range predictions {
		counts[p]++
	}
	classes := labels(predictions, nil)
	fields := make([]domain.Field, 0, len(classes))
	for _, class := range classes {
		fields = append(fields, domain.Field{
			Name:  OutcomeField(class),
			Value: domain.Number(float64(counts[class]) / float64(len(predictions))),
		})
	}
	return fields, nil
}

// reviewedLabels returns the true labels and predictions of a review.
func reviewedLabels(review domain.State) (actual, predicted []float64, err error) {
	actual, okActual := domain.Get(review, domain.KeyActual)
	predicted, okPredicted := domain.Get(review, domain.KeyPredictions)
	if !okActual || !okPredicted || len(actual) == 0 {
		return nil, nil, fmt.Errorf("%w: predictions", ports.ErrMissingInput)
	}
	if len(actual) != len(predicted) {
		return nil, nil, fmt.Errorf("%w: %d labels for %d predictions", ports.ErrLengthMismatch, len(actual), len(predicted))
	}
	return actual, predicted, nil
}

// ConfusionRanker reports the confusion matrix of the review, one count per
// pair of actual and predicted labels.
type ConfusionRanker struct{}

// NewConfusionRanker creates the "confusion" ranker.
func NewConfusionRanker() *ConfusionRanker { return &ConfusionRanker{} }

// Name returns "confusion".
func (*ConfusionRanker) Name() string { return "confusion" }

// Rank emits a field for every pair over the labels seen in either the
// true labels or the predictions, actual label major.
func (*ConfusionRanker) Rank(_ context.Context, review domain.State, _ []string) ([]domain.Field, error) {
	actual, predicted, err := reviewedLabels(review)
	if err != nil {
		return nil, err
	}
	type cell struct{ actual, predicted float64 }
	matrix := make(map[cell]int)
	for i, y := range actual {
		matrix[cell{y, predicted[i]}]++
	}
	classes := labels(actual, predicted)
	fields := make([]domain.Field, 0, len(classes)*len(classes))
	for _, a := range classes {
		for _, p := range classes {
			fields = append(fields, domain.Field{
				Name:  ConfusionField(a, p),
				Value: domain.Number(float64(matrix[cell{a, p}])),
			})
		}
	}
	return fields, nil
}

// ClassificationRanker reports precision, recall, f1 and support for every
// label.
type ClassificationRanker struct{}

// NewClassificationRanker creates the "classification" ranker.
func NewClassificationRanker() *ClassificationRanker { return &ClassificationRanker{} }

// Name returns "classification".
func (*ClassificationRanker) Name() string { return "classification" }

// Rank emits four fields per label seen in either the true labels or the
// predictions. Undefined ratios are reported as zero.
func (*ClassificationRanker) Rank(_ context.Context, review domain.State, _ []string) ([]domain.Field, error) {
	actual, predicted, err := reviewedLabels(review)
	if err != nil {
		return nil, err
	}
	f1 := fBeta(1)
	classes := labels(actual, predicted)
	fields := make([]domain.Field, 0, 4*len(classes))
	for _, class := range classes {
		c := countsFor(class, actual, predicted)
		fields = append(fields,
			domain.Field{Name: ClassField(class, "precision"), Value: domain.Number(precision(c))},
			domain.Field{Name: ClassField(class, "recall"), Value: domain.Number(recall(c))},
			domain.Field{Name: ClassField(class, "f1"), Value: domain.Number(f1(c))},
			domain.Field{Name: ClassField(class, "support"), Value: domain.Number(c.tp + c.fn)},
		)
	}
	return fields, nil
}
