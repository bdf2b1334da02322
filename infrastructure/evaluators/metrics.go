// Package evaluators provides the built-in critic capabilities: feature
// explainers, report rankers and scoring metrics.
package evaluators

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ahrav/go-recipes/internal/ports"
)

// metric adapts a compute function to ports.Metric.
type metric struct {
	name     string
	negative bool
	requires ports.Requirement
	compute  func(ports.MetricInput) (float64, error)
}

var _ ports.Metric = metric{}

func (m metric) Name() string                { return m.name }
func (m metric) Negative() bool              { return m.negative }
func (m metric) Requires() ports.Requirement { return m.requires }
func (m metric) Compute(in ports.MetricInput) (float64, error) {
	if len(in.Actual) == 0 {
		return 0, ports.ErrEmptyData
	}
	if err := aligned("predictions", in.Actual, in.Predicted); err != nil {
		return 0, err
	}
	switch m.requires {
	case ports.RequiresProbabilities:
		if err := aligned("probabilities", in.Actual, in.Probabilities); err != nil {
			return 0, err
		}
	case ports.RequiresScores:
		if err := aligned("decision scores", in.Actual, in.Scores); err != nil {
			return 0, err
		}
	}
	return m.compute(in)
}

// NewMetric wraps compute as a named metric. Negative metrics are losses:
// lower raw values are better.
func NewMetric(name string, negative bool, requires ports.Requirement, compute func(ports.MetricInput) (float64, error)) ports.Metric {
	return metric{name: name, negative: negative, requires: requires, compute: compute}
}

// Metrics returns every built-in metric.
func Metrics() []ports.Metric {
	pred, proba, scores := ports.RequiresPredictions, ports.RequiresProbabilities, ports.RequiresScores
	return []ports.Metric{
		NewMetric("accuracy", false, pred, accuracy),
		NewMetric("balanced_accuracy", false, pred, balancedAccuracy),
		NewMetric("precision", false, pred, averaged(precision)),
		NewMetric("recall", false, pred, averaged(recall)),
		NewMetric("f1", false, pred, averaged(fBeta(1))),
		NewMetric("fbeta", false, pred, averaged(fBeta(2))),
		NewMetric("jaccard", false, pred, averaged(jaccard)),
		NewMetric("matthews", false, pred, matthews),
		NewMetric("hamming_loss", true, pred, misclassified),
		NewMetric("zero_one_loss", true, pred, misclassified),
		NewMetric("brier_loss", true, proba, brier),
		NewMetric("log_loss", true, proba, logLoss),
		NewMetric("roc_auc", false, proba, rocAUC),
		NewMetric("hinge_loss", true, scores, hinge),
		NewMetric("r2", false, pred, r2),
		NewMetric("explained_variance", false, pred, explainedVariance),
		NewMetric("mean_absolute_error", true, pred, meanAbsoluteError),
		NewMetric("mean_squared_error", true, pred, meanSquaredError),
		NewMetric("max_error", true, pred, maxError),
	}
}

func aligned(what string, actual, other []float64) error {
	if len(other) != len(actual) {
		return fmt.Errorf("%w: %d %s for %d labels", ports.ErrLengthMismatch, len(other), what, len(actual))
	}
	return nil
}

func accuracy(in ports.MetricInput) (float64, error) {
	miss, err := misclassified(in)
	return 1 - miss, err
}

func misclassified(in ports.MetricInput) (float64, error) {
	var wrong float64
	for i, y := range in.Actual {
		if in.Predicted[i] != y {
			wrong++
		}
	}
	return wrong / float64(len(in.Actual)), nil
}

// counts is a one-vs-rest confusion count for a single class.
type counts struct{ tp, fp, fn, tn float64 }

func countsFor(class float64, actual, predicted []float64) counts {
	var c counts
	for i, y := range actual {
		isActual, isPredicted := y == class, predicted[i] == class
		switch {
		case isActual && isPredicted:
			c.tp++
		case !isActual && isPredicted:
			c.fp++
		case isActual && !isPredicted:
			c.fn++
		default:
			c.tn++
		}
	}
	return c
}

// labels returns the distinct labels of both slices in ascending order.
func labels(a, b []float64) []float64 {
	all := append(slices.Clone(a), b...)
	slices.Sort(all)
	return slices.Compact(all)
}

// positiveLabel is 1 for 0/1 labels and the greatest label otherwise.
func positiveLabel(actual []float64) float64 {
	for _, y := range actual {
		if y != 0 && y != 1 {
			return slices.Max(actual)
		}
	}
	return 1
}

// averaged scores the greater label for binary problems and macro
// averages over every label otherwise. An undefined ratio counts as 0.
func averaged(score func(counts) float64) func(ports.MetricInput) (float64, error) {
	return func(in ports.MetricInput) (float64, error) {
		classes := labels(in.Actual, in.Predicted)
		if len(classes) <= 2 {
			return score(countsFor(classes[len(classes)-1], in.Actual, in.Predicted)), nil
		}
		var sum float64
		for _, class := range classes {
			sum += score(countsFor(class, in.Actual, in.Predicted))
		}
		return sum / float64(len(classes)), nil
	}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func precision(c counts) float64 { return ratio(c.tp, c.tp+c.fp) }
func recall(c counts) float64    { return ratio(c.tp, c.tp+c.fn) }
func jaccard(c counts) float64   { return ratio(c.tp, c.tp+c.fp+c.fn) }

func fBeta(beta float64) func(counts) float64 {
	b2 := beta * beta
	return func(c counts) float64 {
		return ratio((1+b2)*c.tp, (1+b2)*c.tp+b2*c.fn+c.fp)
	}
}

// balancedAccuracy is the mean recall over the labels present in actual.
func balancedAccuracy(in ports.MetricInput) (float64, error) {
	classes := labels(in.Actual, nil)
	var sum float64
	for _, class := range classes {
		sum += recall(countsFor(class, in.Actual, in.Predicted))
	}
	return sum / float64(len(classes)), nil
}

// matthews is the multiclass Matthews correlation coefficient. A zero
// denominator yields 0.
func matthews(in ports.MetricInput) (float64, error) {
	n := float64(len(in.Actual))
	var correct, sumPT, sumP2, sumT2 float64
	for _, class := range labels(in.Actual, in.Predicted) {
		c := countsFor(class, in.Actual, in.Predicted)
		t, p := c.tp+c.fn, c.tp+c.fp
		correct += c.tp
		sumPT += p * t
		sumP2 += p * p
		sumT2 += t * t
	}
	den := math.Sqrt((n*n - sumP2) * (n*n - sumT2))
	return ratio(correct*n-sumPT, den), nil
}

// binaryTargets maps labels to 1 for the positive label and 0 otherwise.
func binaryTargets(actual []float64) []float64 {
	pos := positiveLabel(actual)
	out := make([]float64, len(actual))
	for i, y := range actual {
		if y == pos {
			out[i] = 1
		}
	}
	return out
}

func brier(in ports.MetricInput) (float64, error) {
	var sum float64
	for i, y := range binaryTargets(in.Actual) {
		d := in.Probabilities[i] - y
		sum += d * d
	}
	return sum / float64(len(in.Actual)), nil
}

const logLossEpsilon = 1e-15

func logLoss(in ports.MetricInput) (float64, error) {
	var sum float64
	for i, y := range binaryTargets(in.Actual) {
		p := min(max(in.Probabilities[i], logLossEpsilon), 1-logLossEpsilon)
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return sum / float64(len(in.Actual)), nil
}

// rocAUC is the Mann-Whitney estimate with tied scores sharing their
// average rank. It is undefined when only one class is present.
func rocAUC(in ports.MetricInput) (float64, error) {
	if len(labels(in.Actual, nil)) != 2 {
		return 0, fmt.Errorf("%w: roc_auc needs exactly 2 classes in the reviewed labels", ports.ErrUndefined)
	}
	targets := binaryTargets(in.Actual)
	order := make([]int, len(targets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return in.Probabilities[order[a]] < in.Probabilities[order[b]]
	})

	var rankSum, positives float64
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && in.Probabilities[order[j]] == in.Probabilities[order[i]] {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if targets[order[k]] == 1 {
				rankSum += rank
				positives++
			}
		}
		i = j
	}
	negatives := float64(len(targets)) - positives
	return (rankSum - positives*(positives+1)/2) / (positives * negatives), nil
}

// hinge is the mean of max(0, 1 - y*s) with y in {-1, +1}.
func hinge(in ports.MetricInput) (float64, error) {
	var sum float64
	for i, y := range binaryTargets(in.Actual) {
		sign := 2*y - 1
		sum += max(0, 1-sign*in.Scores[i])
	}
	return sum / float64(len(in.Actual)), nil
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	m := meanOf(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values))
}

// degenerate scores a constant target: 1 for a perfect fit and 0
// otherwise.
func degenerate(residual float64) float64 {
	if residual == 0 {
		return 1
	}
	return 0
}

func r2(in ports.MetricInput) (float64, error) {
	m := meanOf(in.Actual)
	var ssRes, ssTot float64
	for i, y := range in.Actual {
		ssRes += (y - in.Predicted[i]) * (y - in.Predicted[i])
		ssTot += (y - m) * (y - m)
	}
	if ssTot == 0 {
		return degenerate(ssRes), nil
	}
	return 1 - ssRes/ssTot, nil
}

func explainedVariance(in ports.MetricInput) (float64, error) {
	residuals := make([]float64, len(in.Actual))
	for i, y := range in.Actual {
		residuals[i] = y - in.Predicted[i]
	}
	total := variance(in.Actual)
	if total == 0 {
		return degenerate(variance(residuals)), nil
	}
	return 1 - variance(residuals)/total, nil
}

func meanAbsoluteError(in ports.MetricInput) (float64, error) {
	var sum float64
	for i, y := range in.Actual {
		sum += math.Abs(y - in.Predicted[i])
	}
	return sum / float64(len(in.Actual)), nil
}

func meanSquaredError(in ports.MetricInput) (float64, error) {
	var sum float64
	for i, y := range in.Actual {
		sum += (y - in.Predicted[i]) * (y - in.Predicted[i])
	}
	return sum / float64(len(in.Actual)), nil
}

func maxError(in ports.MetricInput) (float64, error) {
	var worst float64
	for i, y := range in.Actual {
		worst = max(worst, math.Abs(y-in.Predicted[i]))
	}
	return worst, nil
}
