package reportio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ahrav/go-recipes/internal/domain"
)

// PredictionColumns is the header of the predictions file without the
// optional probability column.
var PredictionColumns = []string{"recipe", "row", "actual", "prediction"}

// PredictionFormat controls the predictions file.
type PredictionFormat struct {
	Format

	// Probabilities adds the positive-class probability column.
	Probabilities bool

	// PositiveClassColumn selects the probability column of the
	// per-class estimates.
	PositiveClassColumn int
}

// WritePredictions writes one line per reviewed sample of every scored
// recipe: recipe index, row number within the reviewed partition, true
// label, prediction and, when enabled, the positive-class probability.
// Recipes without predictions contribute no lines. A recipe whose model
// gave no probabilities gets the missing marker in that column.
func WritePredictions(w io.Writer, recipes []*domain.Recipe, f PredictionFormat) error {
	header := PredictionColumns
	if f.Probabilities {
		header = append(header[:len(header):len(header)], "probability")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write predictions header: %w", err)
	}

	for _, recipe := range recipes {
		if recipe.Status() != domain.StatusScored {
			continue
		}
		review := recipe.Results.Review
		actual, _ := domain.Get(review, domain.KeyActual)
		predictions, ok := domain.Get(review, domain.KeyPredictions)
		if !ok || len(predictions) != len(actual) {
			continue
		}
		probabilities, _ := domain.Get(review, domain.KeyProbabilities)

		index := strconv.Itoa(recipe.Index())
		for i := range predictions {
			record := []string{
				index,
				strconv.Itoa(i),
				domain.Number(actual[i]).Format(f.FloatFormat, f.missing()),
				domain.Number(predictions[i]).Format(f.FloatFormat, f.missing()),
			}
			if f.Probabilities {
				record = append(record, probabilityCell(probabilities, i, f))
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write predictions of recipe %d: %w", recipe.Index(), err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func probabilityCell(probabilities [][]float64, row int, f PredictionFormat) string {
	v := domain.Absent()
	if row < len(probabilities) && f.PositiveClassColumn < len(probabilities[row]) {
		v = domain.Number(probabilities[row][f.PositiveClassColumn])
	}
	return v.Format(f.FloatFormat, f.missing())
}

// SavePredictions writes the predictions file to path.
func SavePredictions(path string, recipes []*domain.Recipe, f PredictionFormat) error {
	return writeFile(path, func(w io.Writer) error { return WritePredictions(w, recipes, f) })
}
