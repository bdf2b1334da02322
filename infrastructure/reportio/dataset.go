package reportio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/ahrav/go-recipes/internal/domain"
)

// DefaultLabelColumn is the label column name used when none is given.
const DefaultLabelColumn = "label"

// ErrMalformedDataset reports a CSV dataset that cannot be loaded.
var ErrMalformedDataset = errors.New("malformed dataset")

// LoadDataset reads a CSV dataset with a header line. The label column
// may appear anywhere; every other column is a numeric feature kept in
// file order. Blank lines are skipped.
func LoadDataset(r io.Reader, label string) (domain.Ingredients, error) {
	if label == "" {
		label = DefaultLabelColumn
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return domain.Ingredients{}, fmt.Errorf("%w: empty input", ErrMalformedDataset)
	}
	if err != nil {
		return domain.Ingredients{}, fmt.Errorf("%w: %w", ErrMalformedDataset, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	labelAt := slices.Index(header, label)
	if labelAt < 0 {
		return domain.Ingredients{}, fmt.Errorf("%w: no %q column in header %v", ErrMalformedDataset, label, header)
	}
	features := slices.Delete(slices.Clone(header), labelAt, labelAt+1)

	var x [][]float64
	var y []float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Ingredients{}, fmt.Errorf("%w: %w", ErrMalformedDataset, err)
		}
		line, _ := reader.FieldPos(0)

		row := make([]float64, 0, len(features))
		for j, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return domain.Ingredients{}, fmt.Errorf("%w: line %d column %q: %w",
					ErrMalformedDataset, line, header[j], err)
			}
			if j == labelAt {
				y = append(y, v)
				continue
			}
			row = append(row, v)
		}
		x = append(x, row)
	}
	if len(x) == 0 {
		return domain.Ingredients{}, fmt.Errorf("%w: no data rows", ErrMalformedDataset)
	}

	return domain.NewIngredients(domain.Schema{Features: features, Label: label}, x, y)
}

// LoadDatasetFile opens path and loads it with LoadDataset.
func LoadDatasetFile(path, label string) (domain.Ingredients, error) {
	file, err := os.Open(path)
	if err != nil {
		return domain.Ingredients{}, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	return LoadDataset(file, label)
}

// WriteDataset writes the full partition of in as CSV, features first and
// the label last. Values use the shortest exact representation so that
// LoadDataset reads back the same numbers.
func WriteDataset(w io.Writer, in domain.Ingredients) error {
	label := in.Schema.Label
	if label == "" {
		label = DefaultLabelColumn
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(append(slices.Clone(in.Schema.Features), label)); err != nil {
		return fmt.Errorf("write dataset header: %w", err)
	}
	record := make([]string, len(in.Schema.Features)+1)
	for i, row := range in.Full.X {
		for j, v := range row {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = strconv.FormatFloat(in.Full.Y[i], 'g', -1, 64)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write dataset row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveDataset writes in to path.
func SaveDataset(path string, in domain.Ingredients) error {
	return writeFile(path, func(w io.Writer) error { return WriteDataset(w, in) })
}
