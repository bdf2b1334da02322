// Package reportio reads source datasets and writes run results: the
// report table, the long-format predictions file and the recipe export.
package reportio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ahrav/go-recipes/internal/domain"
)

// DefaultMissingValue marks absent report cells when no marker is set.
const DefaultMissingValue = "NA"

// Table is the read view of a report: a header and one value slice per
// row, aligned with the header.
type Table interface {
	Table() ([]string, [][]domain.Value)
}

// Format controls how report cells are rendered.
type Format struct {
	// FloatFormat is a fmt verb such as "%.4f". Empty renders the
	// shortest exact representation.
	FloatFormat string

	// MissingValue replaces absent cells.
	MissingValue string
}

func (f Format) missing() string {
	if f.MissingValue == "" {
		return DefaultMissingValue
	}
	return f.MissingValue
}

// WriteReport writes t as CSV with a header line. Rows keep the order of
// the table, which for a report is recipe index order. The recipe column
// is written as a plain index regardless of the float format.
func WriteReport(w io.Writer, t Table, f Format) error {
	header, rows := t.Table()

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("%w: report row %d has %d cells for %d columns",
				domain.ErrInvalidState, i, len(row), len(header))
		}
		for j, v := range row {
			format := f.FloatFormat
			if header[j] == domain.ColumnRecipe {
				format = ""
			}
			record[j] = v.Format(format, f.missing())
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write report row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveReport writes t to path, replacing any existing file.
func SaveReport(path string, t Table, f Format) error {
	return writeFile(path, func(w io.Writer) error { return WriteReport(w, t, f) })
}

// writeFile creates path and runs write against it, reporting a close
// failure when write itself succeeded.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	return write(file)
}
