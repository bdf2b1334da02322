package domain

import (
	"fmt"
	"slices"
)

// DataSplit names one partition of Ingredients.
type DataSplit string

// Supported partitions.
const (
	SplitTrain      DataSplit = "train"
	SplitTest       DataSplit = "test"
	SplitFull       DataSplit = "full"
	SplitValidation DataSplit = "validation"
)

// ParseDataSplit converts a configuration string into a DataSplit.
func ParseDataSplit(s string) (DataSplit, error) {
	switch DataSplit(s) {
	case SplitTrain, SplitTest, SplitFull, SplitValidation:
		return DataSplit(s), nil
	default:
		return "", fmt.Errorf("%w: unknown data split %q", ErrInvalidConfiguration, s)
	}
}

// Schema describes the columns of a dataset.
type Schema struct {
	// Features holds feature column names in matrix column order.
	Features []string `json:"features" yaml:"features"`

	// Label is the name of the label column.
	Label string `json:"label" yaml:"label"`
}

// Clone returns a copy of s that shares no memory with it.
func (s Schema) Clone() Schema {
	return Schema{Features: slices.Clone(s.Features), Label: s.Label}
}

// FeatureIndex returns the matrix column of the named feature, or -1.
func (s Schema) FeatureIndex(name string) int { return slices.Index(s.Features, name) }

// Partition holds a feature matrix and its labels. Rows of X align with Y.
type Partition struct {
	X [][]float64 `json:"x" yaml:"x"`
	Y []float64   `json:"y" yaml:"y"`
}

// Rows returns the number of samples in the partition.
func (p Partition) Rows() int { return len(p.X) }

// Empty reports whether the partition holds no samples.
func (p Partition) Empty() bool { return len(p.X) == 0 }

// Clone returns a deep copy of the partition.
func (p Partition) Clone() Partition {
	if p.X == nil && p.Y == nil {
		return Partition{}
	}
	x := make([][]float64, len(p.X))
	for i, row := range p.X {
		x[i] = slices.Clone(row)
	}
	return Partition{X: x, Y: slices.Clone(p.Y)}
}

// Ingredients is the dataset carried through a recipe. Full holds every
// sample; Train, Test and Validation are filled by a splitter stage.
//
// Ingredients handed to a technique are owned by a single recipe. The
// shared source a run starts from is never given to a technique directly;
// the executor hands out Clone() copies.
type Ingredients struct {
	Schema     Schema    `json:"schema" yaml:"schema"`
	Full       Partition `json:"full" yaml:"full"`
	Train      Partition `json:"train" yaml:"train"`
	Test       Partition `json:"test" yaml:"test"`
	Validation Partition `json:"validation" yaml:"validation"`

	// Dropped lists features removed by reducer or cleaver stages.
	Dropped []string `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// NewIngredients builds Ingredients whose Full partition holds x and y.
// It returns an error when row counts or column counts disagree.
func NewIngredients(schema Schema, x [][]float64, y []float64) (Ingredients, error) {
	if len(x) != len(y) {
		return Ingredients{}, fmt.Errorf("%w: %d feature rows but %d labels", ErrInvalidState, len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(schema.Features) {
			return Ingredients{}, fmt.Errorf("%w: row %d has %d values, schema has %d features",
				ErrInvalidState, i, len(row), len(schema.Features))
		}
	}
	return Ingredients{Schema: schema, Full: Partition{X: x, Y: y}}, nil
}

// Clone returns a deep copy of the ingredients.
func (in Ingredients) Clone() Ingredients {
	return Ingredients{
		Schema:     in.Schema.Clone(),
		Full:       in.Full.Clone(),
		Train:      in.Train.Clone(),
		Test:       in.Test.Clone(),
		Validation: in.Validation.Clone(),
		Dropped:    slices.Clone(in.Dropped),
	}
}

// Split returns the requested partition.
func (in Ingredients) Split(split DataSplit) (Partition, error) {
	switch split {
	case SplitTrain:
		return in.Train, nil
	case SplitTest:
		return in.Test, nil
	case SplitFull:
		return in.Full, nil
	case SplitValidation:
		return in.Validation, nil
	default:
		return Partition{}, fmt.Errorf("%w: unknown data split %q", ErrInvalidConfiguration, split)
	}
}

// FitPartition returns the partition a stage should learn from: Train once
// a splitter has run, Full before that.
func (in Ingredients) FitPartition() Partition {
	if !in.Train.Empty() {
		return in.Train
	}
	return in.Full
}

// IsSplit reports whether a splitter stage has populated Train.
func (in Ingredients) IsSplit() bool { return !in.Train.Empty() }

// Partitions returns pointers to every non-empty partition so that a
// technique can apply one transformation to all of them.
func (in *Ingredients) Partitions() []*Partition {
	all := []*Partition{&in.Full, &in.Train, &in.Test, &in.Validation}
	out := make([]*Partition, 0, len(all))
	for _, p := range all {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}
