// Package testutils provides utilities for testing, including stub
// techniques, stub models, recording observers and synthetic dataset
// generators. These components are intended for internal use within the
// project's test suites and the dataset generator command; they are not
// part of the public API.
package testutils

import (
	"fmt"
	"math/rand/v2"

	"github.com/ahrav/go-recipes/internal/domain"
)

// LabelColumn is the label name used by generated datasets.
const LabelColumn = "label"

// DatasetConfig controls synthetic classification data.
type DatasetConfig struct {
	// Rows is the number of samples.
	Rows int `validate:"min=4"`

	// Features is the number of informative features.
	Features int `validate:"min=1,max=256"`

	// ConstantFeatures appends features that hold the same value in every
	// row, for exercising reducers.
	ConstantFeatures int `validate:"min=0,max=256"`

	// Classes is the number of labels, 0..Classes-1.
	Classes int `validate:"min=2,max=16"`

	// Separation is the distance between class centres along every
	// informative feature. Larger values make the classes easier to tell
	// apart.
	Separation float64 `validate:"gt=0"`

	// Imbalance is the share of rows given to class 0. Zero splits rows
	// evenly.
	Imbalance float64 `validate:"gte=0,lt=1"`

	Seed uint64
}

// DefaultDatasetConfig returns a small, well separated binary problem.
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		Rows:       40,
		Features:   3,
		Classes:    2,
		Separation: 4,
		Seed:       43,
	}
}

// GenerateDataset draws Gaussian blobs, one per class, and returns them as
// unsplit Ingredients. The same config always yields the same data.
func GenerateDataset(cfg DatasetConfig) (domain.Ingredients, error) {
	if err := NewTestValidator().Struct(cfg); err != nil {
		return domain.Ingredients{}, fmt.Errorf("invalid dataset config: %w", err)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))
	width := cfg.Features + cfg.ConstantFeatures
	names := make([]string, 0, width)
	for j := range cfg.Features {
		names = append(names, fmt.Sprintf("f%d", j))
	}
	for j := range cfg.ConstantFeatures {
		names = append(names, fmt.Sprintf("const%d", j))
	}

	x := make([][]float64, cfg.Rows)
	y := make([]float64, cfg.Rows)
	for i := range cfg.Rows {
		class := classFor(i, cfg)
		row := make([]float64, width)
		for j := range cfg.Features {
			row[j] = float64(class)*cfg.Separation + rng.NormFloat64()
		}
		for j := range cfg.ConstantFeatures {
			row[cfg.Features+j] = 1
		}
		x[i] = row
		y[i] = float64(class)
	}

	// Interleave classes so that unshuffled splits still see all of them.
	rng.Shuffle(len(x), func(i, j int) {
		x[i], x[j] = x[j], x[i]
		y[i], y[j] = y[j], y[i]
	})

	return domain.NewIngredients(domain.Schema{Features: names, Label: LabelColumn}, x, y)
}

// classFor assigns row i to a class. With Imbalance set, the first share
// of rows is class 0 and the rest are spread over the other classes.
func classFor(i int, cfg DatasetConfig) int {
	if cfg.Imbalance == 0 {
		return i % cfg.Classes
	}
	if float64(i) < cfg.Imbalance*float64(cfg.Rows) {
		return 0
	}
	return 1 + i%(cfg.Classes-1)
}

// MustDataset is GenerateDataset for tests; it panics on error.
func MustDataset(cfg DatasetConfig) domain.Ingredients {
	in, err := GenerateDataset(cfg)
	if err != nil {
		panic(err)
	}
	return in
}

// SmallDataset returns a hand-written, linearly separable binary dataset
// split into train and test. Values are easy to reason about in tests.
func SmallDataset() domain.Ingredients {
	schema := domain.Schema{Features: []string{"a", "b"}, Label: LabelColumn}
	train := domain.Partition{
		X: [][]float64{{1, 10}, {2, 12}, {3, 11}, {7, 30}, {8, 32}, {9, 31}},
		Y: []float64{0, 0, 0, 1, 1, 1},
	}
	test := domain.Partition{
		X: [][]float64{{1.5, 11}, {8.5, 31}, {2.5, 12}, {7.5, 29}},
		Y: []float64{0, 1, 0, 1},
	}
	full := domain.Partition{
		X: append(train.Clone().X, test.Clone().X...),
		Y: append(train.Clone().Y, test.Clone().Y...),
	}
	return domain.Ingredients{Schema: schema, Full: full, Train: train, Test: test}
}
