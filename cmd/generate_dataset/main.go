// Command generate_dataset writes a synthetic classification dataset as
// CSV, for trying out recipe settings without real data.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ahrav/go-recipes/infrastructure/reportio"
	"github.com/ahrav/go-recipes/internal/testutils"
)

func main() {
	defaults := testutils.DefaultDatasetConfig()
	var (
		rows       = flag.Int("rows", 200, "Number of samples")
		features   = flag.Int("features", defaults.Features, "Number of informative features")
		constants  = flag.Int("constant-features", 1, "Number of constant features, useful for reducer stages")
		classes    = flag.Int("classes", defaults.Classes, "Number of classes")
		separation = flag.Float64("separation", defaults.Separation, "Distance between class centres")
		imbalance  = flag.Float64("imbalance", 0, "Share of rows given to class 0 (0 splits evenly)")
		seed       = flag.Uint64("seed", defaults.Seed, "Random seed")
		outputPath = flag.String("output", "testdata/classification.csv", "Output file path")
	)
	flag.Parse()

	cfg := testutils.DatasetConfig{
		Rows:             *rows,
		Features:         *features,
		ConstantFeatures: *constants,
		Classes:          *classes,
		Separation:       *separation,
		Imbalance:        *imbalance,
		Seed:             *seed,
	}
	dataset, err := testutils.GenerateDataset(cfg)
	if err != nil {
		log.Fatalf("Failed to generate dataset: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := reportio.SaveDataset(*outputPath, dataset); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	counts := make(map[float64]int)
	for _, y := range dataset.Full.Y {
		counts[y]++
	}
	fmt.Printf("Generated classification dataset:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Rows: %d\n", dataset.Full.Rows())
	fmt.Printf("- Features: %v\n", dataset.Schema.Features)
	fmt.Printf("- Class counts: %v\n", counts)
}
