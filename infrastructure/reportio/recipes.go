package reportio

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-recipes/internal/domain"
)

// RecipeRecord is the exported view of one recipe.
type RecipeRecord struct {
	Index   int           `yaml:"index"`
	Status  string        `yaml:"status"`
	Steps   []domain.Step `yaml:"steps"`
	Failure string        `yaml:"failure,omitempty"`

	// Features are the feature columns that reached the modeler.
	Features []string `yaml:"features,omitempty"`
	Dropped  []string `yaml:"dropped,omitempty"`
}

// RunExport is the document written by ExportRecipes.
type RunExport struct {
	RunID   string          `yaml:"run_id"`
	Best    *domain.Verdict `yaml:"best,omitempty"`
	Recipes []RecipeRecord  `yaml:"recipes"`
}

// NewRunExport builds the export document. best may be nil when no
// recipe reported the primary metric.
func NewRunExport(runID string, recipes []*domain.Recipe, best *domain.Verdict) RunExport {
	out := RunExport{RunID: runID, Best: best, Recipes: make([]RecipeRecord, 0, len(recipes))}
	for _, recipe := range recipes {
		record := RecipeRecord{
			Index:  recipe.Index(),
			Status: recipe.Status().String(),
			Steps:  recipe.Steps(),
		}
		if failure := recipe.Failure(); failure != nil {
			record.Failure = failure.Error()
		}
		if in := recipe.Results.Ingredients; in != nil {
			record.Features = in.Schema.Features
			record.Dropped = in.Dropped
		}
		out.Recipes = append(out.Recipes, record)
	}
	return out
}

// ExportRecipes writes doc as YAML.
func ExportRecipes(w io.Writer, doc RunExport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode recipes: %w", err)
	}
	return enc.Close()
}

// SaveRecipes writes doc to path.
func SaveRecipes(path string, doc RunExport) error {
	return writeFile(path, func(w io.Writer) error { return ExportRecipes(w, doc) })
}

// ReadRecipes decodes a document written by ExportRecipes.
func ReadRecipes(r io.Reader) (RunExport, error) {
	var doc RunExport
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return RunExport{}, fmt.Errorf("decode recipes: %w", err)
	}
	return doc, nil
}
