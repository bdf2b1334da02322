package application

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-recipes/internal/domain"
)

// Report accumulates one row per recipe, keyed by recipe index. Rows may be
// added in any order and from several goroutines; every read view is
// ordered by index, so the result does not depend on completion order.
type Report struct {
	runID  string
	stages []string

	mu      sync.RWMutex
	rows    map[int]*domain.Row
	recipes map[int]*domain.Recipe
}

// NewReport creates an empty report. stages is the declared stage order,
// used to place the technique columns right after the identity columns.
func NewReport(runID string, stages []string) *Report {
	return &Report{
		runID:   runID,
		stages:  slices.Clone(stages),
		rows:    make(map[int]*domain.Row),
		recipes: make(map[int]*domain.Recipe),
	}
}

// RunID returns the identifier of the run that produced the report.
func (r *Report) RunID() string { return r.runID }

// Add records the row of a terminal recipe. A SCORED recipe contributes
// the row built by the critic; a FAILED recipe contributes its identity
// columns and failure reason. Add rejects recipes that are not terminal
// and a second row for the same index.
func (r *Report) Add(recipe *domain.Recipe) error {
	var row *domain.Row
	switch status := recipe.Status(); status {
	case domain.StatusScored:
		if recipe.Results.Row == nil {
			return fmt.Errorf("%w: scored recipe %d has no report row", domain.ErrInvalidState, recipe.Index())
		}
		row = recipe.Results.Row.Clone()
	case domain.StatusFailed:
		row = domain.NewRecipeRow(recipe, status)
	default:
		return fmt.Errorf("%w: recipe %d is %s, want scored or failed", domain.ErrInvalidState, recipe.Index(), status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[recipe.Index()]; exists {
		return fmt.Errorf("%w: recipe %d", domain.ErrDuplicateRow, recipe.Index())
	}
	r.rows[recipe.Index()] = row
	r.recipes[recipe.Index()] = recipe
	return nil
}

// Len returns the number of rows.
func (r *Report) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// Row returns a copy of the row for index.
func (r *Report) Row(index int) (*domain.Row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[index]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Recipe returns the recipe stored for index.
func (r *Report) Recipe(index int) (*domain.Recipe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipe, ok := r.recipes[index]
	return recipe, ok
}

// Recipes returns every stored recipe ordered by index.
func (r *Report) Recipes() []*domain.Recipe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Recipe, 0, len(r.recipes))
	for _, index := range r.indicesLocked() {
		out = append(out, r.recipes[index])
	}
	return out
}

// Rows returns copies of every row ordered by index.
func (r *Report) Rows() []*domain.Row {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Row, 0, len(r.rows))
	for _, index := range r.indicesLocked() {
		out = append(out, r.rows[index].Clone())
	}
	return out
}

// Columns returns the report column set: the recipe and status columns,
// one column per declared stage, then every other field in order of first
// appearance when rows are scanned by index.
func (r *Report) Columns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.columnsLocked()
}

func (r *Report) columnsLocked() []string {
	columns := append([]string{domain.ColumnRecipe, domain.ColumnStatus}, r.stages...)
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		seen[c] = struct{}{}
	}
	for _, index := range r.indicesLocked() {
		for _, name := range r.rows[index].Names() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			columns = append(columns, name)
		}
	}
	return columns
}

// Table returns the header and one value slice per row, ordered by index.
// A field a row never produced is an absent value.
func (r *Report) Table() ([]string, [][]domain.Value) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	columns := r.columnsLocked()
	indices := r.indicesLocked()
	table := make([][]domain.Value, 0, len(indices))
	for _, index := range indices {
		row := r.rows[index]
		values := make([]domain.Value, len(columns))
		for i, c := range columns {
			values[i] = row.Get(c)
		}
		table = append(table, values)
	}
	return columns, table
}

// Failures lists every failed recipe with its failure reason, ordered by
// index.
func (r *Report) Failures() []domain.FailureSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.FailureSummary
	for _, index := range r.indicesLocked() {
		recipe := r.recipes[index]
		failure := recipe.Failure()
		if failure == nil {
			continue
		}
		out = append(out, domain.FailureSummary{
			RecipeIndex: index,
			Steps:       recipe.Steps(),
			Stage:       failure.Stage,
			Technique:   failure.Technique,
			Reason:      failure.Err.Error(),
			Cancelled:   failure.Cancelled(),
		})
	}
	return out
}

// Best returns the scored recipe with the highest value of metric. Ties go
// to the lowest index. It returns an error when no row reports metric.
func (r *Report) Best(metric string) (domain.Verdict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	verdict := domain.Verdict{RunID: r.runID, RecipeIndex: -1, Metric: metric}
	for _, index := range r.indicesLocked() {
		value, ok := r.rows[index].Get(metric).Float()
		if !ok || r.recipes[index].Status() != domain.StatusScored {
			continue
		}
		verdict.Candidates++
		if verdict.RecipeIndex < 0 || value > verdict.Score {
			verdict.RecipeIndex = index
			verdict.Score = value
		}
	}
	if verdict.RecipeIndex < 0 {
		return domain.Verdict{}, fmt.Errorf("%w: no scored recipe reported %q", domain.ErrInvalidState, metric)
	}
	verdict.Steps = r.recipes[verdict.RecipeIndex].Steps()
	verdict.Timestamp = time.Now()
	return verdict, nil
}

func (r *Report) indicesLocked() []int {
	indices := make([]int, 0, len(r.rows))
	for index := range r.rows {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	return indices
}
