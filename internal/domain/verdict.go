package domain

import "time"

// Verdict is the final judgement of a run: the recipe that scored highest
// on the primary metric.
type Verdict struct {
	// RunID identifies the run that produced this verdict.
	RunID string `json:"run_id" yaml:"run_id"`

	// RecipeIndex is the index of the winning recipe.
	RecipeIndex int `json:"recipe_index" yaml:"recipe_index"`

	// Steps are the winning recipe's technique choices.
	Steps []Step `json:"steps" yaml:"steps"`

	// Metric is the field the recipes were compared on.
	Metric string `json:"metric" yaml:"metric"`

	// Score is the winning value, already in higher-is-better orientation.
	Score float64 `json:"score" yaml:"score"`

	// Candidates is the number of rows that reported Metric.
	Candidates int `json:"candidates" yaml:"candidates"`

	// Timestamp records when this verdict was created.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// FailureSummary describes one failed recipe for the failure view of a
// report.
type FailureSummary struct {
	RecipeIndex int    `json:"recipe_index" yaml:"recipe_index"`
	Steps       []Step `json:"steps" yaml:"steps"`
	Stage       string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Technique   string `json:"technique,omitempty" yaml:"technique,omitempty"`
	Reason      string `json:"reason" yaml:"reason"`
	Cancelled   bool   `json:"cancelled" yaml:"cancelled"`
}
