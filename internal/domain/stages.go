package domain

import "slices"

// Chef stage names. Together they form the vocabulary a recipe plan may
// declare; the slice order is the conventional pipeline order.
const (
	StageScaler   = "scaler"
	StageSplitter = "splitter"
	StageEncoder  = "encoder"
	StageMixer    = "mixer"
	StageCleaver  = "cleaver"
	StageSampler  = "sampler"
	StageReducer  = "reducer"
	StageModeler  = "modeler"
)

// Critic stage names, in the fixed order the critic pipeline runs them.
const (
	StagePredictor = "predictor"
	StageOddsmaker = "oddsmaker"
	StageExplainer = "explainer"
	StageRanker    = "ranker"
	StageMeasurer  = "measurer"
	StageReporter  = "reporter"
)

// TechniqueNone is the pass-through technique available for every chef stage.
const TechniqueNone = "none"

// ChefStages lists every stage a recipe may contain in conventional order.
var ChefStages = []string{
	StageScaler,
	StageSplitter,
	StageEncoder,
	StageMixer,
	StageCleaver,
	StageSampler,
	StageReducer,
	StageModeler,
}

// CriticStages lists the critic pipeline stages in execution order.
var CriticStages = []string{
	StagePredictor,
	StageOddsmaker,
	StageExplainer,
	StageRanker,
	StageMeasurer,
	StageReporter,
}

// IsChefStage reports whether name belongs to the chef stage vocabulary.
func IsChefStage(name string) bool { return slices.Contains(ChefStages, name) }
