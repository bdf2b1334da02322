package ports

// Model is a fitted estimator returned by a modeler technique. Every model
// produces discrete predictions; the optional capabilities below are
// discovered with type assertions by the critic.
type Model interface {
	Predict(x [][]float64) ([]float64, error)
}

// ProbabilityModel exposes per-class probability estimates. Columns follow
// Classes order.
type ProbabilityModel interface {
	Model
	Classes() []float64
	PredictProba(x [][]float64) ([][]float64, error)
}

// LogProbabilityModel additionally exposes log-probabilities.
type LogProbabilityModel interface {
	ProbabilityModel
	PredictLogProba(x [][]float64) ([][]float64, error)
}

// DecisionModel exposes raw decision-function output, one score per
// sample, for models without calibrated probabilities.
type DecisionModel interface {
	Model
	DecisionFunction(x [][]float64) ([]float64, error)
}

// ImportanceModel exposes global feature importances aligned with the
// feature columns the model was fitted on.
type ImportanceModel interface {
	Model
	FeatureImportances() []float64
}
