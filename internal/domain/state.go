// Package domain contains pure, dependency-free domain models and types
// for the recipe engine: ingredients, recipes, report rows and the
// copy-on-write review state.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Key names a typed slot in a State. The type parameter fixes what Get
// returns, so callers never assert.
type Key[T any] struct{ name string }

// NewKey returns a key for values of type T stored under name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string form as used by WithMultiple.
func (k Key[T]) Name() string { return k.name }

// Keys written by the critic stages, in the order the stages run.
var (
	// KeyActual stores the true labels of the reviewed partition.
	KeyActual = Key[[]float64]{"actual"}

	// KeyPredictions stores discrete predictions from the fitted model.
	KeyPredictions = Key[[]float64]{"predictions"}

	// KeyProbabilities stores per-class probability estimates, one row per
	// sample.
	KeyProbabilities = Key[[][]float64]{"probabilities"}

	// KeyLogProbabilities stores per-class log-probability estimates.
	KeyLogProbabilities = Key[[][]float64]{"log_probabilities"}

	// KeyDecisionScores stores raw decision-function output for models
	// that expose no probabilities.
	KeyDecisionScores = Key[[]float64]{"decision_scores"}

	// KeyExplanations stores feature attributions in explainer order.
	KeyExplanations = Key[[]Explanation]{"explanations"}

	// KeyMeasurements stores reported metric values, already oriented so
	// that higher is better.
	KeyMeasurements = Key[map[string]float64]{"measurements"}

	// KeyDegradations stores the critic stages that could not produce
	// their fields.
	KeyDegradations = Key[[]Degradation]{"degradations"}

	KeyRunID        = Key[string]{"review.run_id"}
	KeyRecipeIndex  = Key[int]{"review.recipe_index"}
	KeyDataToReview = Key[string]{"review.data_to_review"}
)

// Explanation holds global feature attributions produced by one explainer.
// Features and Values are aligned.
type Explanation struct {
	// Technique is the explainer that produced the attributions.
	Technique string `json:"technique" yaml:"technique"`

	// Features are feature names in schema order.
	Features []string `json:"features" yaml:"features"`

	// Values are the attributions, one per feature.
	Values []float64 `json:"values" yaml:"values"`
}

// State is the critic accumulator. Every stage receives a State and
// returns a derived one; a State is never mutated after construction, so
// it can be shared freely between goroutines. Values are copied on the way
// in and on the way out.
//
// The zero State is empty and ready to use.
type State struct {
	data map[string]any
}

// NewState returns an empty State.
func NewState() State {
	return State{data: make(map[string]any)}
}

// Get returns the value stored under key. ok is false when the key is
// absent or holds a value of another type.
//
//	predictions, ok := Get(state, KeyPredictions)
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}
	val, ok := copyAny(value).(T)
	return val, ok
}

// With returns a copy of s with key set to value.
func With[T any](s State, key Key[T], value T) State {
	data := s.cloneData()
	data[key.name] = copyAny(value)
	return State{data: data}
}

// WithMultiple returns a copy of s with every entry of updates set, paying
// for a single clone of the underlying map.
func (s State) WithMultiple(updates map[string]any) State {
	data := s.cloneData()
	for k, v := range updates {
		data[k] = copyAny(v)
	}
	return State{data: data}
}

func (s State) cloneData() map[string]any {
	if s.data == nil {
		return make(map[string]any)
	}
	return maps.Clone(s.data)
}

// Keys returns the stored key names in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.data))
}

func (s State) String() string {
	var b strings.Builder
	b.WriteString("State{")
	for i, k := range s.Keys() {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s:%v", k, s.data[k])
	}
	b.WriteString("}")
	return b.String()
}

// copyAny returns a deep copy of value. Slices, maps, pointers and the
// exported fields of structs are copied; unexported struct fields are
// left at their zero value.
func copyAny(value any) any {
	if value == nil {
		return nil
	}
	return deepCopy(reflect.ValueOf(value)).Interface()
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out

	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := range v.NumField() {
			if out.Field(i).CanSet() {
				out.Field(i).Set(deepCopy(v.Field(i)))
			}
		}
		return out

	default:
		return v
	}
}

// ReviewContext identifies the recipe a State belongs to.
type ReviewContext struct {
	RunID        string
	RecipeIndex  int
	DataToReview DataSplit
}

// WithReviewContext returns a copy of s carrying rc. The critic stores it
// before the predictor runs.
func (s State) WithReviewContext(rc ReviewContext) State {
	return s.WithMultiple(map[string]any{
		KeyRunID.name:        rc.RunID,
		KeyRecipeIndex.name:  rc.RecipeIndex,
		KeyDataToReview.name: string(rc.DataToReview),
	})
}

// GetReviewContext returns the stored review context; ok is false unless
// every field is present.
func (s State) GetReviewContext() (ReviewContext, bool) {
	runID, ok1 := Get(s, KeyRunID)
	index, ok2 := Get(s, KeyRecipeIndex)
	split, ok3 := Get(s, KeyDataToReview)
	if !ok1 || !ok2 || !ok3 {
		return ReviewContext{}, false
	}
	return ReviewContext{RunID: runID, RecipeIndex: index, DataToReview: DataSplit(split)}, true
}

// WithDegradation returns a copy of s with d appended to the recorded
// degradations.
func (s State) WithDegradation(d Degradation) State {
	current, _ := Get(s, KeyDegradations)
	return With(s, KeyDegradations, append(current, d))
}

// Degradations returns every degradation recorded so far.
func (s State) Degradations() []Degradation {
	d, _ := Get(s, KeyDegradations)
	return d
}
