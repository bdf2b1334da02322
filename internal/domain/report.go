package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ValueKind distinguishes report cell contents.
type ValueKind uint8

// The zero ValueKind is KindAbsent, so a zero Value is an explicit absence.
const (
	KindAbsent ValueKind = iota
	KindNumber
	KindText
)

// Value is a single report cell. The zero value is absent.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

// Number returns a numeric cell. NaN is stored as absent.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// Text returns a text cell.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Absent returns an explicitly absent cell.
func Absent() Value { return Value{} }

// Kind returns the cell kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports whether the cell holds nothing.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Float returns the numeric content and whether the cell is numeric.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Format renders the cell. floatFormat is a fmt verb such as "%.4f"; an
// empty format uses the shortest exact representation. missing is
// returned for absent cells.
func (v Value) Format(floatFormat, missing string) string {
	switch v.kind {
	case KindNumber:
		if floatFormat == "" {
			return strconv.FormatFloat(v.num, 'g', -1, 64)
		}
		return fmt.Sprintf(floatFormat, v.num)
	case KindText:
		return v.text
	default:
		return missing
	}
}

// String renders the cell with default formatting and "NA" for absence.
func (v Value) String() string { return v.Format("", "NA") }

// Field is a named cell produced by a critic stage.
type Field struct {
	Name  string
	Value Value
}

// Identity columns lead every report row.
const (
	ColumnRecipe  = "recipe"
	ColumnStatus  = "status"
	ColumnFailure = "failure"
)

// Row is one report line, keyed by recipe index. Field order is the order
// in which fields were first set.
type Row struct {
	Index  int
	names  []string
	values map[string]Value
}

// NewRow creates an empty row for the given recipe index.
func NewRow(index int) *Row {
	return &Row{Index: index, values: make(map[string]Value)}
}

// NewRecipeRow seeds a row with the identity columns of recipe: index,
// status, one column per stage naming the chosen technique, and the
// failure reason when the recipe failed.
func NewRecipeRow(recipe *Recipe, status Status) *Row {
	row := NewRow(recipe.Index())
	row.Set(ColumnRecipe, Number(float64(recipe.Index())))
	row.Set(ColumnStatus, Text(status.String()))
	for _, step := range recipe.Steps() {
		row.Set(step.Stage, Text(step.Technique))
	}
	if f := recipe.Failure(); f != nil {
		row.Set(ColumnFailure, Text(f.Error()))
	}
	return row
}

// Set stores v under name, keeping the first-set position.
func (r *Row) Set(name string, v Value) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

// Merge sets every field in order.
func (r *Row) Merge(fields ...Field) {
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
}

// Get returns the named cell; a field the row never set is absent.
func (r *Row) Get(name string) Value { return r.values[name] }

// Has reports whether the row set name, even to an absent value.
func (r *Row) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Names returns field names in first-set order.
func (r *Row) Names() []string { return slices.Clone(r.names) }

// Clone returns an independent copy of the row.
func (r *Row) Clone() *Row {
	out := NewRow(r.Index)
	for _, name := range r.names {
		out.Set(name, r.values[name])
	}
	return out
}
