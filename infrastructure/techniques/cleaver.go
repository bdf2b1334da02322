package techniques

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// AllGroups is the cleaver technique that keeps every feature.
const AllGroups = "all"

// ErrEmptyGroup is returned when a column group matches no feature.
var ErrEmptyGroup = errors.New("column group matches no feature")

// ColumnGroup is a cleaver that keeps the features of one named group and
// every feature that belongs to no group. Features claimed only by other
// groups are dropped, so recipes can compare groups against each other.
//
// Group members are exact feature names or path.Match patterns such as
// "lab_*".
type ColumnGroup struct {
	base
	all     bool
	members []string
	grouped []string
}

// ColumnGroups returns one cleaver per group, sorted by name, followed by
// the "all" cleaver. groups maps a group name to its members.
func ColumnGroups(groups map[string][]string) []ports.Technique {
	var grouped []string
	for _, members := range groups {
		grouped = append(grouped, members...)
	}
	slices.Sort(grouped)
	grouped = slices.Compact(grouped)

	var out []ports.Technique
	for _, name := range slices.Sorted(maps.Keys(groups)) {
		if name == AllGroups {
			continue
		}
		out = append(out, &ColumnGroup{
			base:    newBase(name, domain.StageCleaver, struct{}{}),
			members: slices.Clone(groups[name]),
			grouped: grouped,
		})
	}
	return append(out, &ColumnGroup{base: newBase(AllGroups, domain.StageCleaver, struct{}{}), all: true})
}

// Run drops the features claimed only by other groups. The artifact is the
// list of dropped feature names.
func (t *ColumnGroup) Run(ctx context.Context, in domain.Ingredients, _ map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	if t.all {
		return in, []string(nil), nil
	}

	var keep []int
	var dropped []string
	matched := false
	for j, name := range in.Schema.Features {
		switch {
		case matchesAny(name, t.members):
			matched = true
			keep = append(keep, j)
		case matchesAny(name, t.grouped):
			dropped = append(dropped, name)
		default:
			keep = append(keep, j)
		}
	}
	if !matched {
		return fail(span, in, fmt.Errorf("%w: %s", ErrEmptyGroup, t.name))
	}
	span.SetAttributes(attribute.Int("cleaver.dropped", len(dropped)))
	if len(dropped) > 0 {
		keepColumns(&in, keep, dropped)
	}
	return in, dropped, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}
