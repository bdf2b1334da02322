package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-recipes/infrastructure/techniques"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.TechniqueRegistry = (*TechniqueRegistry)(nil)

// TechniqueRegistry implements ports.TechniqueRegistry, mapping a chef
// stage and a technique name to a capability. The "none" pass-through is
// registered for every stage on construction. Registration happens before
// a run starts; lookups are safe for concurrent use.
type TechniqueRegistry struct {
	// techniques maps stage -> technique name -> technique.
	techniques map[string]map[string]ports.Technique
	// mu protects concurrent access to the techniques map.
	mu sync.RWMutex
}

// NewTechniqueRegistry creates a registry holding only the "none"
// pass-through for every chef stage.
func NewTechniqueRegistry() *TechniqueRegistry {
	r := &TechniqueRegistry{techniques: make(map[string]map[string]ports.Technique)}
	for _, stage := range domain.ChefStages {
		r.techniques[stage] = map[string]ports.Technique{
			domain.TechniqueNone: passThrough{stage: stage},
		}
	}
	return r
}

// NewDefaultTechniqueRegistry creates a registry with the built-in
// techniques pre-registered.
func NewDefaultTechniqueRegistry() *TechniqueRegistry {
	r := NewTechniqueRegistry()
	for _, t := range techniques.Builtin() {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("failed to register built-in technique: %v", err))
		}
	}
	return r
}

// Register adds a technique under its own stage and name.
// Register returns an error if the technique is nil, its stage is unknown,
// or the name is already taken for that stage.
func (r *TechniqueRegistry) Register(t ports.Technique) error {
	if t == nil {
		return fmt.Errorf("technique cannot be nil")
	}
	name, stage := foldIdentifier(t.Name()), t.Stage()
	if name == "" {
		return fmt.Errorf("technique name cannot be empty")
	}
	if !domain.IsChefStage(stage) {
		return domain.NewConfigurationError("stage "+stage, "not a chef stage")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.techniques[stage][name]; exists {
		return fmt.Errorf("technique %s/%s already registered", stage, name)
	}
	r.techniques[stage][name] = t
	return nil
}

// Lookup returns the technique registered under stage and name. An unknown
// pair yields a *domain.ConfigurationError carrying the closest registered
// name as a suggestion.
func (r *TechniqueRegistry) Lookup(stage, name string) (ports.Technique, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName, ok := r.techniques[stage]
	if !ok {
		err := domain.NewConfigurationError("stage "+stage, "not a chef stage")
		err.Suggestion = suggest(stage, domain.ChefStages)
		return nil, err
	}
	t, ok := byName[name]
	if !ok {
		err := domain.NewConfigurationError(fmt.Sprintf("technique %s/%s", stage, name), "not registered")
		err.Suggestion = suggest(name, sortedKeys(byName))
		return nil, err
	}
	return t, nil
}

// Techniques returns the names registered for stage, sorted.
func (r *TechniqueRegistry) Techniques(stage string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.techniques[stage])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// layeredRegistry resolves techniques from local before base. It carries
// techniques built from a project's settings, such as cleaver groups, on
// top of a shared registry.
type layeredRegistry struct {
	local *TechniqueRegistry
	base  ports.TechniqueRegistry
}

var _ ports.TechniqueRegistry = layeredRegistry{}

// withTechniques returns base extended with extra. A name taken in base
// for the same stage is rejected.
func withTechniques(base ports.TechniqueRegistry, extra []ports.Technique) (ports.TechniqueRegistry, error) {
	local := NewTechniqueRegistry()
	for _, t := range extra {
		if t == nil {
			return nil, fmt.Errorf("technique cannot be nil")
		}
		if _, err := base.Lookup(t.Stage(), foldIdentifier(t.Name())); err == nil {
			return nil, fmt.Errorf("technique %s/%s already registered", t.Stage(), t.Name())
		}
		if err := local.Register(t); err != nil {
			return nil, err
		}
	}
	return layeredRegistry{local: local, base: base}, nil
}

func (l layeredRegistry) Lookup(stage, name string) (ports.Technique, error) {
	if name != domain.TechniqueNone {
		if t, err := l.local.Lookup(stage, name); err == nil {
			return t, nil
		}
	}
	t, err := l.base.Lookup(stage, name)
	var cerr *domain.ConfigurationError
	if errors.As(err, &cerr) && domain.IsChefStage(stage) {
		cerr.Suggestion = suggest(name, l.Techniques(stage))
	}
	return t, err
}

func (l layeredRegistry) Techniques(stage string) []string {
	names := append(l.local.Techniques(stage), l.base.Techniques(stage)...)
	slices.Sort(names)
	return slices.Compact(names)
}

// passThrough is the "none" technique: it returns its input unchanged.
type passThrough struct{ stage string }

func (p passThrough) Name() string         { return domain.TechniqueNone }
func (p passThrough) Stage() string        { return p.stage }
func (p passThrough) Parameters() []string { return nil }

func (p passThrough) Run(_ context.Context, in domain.Ingredients, _ map[string]any) (domain.Ingredients, any, error) {
	return in, nil, nil
}
