package application

import (
	"fmt"
	"sync"

	"github.com/ahrav/go-recipes/infrastructure/evaluators"
	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// CriticCatalog maps identifiers to the explainers, rankers and metrics the
// critic pipeline can run. It is read-only once a critic is built.
type CriticCatalog struct {
	explainers map[string]ports.Explainer
	rankers    map[string]ports.Ranker
	metrics    map[string]ports.Metric
	mu         sync.RWMutex
}

// NewCriticCatalog creates an empty catalog.
func NewCriticCatalog() *CriticCatalog {
	return &CriticCatalog{
		explainers: make(map[string]ports.Explainer),
		rankers:    make(map[string]ports.Ranker),
		metrics:    make(map[string]ports.Metric),
	}
}

// NewDefaultCriticCatalog creates a catalog with the built-in evaluators
// pre-registered.
func NewDefaultCriticCatalog() *CriticCatalog {
	c := NewCriticCatalog()
	for _, e := range evaluators.Explainers() {
		mustRegister(c.RegisterExplainer(e))
	}
	for _, r := range evaluators.Rankers() {
		mustRegister(c.RegisterRanker(r))
	}
	for _, m := range evaluators.Metrics() {
		mustRegister(c.RegisterMetric(m))
	}
	return c
}

func mustRegister(err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to register built-in evaluator: %v", err))
	}
}

// RegisterExplainer adds an explainer under its name.
func (c *CriticCatalog) RegisterExplainer(e ports.Explainer) error {
	if e == nil {
		return fmt.Errorf("explainer cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return register(c.explainers, domain.StageExplainer, e.Name(), e)
}

// RegisterRanker adds a ranker under its name.
func (c *CriticCatalog) RegisterRanker(r ports.Ranker) error {
	if r == nil {
		return fmt.Errorf("ranker cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return register(c.rankers, domain.StageRanker, r.Name(), r)
}

// RegisterMetric adds a metric under its name.
func (c *CriticCatalog) RegisterMetric(m ports.Metric) error {
	if m == nil {
		return fmt.Errorf("metric cannot be nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return register(c.metrics, domain.StageMeasurer, m.Name(), m)
}

// Explainer returns the named explainer.
func (c *CriticCatalog) Explainer(name string) (ports.Explainer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.explainers, domain.StageExplainer, name)
}

// Ranker returns the named ranker.
func (c *CriticCatalog) Ranker(name string) (ports.Ranker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.rankers, domain.StageRanker, name)
}

// Metric returns the named metric.
func (c *CriticCatalog) Metric(name string) (ports.Metric, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.metrics, domain.StageMeasurer, name)
}

// Metrics returns every registered metric name, sorted.
func (c *CriticCatalog) Metrics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.metrics)
}

func register[T any](m map[string]T, stage, name string, v T) error {
	name = foldIdentifier(name)
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", stage)
	}
	if _, exists := m[name]; exists {
		return fmt.Errorf("%s %s already registered", stage, name)
	}
	m[name] = v
	return nil
}

func lookup[T any](m map[string]T, stage, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		err := domain.NewConfigurationError(fmt.Sprintf("%s %s", stage, name), "not registered")
		err.Suggestion = suggest(name, sortedKeys(m))
		return v, err
	}
	return v, nil
}
