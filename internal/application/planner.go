package application

import (
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

// StageSpec declares the candidate techniques for one stage.
type StageSpec struct {
	Stage      string   `yaml:"stage"`
	Techniques []string `yaml:"techniques"`
}

// PlanOption configures NewPlan.
type PlanOption func(*planOptions)

type planOptions struct {
	maxRecipes int
}

// WithMaxRecipes rejects plans whose product exceeds n. Zero disables the
// guard.
func WithMaxRecipes(n int) PlanOption {
	return func(o *planOptions) { o.maxRecipes = n }
}

// Plan is the cartesian product of the declared stage specs.
//
// Order contract: recipes are generated in odometer order. The first
// declared stage varies slowest and the last declared stage varies fastest,
// exactly like nested loops over the stages in declaration order. Recipe i
// is obtained by mixed-radix decoding of i, so the same specs always yield
// the same index for the same technique combination. Within a recipe, steps
// always follow the declared stage order.
//
// A Plan holds no generation position; it may be iterated any number of
// times and from several goroutines.
type Plan struct {
	specs []StageSpec
	size  int
}

// NewPlan validates specs against registry and returns the plan.
// It returns a *domain.ConfigurationError when no stages are declared, a
// stage is unknown or declared twice, a stage has no techniques, a
// technique is listed twice or not registered, or the product exceeds the
// configured maximum.
func NewPlan(specs []StageSpec, registry ports.TechniqueRegistry, opts ...PlanOption) (*Plan, error) {
	var o planOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(specs) == 0 {
		return nil, domain.NewConfigurationError("stages", "no stages declared")
	}

	copied := make([]StageSpec, 0, len(specs))
	seenStages := make(map[string]struct{}, len(specs))
	size := 1
	for _, spec := range specs {
		if !domain.IsChefStage(spec.Stage) {
			err := domain.NewConfigurationError("stage "+spec.Stage, "not a chef stage")
			err.Suggestion = suggest(spec.Stage, domain.ChefStages)
			return nil, err
		}
		if _, dup := seenStages[spec.Stage]; dup {
			return nil, domain.NewConfigurationError("stage "+spec.Stage, "declared more than once")
		}
		seenStages[spec.Stage] = struct{}{}

		if len(spec.Techniques) == 0 {
			return nil, domain.NewConfigurationError("stage "+spec.Stage, "empty technique list")
		}
		seenTechniques := make(map[string]struct{}, len(spec.Techniques))
		for _, name := range spec.Techniques {
			if _, dup := seenTechniques[name]; dup {
				return nil, domain.NewConfigurationError(
					fmt.Sprintf("technique %s/%s", spec.Stage, name), "listed more than once")
			}
			seenTechniques[name] = struct{}{}
			if _, err := registry.Lookup(spec.Stage, name); err != nil {
				return nil, err
			}
		}

		n := len(spec.Techniques)
		if size > math.MaxInt/n {
			return nil, domain.NewConfigurationError("plan", "number of recipes overflows")
		}
		size *= n
		copied = append(copied, StageSpec{Stage: spec.Stage, Techniques: slices.Clone(spec.Techniques)})
	}

	if o.maxRecipes > 0 && size > o.maxRecipes {
		return nil, domain.NewConfigurationError("plan",
			fmt.Sprintf("%d recipes exceed max_recipes %d", size, o.maxRecipes))
	}

	return &Plan{specs: copied, size: size}, nil
}

// PlanFromSettings builds the plan for a settings section, reading the
// stage order from "<section>_steps" and each stage's candidates from
// "<stage>_techniques".
func PlanFromSettings(settings *Settings, section string, registry ports.TechniqueRegistry, opts ...PlanOption) (*Plan, error) {
	stages, err := settings.Steps(section)
	if err != nil {
		return nil, err
	}
	specs := make([]StageSpec, 0, len(stages))
	for _, stage := range stages {
		techs, err := settings.Techniques(section, stage)
		if err != nil {
			return nil, err
		}
		specs = append(specs, StageSpec{Stage: stage, Techniques: techs})
	}
	return NewPlan(specs, registry, opts...)
}

// Len returns the number of recipes, the product of the technique counts.
func (p *Plan) Len() int { return p.size }

// Stages returns the declared stage order.
func (p *Plan) Stages() []string {
	stages := make([]string, len(p.specs))
	for i, spec := range p.specs {
		stages[i] = spec.Stage
	}
	return stages
}

// Specs returns a copy of the validated stage specs.
func (p *Plan) Specs() []StageSpec {
	out := make([]StageSpec, len(p.specs))
	for i, spec := range p.specs {
		out[i] = StageSpec{Stage: spec.Stage, Techniques: slices.Clone(spec.Techniques)}
	}
	return out
}

// Steps decodes recipe index into its steps.
func (p *Plan) Steps(index int) ([]domain.Step, error) {
	if index < 0 || index >= p.size {
		return nil, fmt.Errorf("recipe index %d out of range [0, %d)", index, p.size)
	}
	steps := make([]domain.Step, len(p.specs))
	rem := index
	for j := len(p.specs) - 1; j >= 0; j-- {
		n := len(p.specs[j].Techniques)
		steps[j] = domain.Step{Stage: p.specs[j].Stage, Technique: p.specs[j].Techniques[rem%n]}
		rem /= n
	}
	return steps, nil
}

// Recipe returns a new CREATED recipe for index.
func (p *Plan) Recipe(index int) (*domain.Recipe, error) {
	steps, err := p.Steps(index)
	if err != nil {
		return nil, err
	}
	return domain.NewRecipe(index, steps), nil
}

// Recipes returns a lazy sequence of fresh recipes in index order. Each
// iteration produces new Recipe values.
func (p *Plan) Recipes() iter.Seq[*domain.Recipe] {
	return func(yield func(*domain.Recipe) bool) {
		for i := range p.size {
			steps, _ := p.Steps(i)
			if !yield(domain.NewRecipe(i, steps)) {
				return
			}
		}
	}
}
