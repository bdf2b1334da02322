// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-recipes/internal/domain"
)

// Technique is one concrete, parameterized capability bound to a single
// chef stage. Techniques must be safe for concurrent use: the same value
// runs inside many recipes at once, each with its own Ingredients.
type Technique interface {
	// Name returns the identifier used in settings, e.g. "minmax".
	Name() string

	// Stage returns the chef stage the technique belongs to.
	Stage() string

	// Parameters lists the option names the technique recognizes. Any
	// other option supplied in settings is rejected before Run is called.
	Parameters() []string

	// Run transforms the ingredients and returns them together with an
	// optional fitted artifact. A modeler technique returns a Model as its
	// artifact. The input ingredients are owned by the calling recipe and
	// may be modified in place.
	//
	// Example:
	//
	//	out, artifact, err := technique.Run(ctx, ingredients, params)
	//	if err != nil {
	//	    return fmt.Errorf("technique %s failed: %w", technique.Name(), err)
	//	}
	Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error)
}

// TechniqueRegistry resolves (stage, name) pairs to techniques. It is
// read-only once a run starts.
type TechniqueRegistry interface {
	// Lookup returns the technique registered under stage and name.
	Lookup(stage, name string) (Technique, error)

	// Techniques returns the names registered for stage, sorted.
	Techniques(stage string) []string
}

// RecipeObserver receives lifecycle callbacks from the executor and the
// critic. Implementations must be safe for concurrent use.
type RecipeObserver interface {
	// RecipeStarted is called when a recipe leaves CREATED. The returned
	// context is passed to every later callback for the same recipe.
	RecipeStarted(ctx context.Context, recipe *domain.Recipe) context.Context

	// StageFinished is called after every chef or critic stage.
	StageFinished(ctx context.Context, recipe *domain.Recipe, step domain.Step, err error)

	// RecipeFinished is called once the recipe reaches a terminal status.
	RecipeFinished(ctx context.Context, recipe *domain.Recipe)
}
