package engine

import (
	"context"

	"github.com/rendis/tally/pkg/schema"
)

// Step is a unit of report computation that produces one or more products.
//
// Execute reads its dependencies from products and returns only the products
// it computed, each of which must be produced by ID(). Returning anything else
// is a programming error and panics the executor.
type Step interface {
	ID() schema.StepID
	Execute(ctx context.Context, env *Env, g *Graph, products ProductReader) (*Products, error)
}

// Requirer is implemented by steps with static dependencies.
type Requirer interface {
	Requires(env *Env) []schema.ProductID
}

// GraphInitializer is implemented by steps that declare their own edges when
// added to the graph. Steps without it get one edge per Requires entry.
type GraphInitializer interface {
	InitGraph(g *Graph, env *Env)
}

// GraphFinalizer is implemented by steps that add edges once a batch of new
// steps has been initialised, e.g. to make other steps depend on them.
type GraphFinalizer interface {
	AfterInitGraph(g *Graph, env *Env)
}

// StepRequires returns s.Requires(env), or nil if s declares no requirements.
func StepRequires(s Step, env *Env) []schema.ProductID {
	if r, ok := s.(Requirer); ok {
		return r.Requires(env)
	}
	return nil
}

func initGraph(s Step, g *Graph, env *Env) {
	if gi, ok := s.(GraphInitializer); ok {
		gi.InitGraph(g, env)
		return
	}
	id := s.ID()
	for _, p := range StepRequires(s, env) {
		g.AddDependency(id, p)
	}
}

func afterInitGraph(s Step, g *Graph, env *Env) {
	if gf, ok := s.(GraphFinalizer); ok {
		gf.AfterInitGraph(g, env)
	}
}
