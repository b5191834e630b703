package engine

import (
	"fmt"

	"github.com/rendis/tally/pkg/schema"
)

// MaxResolvePasses bounds the resolution loop.
const MaxResolvePasses = 1000

// Resolve builds the dependency graph for targets. Products that no step in
// the graph produces are obtained from the registry's lookups, then its
// dynamic builders, until a pass adds no new step. After each pass the
// after-init hooks of the new steps run, then those of the earlier steps.
func Resolve(reg *Registry, targets []Step, env *Env) (*Graph, error) {
	g := NewGraph(reg)

	var seeded []Step
	for _, t := range targets {
		g.targets = append(g.targets, t.ID())
		if !g.addStep(t) {
			continue
		}
		seeded = append(seeded, t)
		initGraph(t, g, env)
	}
	for _, t := range seeded {
		afterInitGraph(t, g, env)
	}

	for pass := 0; ; pass++ {
		if pass >= MaxResolvePasses {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"dependency resolution did not settle after %d passes", MaxResolvePasses).
				WithDetails(map[string]any{"steps": len(g.steps)})
		}

		var added []Step
		for _, s := range resolvePass(g, env) {
			if g.addStep(s) {
				added = append(added, s)
				initGraph(s, g, env)
			}
		}
		if len(added) == 0 {
			break
		}
		for _, s := range added {
			afterInitGraph(s, g, env)
		}
		notifyFinalizers(g, env, len(g.steps)-len(added))
	}

	if err := validateGraph(g); err != nil {
		return nil, err
	}
	return g, nil
}

// notifyFinalizers re-runs the after-init hooks of the first n steps so that
// injections reach steps added after the injecting step. AddDependency is
// idempotent, so steps already injected into are unaffected.
func notifyFinalizers(g *Graph, env *Env, n int) {
	for _, s := range g.steps[:n] {
		afterInitGraph(s, g, env)
	}
}

// resolvePass returns new steps for the products no step in g or in this
// pass produces.
func resolvePass(g *Graph, env *Env) []Step {
	var added []Step
	producedByAdded := func(p schema.ProductID) bool {
		for _, s := range added {
			if s.ID().Produces(p) {
				return true
			}
		}
		return false
	}

	for _, d := range g.Edges() {
		if _, ok := g.StepFor(d.Product); ok || producedByAdded(d.Product) {
			continue
		}

		if l, ok := g.registry.FindLookup(d.Product); ok {
			added = append(added, mustProduce(l.Build(d.Product.Args), d.Product, "lookup "+l.Name))
			continue
		}
		if b, ok := g.registry.FindBuilder(d.Product, g, env); ok {
			added = append(added, mustProduce(b.Build(d.Product, g, env), d.Product, "builder "+b.Name))
		}
	}
	return added
}

func mustProduce(s Step, p schema.ProductID, source string) Step {
	if s == nil {
		panic(fmt.Sprintf("%s returned no step for %s", source, p))
	}
	if !s.ID().Produces(p) {
		panic(fmt.Sprintf("%s returned step %s, which does not produce %s", source, s.ID(), p))
	}
	return s
}

func validateGraph(g *Graph) error {
	for _, d := range g.edges {
		if !g.HasStep(d.Step) {
			return schema.NewErrorf(schema.ErrCodeUnknownStep,
				"no implementation for step %s which %s is a dependency of", d.Step, d.Product).
				WithDetails(map[string]any{"step": d.Step.String(), "product": d.Product.String()})
		}
		if _, ok := g.StepFor(d.Product); !ok {
			return schema.NewErrorf(schema.ErrCodeNoStepForProduct,
				"no step builds product %s wanted by %s", d.Product, d.Step).
				WithDetails(map[string]any{"step": d.Step.String(), "product": d.Product.String()})
		}
	}
	return nil
}

// StepsForTargets instantiates a step for each target product through the
// registry's lookups.
func StepsForTargets(reg *Registry, targets []schema.ProductID) ([]Step, error) {
	steps := make([]Step, 0, len(targets))
	for _, p := range targets {
		l, ok := reg.FindLookup(p)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNoStepForProduct, "no step builds target %s", p).
				WithDetails(map[string]any{"product": p.String()})
		}
		steps = append(steps, mustProduce(l.Build(p.Args), p, "lookup "+l.Name))
	}
	return steps, nil
}
