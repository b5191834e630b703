package engine

import (
	"github.com/rendis/tally/pkg/schema"
)

// Dependency is an edge of the graph: Step needs Product before it can run.
type Dependency struct {
	Step    schema.StepID    `json:"step"`
	Product schema.ProductID `json:"product"`
}

// Graph is the set of steps needed for a run and the dependencies between
// them. Steps and edges keep insertion order.
type Graph struct {
	registry *Registry
	steps    []Step
	stepKeys map[string]int
	edges    []Dependency
	edgeKeys map[string]struct{}
	targets  []schema.StepID
}

// NewGraph returns an empty graph that resolves products through reg.
func NewGraph(reg *Registry) *Graph {
	if reg == nil {
		reg = NewRegistryBuilder().Build()
	}
	return &Graph{
		registry: reg,
		stepKeys: make(map[string]int),
		edgeKeys: make(map[string]struct{}),
	}
}

// Registry returns the registry the graph resolves through.
func (g *Graph) Registry() *Registry { return g.registry }

func (g *Graph) addStep(s Step) bool {
	key := s.ID().Key()
	if _, ok := g.stepKeys[key]; ok {
		return false
	}
	g.stepKeys[key] = len(g.steps)
	g.steps = append(g.steps, s)
	return true
}

// AddDependency records that step needs product. Adding an existing edge is a no-op.
func (g *Graph) AddDependency(step schema.StepID, product schema.ProductID) {
	key := step.Key() + "->" + product.Key()
	if _, ok := g.edgeKeys[key]; ok {
		return
	}
	g.edgeKeys[key] = struct{}{}
	g.edges = append(g.edges, Dependency{Step: step, Product: product})
}

// AddTargetDependency makes target depend on the step named by dependency,
// for each Transactions, BalancesAt or BalancesBetween kind target produces,
// using target's args.
func (g *Graph) AddTargetDependency(target schema.StepID, dependency string) {
	for _, k := range target.Kinds {
		switch k {
		case schema.KindTransactions, schema.KindBalancesAt, schema.KindBalancesBetween:
			g.AddDependency(target, schema.ProductID{Name: dependency, Kind: k, Args: target.Args})
		}
	}
}

// DependenciesFor returns the products step depends on, in declaration order.
func (g *Graph) DependenciesFor(step schema.StepID) []schema.ProductID {
	var out []schema.ProductID
	key := step.Key()
	for _, d := range g.edges {
		if d.Step.Key() == key {
			out = append(out, d.Product)
		}
	}
	return out
}

// Steps returns the steps in insertion order.
func (g *Graph) Steps() []Step {
	return append([]Step(nil), g.steps...)
}

// Edges returns the dependencies in insertion order.
func (g *Graph) Edges() []Dependency {
	return append([]Dependency(nil), g.edges...)
}

// Targets returns the ids of the steps the graph was seeded with.
func (g *Graph) Targets() []schema.StepID {
	return append([]schema.StepID(nil), g.targets...)
}

// HasStep reports whether a step with the given id is in the graph.
func (g *Graph) HasStep(id schema.StepID) bool {
	_, ok := g.stepKeys[id.Key()]
	return ok
}

// StepFor returns the first step that produces p.
func (g *Graph) StepFor(p schema.ProductID) (Step, bool) {
	return g.FindStep(func(s Step) bool { return s.ID().Produces(p) })
}

// FindStep returns the first step matching pred.
func (g *Graph) FindStep(pred func(Step) bool) (Step, bool) {
	for _, s := range g.steps {
		if pred(s) {
			return s, true
		}
	}
	return nil, false
}

// PreferredDependency returns the dependency of the given kind declared last
// for step. Steps that combine several candidate inputs of one kind read this
// one, so later injected dependencies take precedence over earlier ones.
func (g *Graph) PreferredDependency(step schema.StepID, kind schema.ProductKind) (schema.ProductID, bool) {
	deps := g.DependenciesFor(step)
	for i := len(deps) - 1; i >= 0; i-- {
		if deps[i].Kind == kind {
			return deps[i], true
		}
	}
	return schema.ProductID{}, false
}

// ResolutionKind says how a product can be obtained.
type ResolutionKind int

const (
	Unresolvable ResolutionKind = iota
	HasStep
	CanLookup
	CanBuild
)

func (k ResolutionKind) String() string {
	switch k {
	case HasStep:
		return "has_step"
	case CanLookup:
		return "can_lookup"
	case CanBuild:
		return "can_build"
	default:
		return "none"
	}
}

// Resolution describes how a product can be obtained. Exactly one of Step,
// Lookup and Builder is set, according to Kind.
type Resolution struct {
	Kind    ResolutionKind
	Step    Step
	Lookup  Lookup
	Builder DynamicBuilder
}

// Resolve reports whether p is produced by a step in the graph, can be
// constructed by a lookup, or can be synthesised by a dynamic builder, in
// that order of preference.
func (g *Graph) Resolve(p schema.ProductID, env *Env) Resolution {
	if s, ok := g.StepFor(p); ok {
		return Resolution{Kind: HasStep, Step: s}
	}
	if l, ok := g.registry.FindLookup(p); ok {
		return Resolution{Kind: CanLookup, Lookup: l}
	}
	if b, ok := g.registry.FindBuilder(p, g, env); ok {
		return Resolution{Kind: CanBuild, Builder: b}
	}
	return Resolution{Kind: Unresolvable}
}

// Resolvable reports whether g.Resolve(p, env) finds a way to obtain p.
func (g *Graph) Resolvable(p schema.ProductID, env *Env) bool {
	return g.Resolve(p, env).Kind != Unresolvable
}
