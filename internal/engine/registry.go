package engine

import (
	"slices"

	"github.com/rendis/tally/pkg/schema"
)

// ArgsPredicate reports whether a lookup can construct a step for args.
type ArgsPredicate func(args schema.StepArgs) bool

// LookupFunc constructs the step for the given args.
type LookupFunc func(args schema.StepArgs) Step

// Lookup constructs steps of a fixed name that produce Kinds.
type Lookup struct {
	Name    string
	Kinds   []schema.ProductKind
	Accepts ArgsPredicate
	Build   LookupFunc
}

// Matches reports whether the lookup can construct a step producing p.
func (l Lookup) Matches(p schema.ProductID) bool {
	return l.Name == p.Name && schema.ContainsKind(l.Kinds, p.Kind) && l.Accepts(p.Args)
}

// DynamicBuilder synthesises steps for products no lookup provides, based on
// what is already in the graph.
type DynamicBuilder struct {
	Name     string
	CanBuild func(p schema.ProductID, g *Graph, env *Env) bool
	Build    func(p schema.ProductID, g *Graph, env *Env) Step
}

// Registry is the immutable set of lookups and dynamic builders used to
// resolve a graph. Build one with RegistryBuilder.
type Registry struct {
	lookups  []Lookup
	builders []DynamicBuilder
}

// RegistryBuilder collects lookups and dynamic builders.
type RegistryBuilder struct {
	lookups  []Lookup
	builders []DynamicBuilder
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// RegisterLookup adds a lookup. Lookups are matched in registration order.
func (b *RegistryBuilder) RegisterLookup(name string, kinds []schema.ProductKind, accepts ArgsPredicate, build LookupFunc) *RegistryBuilder {
	b.lookups = append(b.lookups, Lookup{
		Name:    name,
		Kinds:   slices.Clone(kinds),
		Accepts: accepts,
		Build:   build,
	})
	return b
}

// RegisterDynamicBuilder adds a dynamic builder. Builders are tried in
// registration order.
func (b *RegistryBuilder) RegisterDynamicBuilder(d DynamicBuilder) *RegistryBuilder {
	b.builders = append(b.builders, d)
	return b
}

// Build returns the registry. Later registrations do not affect it.
func (b *RegistryBuilder) Build() *Registry {
	return &Registry{
		lookups:  slices.Clone(b.lookups),
		builders: slices.Clone(b.builders),
	}
}

// Lookups returns the registered lookups in order.
func (r *Registry) Lookups() []Lookup { return slices.Clone(r.lookups) }

// Builders returns the registered dynamic builders in order.
func (r *Registry) Builders() []DynamicBuilder { return slices.Clone(r.builders) }

// FindLookup returns the first lookup able to construct a step producing p.
func (r *Registry) FindLookup(p schema.ProductID) (Lookup, bool) {
	for _, l := range r.lookups {
		if l.Matches(p) {
			return l, true
		}
	}
	return Lookup{}, false
}

// FindBuilder returns the first dynamic builder that can build p in g.
func (r *Registry) FindBuilder(p schema.ProductID, g *Graph, env *Env) (DynamicBuilder, bool) {
	for _, b := range r.builders {
		if b.CanBuild(p, g, env) {
			return b, true
		}
	}
	return DynamicBuilder{}, false
}

// AcceptArgs returns a predicate accepting args of the given kinds.
func AcceptArgs(kinds ...schema.ArgsKind) ArgsPredicate {
	return func(args schema.StepArgs) bool {
		if args == nil {
			args = schema.VoidArgs{}
		}
		return slices.Contains(kinds, args.ArgsKind())
	}
}

// AcceptAnyArgs accepts every args value.
func AcceptAnyArgs(schema.StepArgs) bool { return true }
