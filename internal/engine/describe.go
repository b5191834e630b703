package engine

import "github.com/rendis/tally/pkg/schema"

// PlanStep is the JSON view of one scheduled step.
type PlanStep struct {
	ID           schema.StepID      `json:"id"`
	Position     int                `json:"position"`
	Level        int                `json:"level"`
	Target       bool               `json:"target"`
	Dependencies []schema.ProductID `json:"dependencies"`
}

// PlanDescription is the JSON view of a plan.
type PlanDescription struct {
	Steps  []PlanStep `json:"steps"`
	Levels int        `json:"levels"`
}

// Describe returns the JSON view of the plan.
func (p *Plan) Describe() PlanDescription {
	level := make(map[string]int)
	for i, wave := range p.Levels {
		for _, s := range wave {
			level[s.ID().Key()] = i
		}
	}
	targets := make(map[string]bool)
	for _, t := range p.Graph.Targets() {
		targets[t.Key()] = true
	}

	out := PlanDescription{Steps: make([]PlanStep, len(p.Order)), Levels: len(p.Levels)}
	for i, s := range p.Order {
		id := s.ID()
		deps := p.Graph.DependenciesFor(id)
		if deps == nil {
			deps = []schema.ProductID{}
		}
		out.Steps[i] = PlanStep{
			ID:           id,
			Position:     i,
			Level:        level[id.Key()],
			Target:       targets[id.Key()],
			Dependencies: deps,
		}
	}
	return out
}

// LookupInfo is the JSON view of a registered lookup.
type LookupInfo struct {
	Name  string               `json:"name"`
	Kinds []schema.ProductKind `json:"product_kinds"`
}

// RegistryDescription lists what a registry can build.
type RegistryDescription struct {
	Lookups  []LookupInfo `json:"lookups"`
	Builders []string     `json:"builders"`
}

// Describe returns the JSON view of the registry.
func (r *Registry) Describe() RegistryDescription {
	out := RegistryDescription{
		Lookups:  make([]LookupInfo, len(r.lookups)),
		Builders: make([]string, len(r.builders)),
	}
	for i, l := range r.lookups {
		out.Lookups[i] = LookupInfo{Name: l.Name, Kinds: l.Kinds}
	}
	for i, b := range r.builders {
		out.Builders[i] = b.Name
	}
	return out
}

// ProductEntry is the JSON view of one generated product.
type ProductEntry struct {
	ID      schema.ProductID `json:"id"`
	Product schema.Product   `json:"product"`
}

// Entries returns the products with the given ids in that order, skipping
// ids not present. With no ids it returns every product in insertion order.
func (ps *Products) Entries(ids ...schema.ProductID) []ProductEntry {
	if len(ids) == 0 {
		ids = ps.IDs()
	}
	out := make([]ProductEntry, 0, len(ids))
	for _, id := range ids {
		if p, ok := ps.Get(id); ok {
			out = append(out, ProductEntry{ID: id, Product: p})
		}
	}
	return out
}
