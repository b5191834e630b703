package engine

import (
	"github.com/rendis/tally/pkg/schema"
)

// Schedule returns the steps of g in an order where every step comes after
// the steps producing its dependencies. Among ready steps, the one added to
// the graph first is taken, so the order is deterministic.
func Schedule(g *Graph) ([]Step, error) {
	remaining := g.Steps()
	order := make([]Step, 0, len(remaining))

	for len(remaining) > 0 {
		next := -1
		for i, s := range remaining {
			if readyAfter(g, s.ID(), order) {
				next = i
				break
			}
		}
		if next < 0 {
			names := make([]string, len(remaining))
			for i, s := range remaining {
				names[i] = s.ID().String()
			}
			return nil, schema.NewErrorf(schema.ErrCodeCircularDependencies,
				"circular dependencies among %d steps", len(remaining)).
				WithDetails(map[string]any{"steps": names})
		}
		order = append(order, remaining[next])
		remaining = append(remaining[:next], remaining[next+1:]...)
	}
	return order, nil
}

// readyAfter reports whether every dependency of step is produced by one of done.
func readyAfter(g *Graph, step schema.StepID, done []Step) bool {
	for _, p := range g.DependenciesFor(step) {
		satisfied := false
		for _, s := range done {
			if s.ID().Produces(p) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// Levels groups an order from Schedule into waves: each step is one level
// past the deepest step producing one of its dependencies.
func Levels(g *Graph, order []Step) [][]Step {
	depth := make(map[string]int, len(order))
	maxLevel := 0

	for i, s := range order {
		d := 0
		for _, p := range g.DependenciesFor(s.ID()) {
			for _, prev := range order[:i] {
				if prev.ID().Produces(p) {
					d = max(d, depth[prev.ID().Key()]+1)
					break
				}
			}
		}
		depth[s.ID().Key()] = d
		maxLevel = max(maxLevel, d)
	}

	if len(order) == 0 {
		return nil
	}
	levels := make([][]Step, maxLevel+1)
	for _, s := range order {
		d := depth[s.ID().Key()]
		levels[d] = append(levels[d], s)
	}
	return levels
}
