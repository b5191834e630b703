package diagram

import (
	"errors"
	"fmt"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// Build constructs a DiagramModel from a plan. Nodes follow the plan's
// execution order and are named s0, s1, ... by position. If runErr names a
// failed step, that node is marked failed.
func Build(title string, plan *engine.Plan, runErr error) (*DiagramModel, error) {
	if plan == nil || plan.Graph == nil {
		return nil, fmt.Errorf("diagram: nil plan")
	}

	var failedStep string
	var te *schema.TallyError
	if errors.As(runErr, &te) {
		failedStep = te.StepID
	}

	targets := make(map[string]bool)
	for _, t := range plan.Graph.Targets() {
		targets[t.Key()] = true
	}

	nodeIDs := make(map[string]string, len(plan.Order))
	model := &DiagramModel{Title: title, Nodes: make([]*Node, 0, len(plan.Order))}
	for i, s := range plan.Order {
		id := s.ID()
		node := &Node{
			ID:    fmt.Sprintf("s%d", i),
			Label: nodeLabel(id),
			Kind:  NodeKindStep,
		}
		switch {
		case targets[id.Key()]:
			node.Kind = NodeKindTarget
		case len(plan.Graph.DependenciesFor(id)) == 0:
			node.Kind = NodeKindLedger
		}
		if failedStep != "" && failedStep == id.String() {
			node.Failed = true
			node.Error = te.Message
		}
		nodeIDs[id.Key()] = node.ID
		model.Nodes = append(model.Nodes, node)
	}

	for _, s := range plan.Order {
		to := nodeIDs[s.ID().Key()]
		for _, dep := range plan.Graph.DependenciesFor(s.ID()) {
			producer, ok := plan.Graph.StepFor(dep)
			if !ok {
				return nil, fmt.Errorf("diagram: no step produces %s", dep)
			}
			model.Edges = append(model.Edges, Edge{
				From:  nodeIDs[producer.ID().Key()],
				To:    to,
				Label: dep.Kind.String(),
			})
		}
	}

	model.Levels = make([][]string, len(plan.Levels))
	for i, wave := range plan.Levels {
		for _, s := range wave {
			nid := nodeIDs[s.ID().Key()]
			model.Node(nid).Level = i
			model.Levels[i] = append(model.Levels[i], nid)
		}
	}
	return model, nil
}

// nodeLabel is the step name followed by its args, if any.
func nodeLabel(id schema.StepID) string {
	if id.Args == nil {
		return id.Name
	}
	if args := id.Args.String(); args != "" {
		return id.Name + " (" + args + ")"
	}
	return id.Name
}
