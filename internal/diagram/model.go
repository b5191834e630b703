// Package diagram draws report plans: which steps run, in which waves, and
// which products flow between them.
package diagram

// NodeKind classifies a plan step for drawing.
type NodeKind string

const (
	// NodeKindLedger is a step with no dependencies. It reads the ledger.
	NodeKindLedger NodeKind = "ledger"
	NodeKindStep   NodeKind = "step"
	NodeKindTarget NodeKind = "target"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one scheduled step.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Level  int
	Failed bool
	Error  string
}

// Edge carries a product from the step producing it to the step needing it.
// Label is the product kind.
type Edge struct {
	From  string
	To    string
	Label string
}

// Node returns the node with the given id, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
