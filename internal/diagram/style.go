package diagram

import "github.com/goccy/go-graphviz/cgraph"

// shape is how a node kind is drawn by each renderer.
type shape struct {
	// open and close wrap the quoted Mermaid label.
	open, close string
	graphviz    cgraph.Shape
}

var shapes = map[NodeKind]shape{
	NodeKindLedger: {open: "[(", close: ")]", graphviz: cgraph.Shape("cylinder")},
	NodeKindTarget: {open: "([", close: "])", graphviz: cgraph.Shape("doubleoctagon")},
	NodeKindStep:   {open: "[", close: "]", graphviz: cgraph.BoxShape},
}

func shapeOf(kind NodeKind) shape {
	if s, ok := shapes[kind]; ok {
		return s
	}
	return shapes[NodeKindStep]
}

// Failed steps are filled with failedFill in every renderer.
const failedFill = "#8b1a1a"
