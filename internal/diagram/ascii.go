package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RenderASCII renders a DiagramModel as text: one row of boxes per level,
// then the product flows between steps.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for i, level := range model.Levels {
		fmt.Fprintf(&b, "level %d\n", i)
		boxes := make([]asciiBox, 0, len(level))
		for _, id := range level {
			if node := model.Node(id); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		writeBoxRow(&b, boxes)
		if i < len(model.Levels)-1 {
			b.WriteString("   │\n   ▼\n")
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nflows\n")
		for _, e := range model.Edges {
			fmt.Fprintf(&b, "  %s ─%s→ %s\n", e.From, e.Label, e.To)
		}
	}
	return b.String()
}

type asciiBox struct {
	lines []string
	width int
}

func makeBox(node *Node) asciiBox {
	content := []string{node.ID + ": " + node.Label}
	switch {
	case node.Failed:
		content = append(content, "[FAIL] "+node.Error)
	case node.Kind == NodeKindTarget:
		content = append(content, "[TARGET]")
	case node.Kind == NodeKindLedger:
		content = append(content, "[LEDGER]")
	}

	inner := 0
	for _, line := range content {
		inner = max(inner, utf8.RuneCountInString(line))
	}

	box := asciiBox{width: inner + 4}
	box.lines = append(box.lines, "┌"+strings.Repeat("─", inner+2)+"┐")
	for _, line := range content {
		pad := strings.Repeat(" ", inner-utf8.RuneCountInString(line))
		box.lines = append(box.lines, "│ "+line+pad+" │")
	}
	box.lines = append(box.lines, "└"+strings.Repeat("─", inner+2)+"┘")
	return box
}

// writeBoxRow writes boxes side by side, padding the shorter ones.
func writeBoxRow(b *strings.Builder, boxes []asciiBox) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box.lines))
	}
	for row := range height {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}
