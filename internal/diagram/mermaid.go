package diagram

import (
	"fmt"
	"strings"
)

const mermaidIndent = "    "

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Targets get a thick border and failed steps a red fill.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString(mermaidIndent)
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	b.WriteString("graph TD\n")
	if model.Title != "" {
		line("%%%% %s", model.Title)
	}
	for _, n := range model.Nodes {
		s := shapeOf(n.Kind)
		line(`%s%s"%s"%s`, n.ID, s.open, strings.ReplaceAll(n.Label, `"`, "#quot;"), s.close)
	}
	for _, e := range model.Edges {
		arrow := "-->"
		if e.Label != "" {
			arrow += "|" + e.Label + "|"
		}
		line("%s %s %s", e.From, arrow, e.To)
	}

	b.WriteByte('\n')
	line("classDef target stroke-width:3px")
	line("classDef failed fill:%s,stroke:#5c0e0e,color:#fff", failedFill)

	var targets, failed []string
	for _, n := range model.Nodes {
		if n.Kind == NodeKindTarget {
			targets = append(targets, n.ID)
		}
		if n.Failed {
			failed = append(failed, n.ID)
		}
	}
	for _, id := range targets {
		line("class %s target", id)
	}
	for _, id := range failed {
		line("class %s failed", id)
	}
	return b.String()
}
