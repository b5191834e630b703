package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.PNG)
}

// RenderSVG renders a DiagramModel as an SVG document.
func RenderSVG(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.SVG)
}

// RenderDOT renders a DiagramModel as DOT source with layout attributes.
func RenderDOT(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return renderGraphviz(ctx, model, graphviz.XDOT)
}

func renderGraphviz(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: graph: %w", err)
	}
	defer g.Close()

	if err := populate(g, model); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// populate adds model's steps and product edges to g. Edges whose ends are
// not in the model are skipped.
func populate(g *cgraph.Graph, model *DiagramModel) error {
	g.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	byID := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		gn, err := g.CreateNodeByName(n.ID)
		if err != nil {
			return fmt.Errorf("diagram: node %s: %w", n.ID, err)
		}
		gn.SetLabel(n.Label)
		gn.SetShape(shapeOf(n.Kind).graphviz)
		if n.Failed {
			gn.SetStyle(cgraph.FilledNodeStyle)
			gn.SetFillColor(failedFill)
			gn.SetFontColor("white")
			if n.Error != "" {
				gn.SetTooltip(n.Error)
			}
		}
		byID[n.ID] = gn
	}

	for _, e := range model.Edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil {
			continue
		}
		ge, err := g.CreateEdgeByName("", from, to)
		if err != nil {
			return fmt.Errorf("diagram: edge %s -> %s: %w", e.From, e.To, err)
		}
		if e.Label != "" {
			ge.SetLabel(e.Label)
		}
	}
	return nil
}
