package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/tally/internal/diagram"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

// handleGenerate generates the requested targets.
func (s *TallyServer) handleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets, err := parseTargets(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	eofy, err := parseEOFY(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.watch(ctx, req)

	res, err := s.runner.Generate(ctx, runner.Request{
		Targets:  targets,
		EOFYDate: eofy,
		Source:   runner.SourceMCP,
		Save:     req.GetBool("save", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("generate failed: %v", err)), nil
	}

	entries := res.Entries()
	if req.GetString("format", "json") == "text" {
		var b strings.Builder
		tr := report.TextRenderer{DPS: res.Env.DPS}
		for _, e := range entries {
			rep, ok := e.Product.(*report.Report)
			if !ok {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			if err := tr.Render(&b, rep); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	run := *res.Run
	run.Products = nil
	return marshalResult(map[string]any{"run": &run, "products": entries})
}

// handlePlan resolves targets and returns the plan in the requested format.
func (s *TallyServer) handlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	targets, err := parseTargets(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	eofy, err := parseEOFY(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := req.GetString("format", "json")

	plan, err := s.runner.Plan(ctx, targets, eofy)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan failed: %v", err)), nil
	}
	if format == "json" {
		return marshalResult(plan.Describe())
	}

	model, err := diagram.Build(targets[0].String(), plan, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}
	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "image":
		png, err := diagram.RenderImage(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultImage(fmt.Sprintf("plan for %d step(s)", len(plan.Order)), base64.StdEncoding.EncodeToString(png), "image/png"), nil
	default:
		return mcp.NewToolResultError("format must be json, ascii, mermaid or image"), nil
	}
}

// handleSteps lists the registry.
func (s *TallyServer) handleSteps(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.runner.Registry().Describe())
}

// handleRuns lists saved runs, or returns one when run_id is given.
func (s *TallyServer) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.watch(ctx, req)
	if id := req.GetString("run_id", ""); id != "" {
		run, err := s.runner.GetRun(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	runs, err := s.runner.Runs(ctx, store.RunFilter{
		Source: req.GetString("source", ""),
		Status: store.RunStatus(req.GetString("status", "")),
		Limit:  req.GetInt("limit", 20),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(map[string]any{"runs": runs, "total": len(runs)})
}

// handleQuery runs a jq program over a saved run's products.
func (s *TallyServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}

	run, err := s.runner.GetRun(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
	}
	if run.Status != store.RunCompleted || len(run.Products) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("run %s has no products (status %s)", id, run.Status)), nil
	}

	var data any
	if err := json.Unmarshal(run.Products, &data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decode products: %v", err)), nil
	}
	results, err := s.jq.EvaluateAll(ctx, expression, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if results == nil {
		results = []any{}
	}
	return marshalResult(results)
}

func parseTargets(req mcp.CallToolRequest) ([]schema.ProductID, error) {
	raw := req.GetStringSlice("targets", nil)
	if len(raw) == 0 {
		return nil, fmt.Errorf("targets is required")
	}
	targets := make([]schema.ProductID, len(raw))
	for i, r := range raw {
		t, err := schema.ParseTarget(r)
		if err != nil {
			return nil, err
		}
		targets[i] = t
	}
	return targets, nil
}

func parseEOFY(req mcp.CallToolRequest) (schema.Date, error) {
	v := req.GetString("eofy_date", "")
	if v == "" {
		return schema.Date{}, nil
	}
	return schema.ParseDate(v)
}

// watch records the calling agent's session and notification level when the
// request names an agent_id.
func (s *TallyServer) watch(ctx context.Context, req mcp.CallToolRequest) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return
	}
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return
	}
	s.watchers.Watch(agentID, session.SessionID(), req.GetString("notify", NotifyAll))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
