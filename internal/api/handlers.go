package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/tally/internal/diagram"
	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

const maxRequestBytes = 1 << 20

type generateRequest struct {
	Targets  []schema.ProductID `json:"targets"`
	EOFYDate schema.Date        `json:"eofy_date"`
	Save     bool               `json:"save"`
}

type generateResponse struct {
	Run      *store.Run            `json:"run"`
	Products []engine.ProductEntry `json:"products"`
}

// handleGenerate runs a generate request. ?format=text returns the target
// reports rendered as plain text instead of JSON.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "read request body").WithCause(err))
		return
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateRequest(raw); err != nil {
			writeError(w, err)
			return
		}
	}
	var req generateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "decode request").WithCause(err))
		return
	}

	res, err := s.deps.Runner.Generate(ctx, runner.Request{
		Targets:  req.Targets,
		EOFYDate: req.EOFYDate,
		Source:   runner.SourceAPI,
		Save:     req.Save,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	entries := res.Entries()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		tr := report.TextRenderer{DPS: res.Env.DPS}
		for _, e := range entries {
			rep, ok := e.Product.(*report.Report)
			if !ok {
				continue
			}
			if err := tr.Render(w, rep); err != nil {
				s.deps.Logger.ErrorContext(ctx, "failed to render report", slog.String("error", err.Error()))
				return
			}
			io.WriteString(w, "\n")
		}
		return
	}

	run := *res.Run
	run.Products = nil
	writeJSON(w, http.StatusOK, generateResponse{Run: &run, Products: entries})
}

// handlePlan resolves ?target= params (repeatable, see schema.ParseTarget)
// and returns the plan as JSON, mermaid, ascii or svg.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q["target"]) == 0 {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "at least one target is required"))
		return
	}
	targets := make([]schema.ProductID, 0, len(q["target"]))
	for _, raw := range q["target"] {
		t, err := schema.ParseTarget(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		targets = append(targets, t)
	}
	eofy, err := queryDate(r, "eofy")
	if err != nil {
		writeError(w, err)
		return
	}

	plan, err := s.deps.Runner.Plan(r.Context(), targets, eofy)
	if err != nil {
		writeError(w, err)
		return
	}

	format := q.Get("format")
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, plan.Describe())
		return
	}

	model, err := diagram.Build(planTitle(targets), plan, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	switch format {
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderMermaid(model))
	case "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderASCII(model))
	case "svg":
		svg, err := diagram.RenderSVG(r.Context(), model)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(svg)
	default:
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q: want json, mermaid, ascii or svg", format))
	}
}

func planTitle(targets []schema.ProductID) string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}

func (s *Server) handleSteps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Runner.Registry().Describe())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.deps.Runner.Runs(r.Context(), store.RunFilter{
		Source: q.Get("source"),
		Status: store.RunStatus(q.Get("status")),
		Limit:  queryInt(r, "limit", 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runner.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, schema.NewError(schema.ErrCodeNotFound, "no schedules configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.deps.Scheduler.Jobs()})
}

func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, schema.NewError(schema.ErrCodeNotFound, "no schedules configured"))
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.deps.Scheduler.RunNow(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	for _, j := range s.deps.Scheduler.Jobs() {
		if j.Name == name {
			writeJSON(w, http.StatusOK, j)
			return
		}
	}
}
