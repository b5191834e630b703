// Package runner generates report targets against the ledger store and
// records each generation as a run.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/logging"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/internal/streaming"
	"github.com/rendis/tally/pkg/schema"
)

// Run sources.
const (
	SourceCLI      = "cli"
	SourceAPI      = "api"
	SourceMCP      = "mcp"
	SourceSchedule = "schedule"
)

// Defaults fill the environment where the ledger metadata is silent.
type Defaults struct {
	EOFYDate           schema.Date
	ReportingCommodity string
	DPS                int
}

// Request asks for targets to be generated.
type Request struct {
	Targets []schema.ProductID
	// EOFYDate overrides the ledger's end of financial year when set.
	EOFYDate schema.Date
	Source   string
	// Save persists the run. Failed runs are saved too.
	Save bool
}

// Result is a finished generation.
type Result struct {
	Run      *store.Run
	Products *engine.Products
	Env      *engine.Env
}

// Entries returns the target products in request order.
func (r *Result) Entries() []engine.ProductEntry {
	return r.Products.Entries(r.Run.Targets...)
}

// Runner wires the engine to the store.
type Runner struct {
	engine   *engine.Engine
	store    store.Store
	defaults Defaults
	logger   *slog.Logger
	hub      streaming.Hub
	now      func() time.Time
}

// New creates a Runner.
func New(eng *engine.Engine, st store.Store, defaults Defaults, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: eng, store: st, defaults: defaults, logger: logger, now: time.Now}
}

// PublishTo makes the runner publish run events on hub. Must be called
// before the first Generate.
func (r *Runner) PublishTo(hub streaming.Hub) { r.hub = hub }

// Registry returns the registry the runner's engine resolves through.
func (r *Runner) Registry() *engine.Registry { return r.engine.Registry() }

// Store returns the underlying store.
func (r *Runner) Store() store.Store { return r.store }

// Env builds the execution environment: eofy overrides the ledger metadata,
// which overrides the defaults.
func (r *Runner) Env(ctx context.Context, eofy schema.Date) (*engine.Env, error) {
	meta, err := r.store.Metadata(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "read ledger metadata").WithCause(err)
	}

	env := &engine.Env{
		EOFYDate:           r.defaults.EOFYDate,
		ReportingCommodity: r.defaults.ReportingCommodity,
		DPS:                r.defaults.DPS,
		DB:                 r.store,
		Logger:             r.logger,
	}
	if !meta.EOFYDate.IsZero() {
		env.EOFYDate = meta.EOFYDate
	}
	if meta.ReportingCommodity != "" {
		env.ReportingCommodity = meta.ReportingCommodity
	}
	if meta.DPS != 0 {
		env.DPS = meta.DPS
	}
	if !eofy.IsZero() {
		env.EOFYDate = eofy
	}
	if env.EOFYDate.IsZero() {
		return nil, schema.NewError(schema.ErrCodeValidation, "no end of financial year: set eofy_date in the ledger metadata or configuration")
	}
	return env, nil
}

// Plan resolves and schedules targets without running them.
func (r *Runner) Plan(ctx context.Context, targets []schema.ProductID, eofy schema.Date) (*engine.Plan, error) {
	if len(targets) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no targets")
	}
	env, err := r.Env(ctx, eofy)
	if err != nil {
		return nil, err
	}
	return r.engine.Plan(targets, env)
}

// Generate produces the requested targets. When req.Save is set the run is
// recorded whether or not generation succeeded; the returned error is the
// generation error.
func (r *Runner) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.Targets) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no targets")
	}
	env, err := r.Env(ctx, req.EOFYDate)
	if err != nil {
		return nil, err
	}

	run := &store.Run{
		ID:        uuid.NewString(),
		Source:    req.Source,
		EOFYDate:  env.EOFYDate,
		Targets:   req.Targets,
		StartedAt: r.now().UTC(),
	}
	ctx = logging.WithRunID(ctx, run.ID)
	r.publish(ctx, run, streaming.RunStarted, nil)

	var products *engine.Products
	plan, genErr := r.engine.Plan(req.Targets, env)
	if genErr == nil {
		run.Steps = len(plan.Order)
		products, genErr = r.engine.Execute(ctx, plan, env)
	}
	run.Duration = r.now().Sub(run.StartedAt)

	result := &Result{Run: run, Products: products, Env: env}
	if genErr != nil {
		run.Status = store.RunFailed
		run.Error = genErr.Error()
	} else {
		run.Status = store.RunCompleted
		raw, err := json.Marshal(result.Entries())
		if err != nil {
			return nil, fmt.Errorf("marshal products: %w", err)
		}
		run.Products = raw
	}

	if req.Save {
		if err := r.store.SaveRun(ctx, run); err != nil {
			r.logger.ErrorContext(ctx, "failed to save run", slog.String("error", err.Error()))
			if genErr == nil {
				return result, schema.NewError(schema.ErrCodeStore, "save run").WithCause(err)
			}
		}
	}

	outcome := &streaming.Outcome{Steps: run.Steps, Duration: run.Duration, Saved: req.Save}
	if genErr != nil {
		outcome.Error = run.Error
		var te *schema.TallyError
		if errors.As(genErr, &te) {
			outcome.ErrorCode = te.Code
		}
		r.publish(ctx, run, streaming.RunFailed, outcome)
	} else {
		r.publish(ctx, run, streaming.RunCompleted, outcome)
	}

	logging.LogWith(ctx, r.logger).Info("report run finished",
		slog.String("source", req.Source),
		slog.String("status", string(run.Status)),
		slog.Int("steps", run.Steps),
		slog.Duration("duration", run.Duration),
	)
	return result, genErr
}

func (r *Runner) publish(ctx context.Context, run *store.Run, typ streaming.EventType, outcome *streaming.Outcome) {
	if r.hub == nil {
		return
	}
	err := r.hub.Publish(context.WithoutCancel(ctx), streaming.RunEvent{
		Type:     typ,
		RunID:    run.ID,
		Source:   run.Source,
		EOFYDate: run.EOFYDate,
		Targets:  run.Targets,
		At:       r.now().UTC(),
		Outcome:  outcome,
	})
	if err != nil {
		logging.LogWith(ctx, r.logger).Warn("publish run event failed", slog.String("event", string(typ)), slog.String("error", err.Error()))
	}
}

// Runs lists recorded runs.
func (r *Runner) Runs(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	return r.store.ListRuns(ctx, filter)
}

// GetRun returns a recorded run with its products.
func (r *Runner) GetRun(ctx context.Context, id string) (*store.Run, error) {
	return r.store.GetRun(ctx, id)
}
