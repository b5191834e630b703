package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/tally/internal/logging"
	"github.com/rendis/tally/pkg/schema"
)

// Engine resolves, schedules and executes report steps.
type Engine struct {
	registry *Registry
	executor *Executor
}

// New creates an engine over reg.
func New(reg *Registry, cfg ExecutorConfig) *Engine {
	return &Engine{registry: reg, executor: NewExecutor(cfg)}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Plan is a resolved graph and its execution order.
type Plan struct {
	Graph  *Graph
	Order  []Step
	Levels [][]Step
}

// PlanSteps resolves and schedules targets without executing them.
func (e *Engine) PlanSteps(targets []Step, env *Env) (*Plan, error) {
	g, err := Resolve(e.registry, targets, env)
	if err != nil {
		return nil, err
	}
	order, err := Schedule(g)
	if err != nil {
		return nil, err
	}
	return &Plan{Graph: g, Order: order, Levels: Levels(g, order)}, nil
}

// Plan resolves and schedules the steps producing targets.
func (e *Engine) Plan(targets []schema.ProductID, env *Env) (*Plan, error) {
	steps, err := StepsForTargets(e.registry, targets)
	if err != nil {
		return nil, err
	}
	return e.PlanSteps(steps, env)
}

// GenerateReport computes targets and every product they depend on. The run
// is logged under the context's run ID, or a new one if the context has none.
func (e *Engine) GenerateReport(ctx context.Context, targets []Step, env *Env) (*Products, error) {
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, uuid.NewString())
	}
	if logging.Target(ctx) == "" {
		names := make([]string, len(targets))
		for i, t := range targets {
			names[i] = t.ID().String()
		}
		ctx = logging.WithTarget(ctx, strings.Join(names, "; "))
	}

	plan, err := e.PlanSteps(targets, env)
	if err != nil {
		env.Log().WarnContext(ctx, "report planning failed", "error", err)
		return nil, err
	}
	return e.Execute(ctx, plan, env)
}

// Execute runs a plan from PlanSteps or Plan.
func (e *Engine) Execute(ctx context.Context, plan *Plan, env *Env) (*Products, error) {
	log := env.Log()
	log.InfoContext(ctx, "report planned",
		"steps", len(plan.Order),
		"edges", len(plan.Graph.edges),
		"levels", len(plan.Levels))

	start := time.Now()
	products, err := e.executor.Execute(ctx, env, plan.Graph, plan.Order)
	if err != nil {
		log.WarnContext(ctx, "report run failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	log.InfoContext(ctx, "report run completed",
		"products", products.Len(),
		"duration", time.Since(start))
	return products, nil
}

// Generate computes the target products and their dependencies.
func (e *Engine) Generate(ctx context.Context, targets []schema.ProductID, env *Env) (*Products, error) {
	steps, err := StepsForTargets(e.registry, targets)
	if err != nil {
		return nil, err
	}
	return e.GenerateReport(ctx, steps, env)
}
