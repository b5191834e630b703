package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rendis/tally/internal/logging"
	"github.com/rendis/tally/pkg/schema"
)

// ExecutorConfig holds configuration for the executor.
type ExecutorConfig struct {
	// PoolSize bounds the number of steps executing at once. Zero or less
	// runs every ready step concurrently.
	PoolSize int
}

// Executor runs scheduled steps concurrently, each as soon as the steps
// producing its dependencies have completed.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{cfg: cfg}
}

type stepResult struct {
	step     Step
	products *Products
	err      error
}

// Execute runs order, as returned by Schedule, and returns every product
// computed. The first step failure cancels the remaining steps and is
// returned as STEP_FAILED; no partial result is returned.
func (e *Executor) Execute(ctx context.Context, env *Env, g *Graph, order []Step) (*Products, error) {
	size := e.cfg.PoolSize
	if size <= 0 {
		size = max(1, len(order))
	}
	pool := NewStepPool(size)
	defer func() {
		pool.Close()
		stats := pool.Stats()
		env.Log().DebugContext(ctx, "steps finished",
			"started", stats.Started,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"panicked", stats.Panicked)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := NewProductStore()
	results := make(chan stepResult, len(order))
	remaining := slices.Clone(order)
	done := make([]Step, 0, len(order))
	inflight := 0
	var firstErr error

	for len(done) < len(order) {
		if firstErr == nil {
			for i := 0; i < len(remaining); {
				s := remaining[i]
				if !readyAfter(g, s.ID(), done) {
					i++
					continue
				}
				remaining = slices.Delete(remaining, i, i+1)
				if err := e.launch(runCtx, pool, env, g, store, s, results); err != nil {
					firstErr = schema.NewErrorf(schema.ErrCodeStepFailed, "start step %s: %s", s.ID(), err.Error()).
						WithStep(s.ID().String()).WithCause(err)
					cancel()
					break
				}
				inflight++
			}
		}

		if inflight == 0 {
			if firstErr != nil {
				return nil, firstErr
			}
			names := make([]string, len(remaining))
			for i, s := range remaining {
				names[i] = s.ID().String()
			}
			return nil, schema.NewError(schema.ErrCodeCircularDependencies, "no step is ready to run").
				WithDetails(map[string]any{"steps": names})
		}

		res := <-results
		inflight--

		if res.err != nil {
			if firstErr == nil {
				firstErr = stepFailed(res.step, res.err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}

		checkProducts(res.step, res.products)
		store.Append(res.products)
		done = append(done, res.step)
	}

	return store.products, nil
}

func (e *Executor) launch(ctx context.Context, pool *StepPool, env *Env, g *Graph, store *ProductStore, s Step, results chan<- stepResult) error {
	id := s.ID()
	ctx = logging.WithStepID(ctx, id.String())
	log := env.Log()

	var produced *Products
	return pool.Go(ctx, func(ctx context.Context) error {
		start := time.Now()
		log.DebugContext(ctx, "step started")

		out, err := s.Execute(ctx, env, g, store)
		if err != nil {
			return err
		}
		if out == nil {
			out = NewProducts()
		}
		produced = out

		log.DebugContext(ctx, "step completed",
			"products", out.Len(),
			"duration", time.Since(start))
		return nil
	}, func(err error) {
		results <- stepResult{step: s, products: produced, err: err}
	})
}

func stepFailed(s Step, err error) error {
	id := s.ID().String()
	var pe *PanicError
	if errors.As(err, &pe) {
		return schema.NewErrorf(schema.ErrCodeStepFailed, "step %s panicked: %v", id, pe.Value).
			WithStep(id).
			WithCause(err).
			WithDetails(map[string]any{"stack": string(pe.Stack)})
	}
	return schema.NewErrorf(schema.ErrCodeStepFailed, "step %s failed: %s", id, err.Error()).
		WithStep(id).
		WithCause(err)
}

// checkProducts panics if s returned a product its id does not declare.
func checkProducts(s Step, products *Products) {
	id := s.ID()
	for pid := range products.All() {
		if !id.Produces(pid) {
			panic(fmt.Sprintf("step %s returned unexpected product %s", id, pid))
		}
	}
}
