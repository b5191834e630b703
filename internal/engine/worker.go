package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Go after Close.
var ErrPoolClosed = errors.New("step pool is closed")

// PanicError reports a step that panicked instead of returning.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// PoolStats counts what a StepPool has run.
type PoolStats struct {
	Started   int64 `json:"started"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

// StepPool runs step bodies on goroutines, at most limit at a time.
type StepPool struct {
	slots   chan struct{}
	closing chan struct{}

	mu      sync.RWMutex
	closed  bool
	running sync.WaitGroup

	started, succeeded, failed, panicked atomic.Int64
}

// NewStepPool creates a pool. A limit below one is treated as one.
func NewStepPool(limit int) *StepPool {
	return &StepPool{
		slots:   make(chan struct{}, max(1, limit)),
		closing: make(chan struct{}),
	}
}

// Go waits for a free slot, then runs fn on its own goroutine. finished, if
// set, receives fn's error, or a *PanicError when fn panicked. Go returns
// ctx.Err() if ctx ends while waiting and ErrPoolClosed after Close.
func (p *StepPool) Go(ctx context.Context, fn func(context.Context) error, finished func(error)) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return ErrPoolClosed
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		<-p.slots
		return ErrPoolClosed
	}
	p.running.Add(1)
	p.mu.RUnlock()
	p.started.Add(1)

	go func() {
		defer p.running.Done()
		err := p.call(ctx, fn)
		<-p.slots
		if finished != nil {
			finished(err)
		}
	}()
	return nil
}

func (p *StepPool) call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			p.failed.Add(1)
		} else {
			p.succeeded.Add(1)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started fn and its finished callback returned.
func (p *StepPool) Wait() { p.running.Wait() }

// Close stops new work and waits for running work. It is idempotent.
func (p *StepPool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.closing)
	}
	p.mu.Unlock()
	p.running.Wait()
}

// Stats returns the current counters.
func (p *StepPool) Stats() PoolStats {
	return PoolStats{
		Started:   p.started.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
