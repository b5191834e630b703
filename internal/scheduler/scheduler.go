// Package scheduler regenerates report targets on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/schema"
)

// Generator is what the scheduler runs jobs through. Satisfied by
// *runner.Runner.
type Generator interface {
	Generate(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Job is a configured schedule.
type Job struct {
	Name    string             `json:"name"`
	Cron    string             `json:"cron"`
	Targets []schema.ProductID `json:"targets"`
	// EOFYDate overrides the ledger's end of financial year when set.
	EOFYDate schema.Date `json:"eofy_date,omitempty"`
}

// JobStatus is the state of a job.
type JobStatus struct {
	Name       string     `json:"name"`
	Cron       string     `json:"cron"`
	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

type job struct {
	Job
	schedule cron.Schedule
	status   JobStatus
}

// Scheduler checks the configured jobs on every tick and generates those
// that are due. Each run is saved.
type Scheduler struct {
	gen      Generator
	jobs     []*job
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	onRun    func(ctx context.Context, run *store.Run)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statusMu sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing
}

// NewScheduler parses the jobs' cron expressions (five fields) and sets
// their first run after now.
func NewScheduler(gen Generator, jobs []Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		gen:      gen,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		interval: time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}

	seen := make(map[string]bool, len(jobs))
	now := s.now()
	for _, j := range jobs {
		if j.Name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "schedule has no name")
		}
		if seen[j.Name] {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "duplicate schedule %q", j.Name)
		}
		seen[j.Name] = true
		if len(j.Targets) == 0 {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "schedule %q has no targets", j.Name)
		}
		sched, err := s.parser.Parse(j.Cron)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "schedule %q: parse cron expression %q: %s", j.Name, j.Cron, err.Error()).WithCause(err)
		}
		s.jobs = append(s.jobs, &job{
			Job:      j,
			schedule: sched,
			status:   JobStatus{Name: j.Name, Cron: j.Cron, NextRunAt: sched.Next(now)},
		})
	}
	return s, nil
}

// OnRun registers fn to be called after every scheduled run. Must be called
// before Start.
func (s *Scheduler) OnRun(fn func(ctx context.Context, run *store.Run)) {
	s.onRun = fn
}

// Start launches the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if s.status(j).NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(j.Name) {
			continue
		}
		s.runJob(ctx, j, now)
		s.releaseJob(j.Name)
	}
}

// runJob generates the job's targets and moves its next run forward.
func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) {
	s.logger.Info("running scheduled report", slog.String("schedule", j.Name), slog.Int("targets", len(j.Targets)))

	res, err := s.gen.Generate(ctx, runner.Request{
		Targets:  j.Targets,
		EOFYDate: j.EOFYDate,
		Source:   runner.SourceSchedule,
		Save:     true,
	})

	if s.onRun != nil && res != nil && res.Run != nil {
		s.onRun(ctx, res.Run)
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	j.status.LastRunAt = &now
	j.status.NextRunAt = j.schedule.Next(now)
	j.status.LastStatus = "completed"
	if res != nil && res.Run != nil {
		j.status.LastRunID = res.Run.ID
		j.status.LastStatus = string(res.Run.Status)
	}
	if err != nil {
		j.status.LastStatus = "failed"
		s.logger.Error("scheduled report failed",
			slog.String("schedule", j.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) status(j *job) JobStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return j.status
}

// Jobs returns the state of every job in configuration order.
func (s *Scheduler) Jobs() []JobStatus {
	out := make([]JobStatus, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = s.status(j)
	}
	return out
}

// RunNow generates the named job immediately, regardless of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name != name {
			continue
		}
		if !s.tryAcquire(j.Name) {
			return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q is already running", name)
		}
		defer s.releaseJob(j.Name)
		s.runJob(ctx, j, s.now())
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "schedule %q not found", name)
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
