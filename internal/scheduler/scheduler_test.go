package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/schema"
)

// fakeGenerator records requests and returns a run per call.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []runner.Request
	err      error
}

func (f *fakeGenerator) Generate(_ context.Context, req runner.Request) (*runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	run := &store.Run{ID: "run-" + req.Source, Status: store.RunCompleted}
	if f.err != nil {
		run.Status = store.RunFailed
	}
	return &runner.Result{Run: run}, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var trialBalance = schema.ProductID{Name: "TrialBalance", Kind: schema.KindDynamicReport, Args: schema.DateArgs{Date: schema.MustParseDate("2025-06-30")}}

func newTestScheduler(t *testing.T, gen Generator, jobs ...Job) (*Scheduler, *time.Time) {
	t.Helper()
	now := time.Date(2025, 7, 1, 8, 30, 0, 0, time.UTC)
	s, err := NewScheduler(gen, jobs, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	// Recompute first runs against the fixed clock.
	for _, j := range s.jobs {
		j.status.NextRunAt = j.schedule.Next(now)
	}
	return s, &now
}

func TestNewScheduler_Validation(t *testing.T) {
	tests := map[string]struct {
		jobs []Job
		code string
	}{
		"no name":    {[]Job{{Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}}}, schema.ErrCodeValidation},
		"no targets": {[]Job{{Name: "daily", Cron: "0 9 * * *"}}, schema.ErrCodeValidation},
		"bad cron":   {[]Job{{Name: "daily", Cron: "every day", Targets: []schema.ProductID{trialBalance}}}, schema.ErrCodeValidation},
		"duplicate": {[]Job{
			{Name: "daily", Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}},
			{Name: "daily", Cron: "0 10 * * *", Targets: []schema.ProductID{trialBalance}},
		}, schema.ErrCodeConflict},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewScheduler(&fakeGenerator{}, tt.jobs, nil)
			assert.True(t, schema.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestTick_RunsDueJobs(t *testing.T) {
	gen := &fakeGenerator{}
	s, now := newTestScheduler(t, gen, Job{Name: "daily", Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}})

	s.tick(context.Background())
	assert.Equal(t, 0, gen.calls(), "not due before 09:00")

	*now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	s.tick(context.Background())
	require.Equal(t, 1, gen.calls())
	assert.Equal(t, runner.SourceSchedule, gen.requests[0].Source)
	assert.True(t, gen.requests[0].Save)
	assert.Equal(t, []schema.ProductID{trialBalance}, gen.requests[0].Targets)

	status := s.Jobs()[0]
	assert.Equal(t, time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC), status.NextRunAt)
	require.NotNil(t, status.LastRunAt)
	assert.Equal(t, "completed", status.LastStatus)
	assert.Equal(t, "run-schedule", status.LastRunID)

	s.tick(context.Background())
	assert.Equal(t, 1, gen.calls(), "next run moved forward")
}

func TestTick_RecordsFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("ledger locked")}
	s, now := newTestScheduler(t, gen, Job{Name: "daily", Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}})

	*now = now.Add(time.Hour)
	s.tick(context.Background())
	assert.Equal(t, "failed", s.Jobs()[0].LastStatus)
}

func TestTick_SkipsInflightJob(t *testing.T) {
	gen := &fakeGenerator{}
	s, now := newTestScheduler(t, gen, Job{Name: "daily", Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}})

	require.True(t, s.tryAcquire("daily"))
	*now = now.Add(time.Hour)
	s.tick(context.Background())
	assert.Equal(t, 0, gen.calls())

	s.releaseJob("daily")
	s.tick(context.Background())
	assert.Equal(t, 1, gen.calls())
}

func TestRunNow(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newTestScheduler(t, gen, Job{Name: "monthly", Cron: "0 0 1 * *", Targets: []schema.ProductID{trialBalance}})

	require.NoError(t, s.RunNow(context.Background(), "monthly"))
	assert.Equal(t, 1, gen.calls())

	err := s.RunNow(context.Background(), "weekly")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestCalculateNextRun(t *testing.T) {
	s, err := NewScheduler(&fakeGenerator{}, nil, nil)
	require.NoError(t, err)

	from := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 0 1 7 *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("bad", from)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(&fakeGenerator{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "already started")
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stopping twice is a no-op")
}

func TestOnRun(t *testing.T) {
	gen := &fakeGenerator{}
	s, _ := newTestScheduler(t, gen, Job{Name: "daily", Cron: "0 9 * * *", Targets: []schema.ProductID{trialBalance}})

	var got []*store.Run
	s.OnRun(func(_ context.Context, run *store.Run) { got = append(got, run) })

	require.NoError(t, s.RunNow(context.Background(), "daily"))
	require.Len(t, got, 1)
	assert.Equal(t, "run-schedule", got[0].ID)
}
