package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/tally/internal/builders"
	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/scheduler"
	"github.com/rendis/tally/internal/steps"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/internal/streaming"
	"github.com/rendis/tally/internal/validation"
	"github.com/rendis/tally/pkg/schema"
)

const incomeStatementBody = `{
  "targets": [{
    "name": "IncomeStatement",
    "kind": "DynamicReport",
    "args": {"type": "multiple_date_ranges", "ranges": [{"start": "2024-07-01", "end": "2025-06-30"}]}
  }],
  "save": true
}`

func transfer(date, debit, credit string, q int64) *schema.TransactionWithPostings {
	return &schema.TransactionWithPostings{
		Transaction: schema.Transaction{DT: schema.MustParseDate(date).Time(), Description: "test"},
		Postings: []schema.Posting{
			{Account: debit, Quantity: q, Commodity: "$"},
			{Account: credit, Quantity: -q, Commodity: "$"},
		},
	}
}

func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	for _, tx := range []*schema.TransactionWithPostings{
		transfer("2023-07-10", "Bank", "Capital", 1000),
		transfer("2024-09-01", "Bank", "Salary", 800),
		transfer("2025-01-15", "Rent", "Bank", 300),
	} {
		_, err := st.InsertTransaction(ctx, tx)
		require.NoError(t, err)
	}
	for account, kind := range map[string]string{
		"Bank":    schema.AccountKindAsset,
		"Capital": schema.AccountKindEquity,
		"Salary":  schema.AccountKindIncome,
		"Rent":    schema.AccountKindExpense,
	} {
		require.NoError(t, st.SetAccountKind(ctx, account, kind))
	}

	reg := builders.Register(steps.Register(engine.NewRegistryBuilder())).Build()
	eng := engine.New(reg, engine.ExecutorConfig{PoolSize: 2})
	return runner.New(eng, st, runner.Defaults{EOFYDate: schema.MustParseDate("2025-06-30"), ReportingCommodity: "$"}, nil)
}

func newTestServer(t *testing.T, sched *scheduler.Scheduler) (*Server, *runner.Runner) {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)
	r := newTestRunner(t)
	return NewServer(Deps{Runner: r, Validator: v, Scheduler: sched}), r
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error schema.TallyError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGenerate(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/reports", incomeStatementBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Run      store.Run `json:"run"`
		Products []struct {
			ID      schema.ProductID `json:"id"`
			Product json.RawMessage  `json:"product"`
		} `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.RunCompleted, resp.Run.Status)
	assert.Equal(t, runner.SourceAPI, resp.Run.Source)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, steps.IncomeStatement, resp.Products[0].ID.Name)
	assert.Contains(t, string(resp.Products[0].Product), "Income statement")

	rec = do(t, s, http.MethodGet, "/api/v1/runs/"+resp.Run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestGenerate_Text(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/reports?format=text", incomeStatementBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Income statement"), rec.Body.String())
}

func TestGenerate_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := map[string]struct {
		body   string
		status int
		code   string
	}{
		"not json":       {`{`, http.StatusBadRequest, schema.ErrCodeValidation},
		"no targets":     {`{"targets": []}`, http.StatusBadRequest, schema.ErrCodeValidation},
		"bad kind":       {`{"targets": [{"name": "X", "kind": "Ledger"}]}`, http.StatusBadRequest, schema.ErrCodeValidation},
		"unknown fields": {`{"targets": [{"name": "X", "kind": "Generic"}], "when": "now"}`, http.StatusBadRequest, schema.ErrCodeValidation},
		"no step": {
			`{"targets": [{"name": "Nope", "kind": "DynamicReport", "args": {"type": "void"}}]}`,
			http.StatusUnprocessableEntity, schema.ErrCodeNoStepForProduct,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/reports", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestPlan(t *testing.T) {
	s, _ := newTestServer(t, nil)
	target := url.QueryEscape("IncomeStatement@ranges:2024-07-01..2025-06-30")

	rec := do(t, s, http.MethodGet, "/api/v1/plan?target="+target, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var desc engine.PlanDescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	require.NotEmpty(t, desc.Steps)
	last := desc.Steps[len(desc.Steps)-1]
	assert.Equal(t, steps.IncomeStatement, last.ID.Name)
	assert.True(t, last.Target)

	rec = do(t, s, http.MethodGet, "/api/v1/plan?format=mermaid&target="+target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "graph TD\n"))

	rec = do(t, s, http.MethodGet, "/api/v1/plan?format=ascii&target="+target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "level 0")
}

func TestPlan_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for name, query := range map[string]string{
		"no target":  "",
		"bad target": "?target=" + url.QueryEscape("IncomeStatement@tomorrow"),
		"bad eofy":   "?target=TrialBalance@2025-06-30&eofy=june",
		"bad format": "?target=TrialBalance@2025-06-30&format=pdf",
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/v1/plan"+query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestSteps(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var desc engine.RegistryDescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.NotEmpty(t, desc.Lookups)
	assert.NotEmpty(t, desc.Builders)
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs": []}`, rec.Body.String())

	do(t, s, http.MethodPost, "/api/v1/reports", incomeStatementBody)
	do(t, s, http.MethodPost, "/api/v1/reports", incomeStatementBody)

	rec = do(t, s, http.MethodGet, "/api/v1/runs?limit=1&source=api", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 1)

	rec = do(t, s, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, schema.ErrCodeNotFound, errorCode(t, rec))
}

func TestSchedules(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/schedules", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	r := newTestRunner(t)
	target, err := schema.ParseTarget("IncomeStatement@ranges:2024-07-01..2025-06-30")
	require.NoError(t, err)
	sched, err := scheduler.NewScheduler(r, []scheduler.Job{{Name: "yearly", Cron: "0 0 1 7 *", Targets: []schema.ProductID{target}}}, nil)
	require.NoError(t, err)
	s = NewServer(Deps{Runner: r, Scheduler: sched})

	rec = do(t, s, http.MethodGet, "/api/v1/schedules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"yearly"`)

	rec = do(t, s, http.MethodPost, "/api/v1/schedules/yearly/run", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status scheduler.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.LastStatus)
	assert.NotEmpty(t, status.LastRunID)

	rec = do(t, s, http.MethodPost, "/api/v1/schedules/weekly/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(schema.ErrCodeStepFailed))
	assert.Equal(t, http.StatusConflict, statusFor(schema.ErrCodeConflict))
}

func TestEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	r := newTestRunner(t)
	r.PublishTo(hub)
	ts := httptest.NewServer(NewServer(Deps{Runner: r, Hub: hub}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events?type=run.completed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	target := schema.ProductID{Name: "IncomeStatement", Kind: schema.KindDynamicReport,
		Args: schema.NewMultipleDateRangeArgs(schema.DateRangeArgs{Start: schema.MustParseDate("2024-07-01"), End: schema.MustParseDate("2025-06-30")})}
	res, err := r.Generate(context.Background(), runner.Request{Targets: []schema.ProductID{target}, Source: runner.SourceCLI})
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event: run.completed", sc.Text())
	require.True(t, sc.Scan())
	require.True(t, strings.HasPrefix(sc.Text(), "data: "))

	var event streaming.RunEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(sc.Text(), "data: ")), &event))
	assert.Equal(t, res.Run.ID, event.RunID)
	assert.Equal(t, runner.SourceCLI, event.Source)
	assert.Equal(t, []string{"IncomeStatement"}, event.Reports())
	require.NotNil(t, event.Outcome)
	assert.Equal(t, res.Run.Steps, event.Outcome.Steps)
}

func TestEvents_ReplayByReport(t *testing.T) {
	hub := streaming.NewMemoryHub()
	r := newTestRunner(t)
	r.PublishTo(hub)
	ts := httptest.NewServer(NewServer(Deps{Runner: r, Hub: hub}).Handler())
	defer ts.Close()

	target := schema.ProductID{Name: "IncomeStatement", Kind: schema.KindDynamicReport,
		Args: schema.NewMultipleDateRangeArgs(schema.DateRangeArgs{Start: schema.MustParseDate("2024-07-01"), End: schema.MustParseDate("2025-06-30")})}
	res, err := r.Generate(context.Background(), runner.Request{Targets: []schema.ProductID{target}, Source: runner.SourceAPI})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events?report=IncomeStatement&replay=true", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event: run.completed", sc.Text())
	require.True(t, sc.Scan())
	assert.Contains(t, sc.Text(), res.Run.ID)
}

func TestEvents_Disabled(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
