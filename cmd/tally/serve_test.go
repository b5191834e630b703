package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T, cfg Config) *daemon {
	t.Helper()
	cfg.DBPath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.PluginDir = ""
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 2
	}
	a, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	d := &daemon{app: a, cfg: cfg}
	require.NoError(t, d.start(context.Background()))
	t.Cleanup(d.stop)
	return d
}

func listSchedules(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schedules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestDaemon_ReloadLogLevel(t *testing.T) {
	d := newTestDaemon(t, Config{LogLevel: "info"})
	assert.Equal(t, slog.LevelInfo, d.app.level.Level())

	next := d.cfg
	next.LogLevel = "debug"
	d.reload(context.Background(), next)

	assert.Equal(t, slog.LevelDebug, d.app.level.Level())
	assert.Equal(t, "debug", d.cfg.LogLevel)
}

func TestDaemon_ReloadSchedules(t *testing.T) {
	d := newTestDaemon(t, Config{LogLevel: "info"})
	before := d.scheduler
	assert.Empty(t, before.Jobs())
	assert.NotContains(t, listSchedules(t, d.handler), "monthly")

	next := d.cfg
	next.Schedules = []ScheduleConfig{{
		Name:    "monthly",
		Cron:    "0 6 1 * *",
		Targets: []string{"BalanceSheet@2025-06-30"},
	}}
	d.reload(context.Background(), next)

	require.NotSame(t, before, d.scheduler)
	require.Len(t, d.scheduler.Jobs(), 1)
	assert.Equal(t, "monthly", d.scheduler.Jobs()[0].Name)
	assert.Contains(t, listSchedules(t, d.handler), "monthly")
}

func TestDaemon_ReloadBadSchedulesKeepsOld(t *testing.T) {
	d := newTestDaemon(t, Config{LogLevel: "info"})
	before := d.scheduler

	next := d.cfg
	next.Schedules = []ScheduleConfig{{Name: "broken", Cron: "every day", Targets: []string{"BalanceSheet@2025-06-30"}}}
	d.reload(context.Background(), next)

	assert.Same(t, before, d.scheduler)
	assert.Empty(t, d.cfg.Schedules)
}

func TestDaemon_ServesAPI(t *testing.T) {
	d := newTestDaemon(t, Config{LogLevel: "info"})
	require.NotNil(t, d.hub)

	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/steps", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "IncomeStatement")
}
