package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/tally/pkg/schema"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := loadConfig(newViper(""))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".tally", "tally.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2, cfg.DPS)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:4201", cfg.BaseURL)
	assert.Empty(t, cfg.Schedules)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/books.db
eofy_date: "2025-06-30"
reporting_commodity: AUD
dps: 0
schedules:
  - name: monthly
    cron: "0 6 1 * *"
    targets: ["IncomeStatement@ranges:2024-07-01..2025-06-30"]
`), 0o644))

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/books.db", cfg.DBPath)
	assert.Equal(t, "AUD", cfg.ReportingCommodity)
	assert.Equal(t, 0, cfg.DPS)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "monthly", cfg.Schedules[0].Name)

	d := cfg.Defaults()
	assert.Equal(t, schema.MustParseDate("2025-06-30"), d.EOFYDate)
	assert.Equal(t, "AUD", d.ReportingCommodity)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "warn", "listen_addr": ":9000"}`), 0o644))
	t.Setenv("TALLY_LOG_LEVEL", "debug")

	cfg, err := loadConfig(newViper(path))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.ListenAddr)
}

func TestLoadConfig_InvalidEOFY(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TALLY_EOFY_DATE", "30/06/2025")

	_, err := loadConfig(newViper(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eofy_date")
}

func TestLoadConfig_UnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dps: [unterminated"), 0o644))

	_, err := loadConfig(newViper(path))
	require.Error(t, err)
}

func TestConfig_Jobs(t *testing.T) {
	cfg := Config{Schedules: []ScheduleConfig{{
		Name:     "yearly",
		Cron:     "0 0 1 7 *",
		Targets:  []string{"BalanceSheet@2025-06-30", "CombineOrdinaryTransactions.BalancesAt@2025-06-30"},
		EOFYDate: "2025-06-30",
	}}}

	jobs, err := cfg.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "yearly", jobs[0].Name)
	assert.Len(t, jobs[0].Targets, 2)
	assert.Equal(t, schema.MustParseDate("2025-06-30"), jobs[0].EOFYDate)
}

func TestConfig_Jobs_BadTarget(t *testing.T) {
	cfg := Config{Schedules: []ScheduleConfig{{Name: "bad", Cron: "* * * * *", Targets: []string{"BalanceSheet@soon"}}}}

	_, err := cfg.Jobs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "bad"`)
}

func TestDiffConfigs(t *testing.T) {
	base := Config{
		LogLevel:   "info",
		ListenAddr: ":4200",
		Schedules:  []ScheduleConfig{{Name: "a", Cron: "* * * * *", Targets: []string{"BalanceSheet@2025-06-30"}}},
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		level   bool
		sched   bool
		restart []string
	}{
		{name: "unchanged", mutate: func(*Config) {}},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "debug" }, level: true},
		{name: "schedule target", mutate: func(c *Config) {
			c.Schedules = []ScheduleConfig{{Name: "a", Cron: "* * * * *", Targets: []string{"BalanceSheet@2024-06-30"}}}
		}, sched: true},
		{name: "schedule removed", mutate: func(c *Config) { c.Schedules = nil }, sched: true},
		{name: "listen addr", mutate: func(c *Config) { c.ListenAddr = ":8080" }, restart: []string{"listen_addr"}},
		{name: "db and dps", mutate: func(c *Config) { c.DBPath = "other.db"; c.DPS = 3 }, restart: []string{"db_path", "dps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			next.Schedules = append([]ScheduleConfig(nil), base.Schedules...)
			tt.mutate(&next)

			d := diffConfigs(base, next)
			assert.Equal(t, tt.level, d.LogLevelChanged)
			assert.Equal(t, tt.sched, d.SchedulesChanged)
			assert.Equal(t, tt.restart, d.RestartNeeded)
			assert.Equal(t, !tt.level && !tt.sched && len(tt.restart) == 0, d.empty())
		})
	}
}
