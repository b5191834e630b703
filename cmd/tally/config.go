package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/viper"

	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/scheduler"
	"github.com/rendis/tally/pkg/schema"
)

// Config holds all tally configuration.
// Priority: TALLY_* env vars > ~/.tally/settings.{json,yaml} > defaults.
type Config struct {
	DBPath             string           `mapstructure:"db_path"`
	LogLevel           string           `mapstructure:"log_level"`
	EOFYDate           string           `mapstructure:"eofy_date"`
	ReportingCommodity string           `mapstructure:"reporting_commodity"`
	DPS                int              `mapstructure:"dps"`
	PoolSize           int              `mapstructure:"pool_size"`
	PluginDir          string           `mapstructure:"plugin_dir"`
	ListenAddr         string           `mapstructure:"listen_addr"`
	MCPAddr            string           `mapstructure:"mcp_addr"`
	BaseURL            string           `mapstructure:"base_url"`
	Schedules          []ScheduleConfig `mapstructure:"schedules"`
}

// ScheduleConfig is one configured schedule. Targets use the
// schema.ParseTarget form.
type ScheduleConfig struct {
	Name     string   `mapstructure:"name"`
	Cron     string   `mapstructure:"cron"`
	Targets  []string `mapstructure:"targets"`
	EOFYDate string   `mapstructure:"eofy_date"`
}

func defaultConfig() Config {
	return Config{
		DBPath:     filepath.Join(tallyDir(), "tally.db"),
		LogLevel:   "info",
		DPS:        2,
		PoolSize:   4,
		PluginDir:  filepath.Join(tallyDir(), "plugins"),
		ListenAddr: ":4200",
		MCPAddr:    ":4201",
	}
}

func tallyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tally"
	}
	return filepath.Join(home, ".tally")
}

// newViper returns a viper instance carrying the defaults and the env layer.
// path selects the settings file; empty searches ~/.tally for settings.json
// or settings.yaml.
func newViper(path string) *viper.Viper {
	v := viper.New()
	d := defaultConfig()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("eofy_date", d.EOFYDate)
	v.SetDefault("reporting_commodity", d.ReportingCommodity)
	v.SetDefault("dps", d.DPS)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("plugin_dir", d.PluginDir)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("mcp_addr", d.MCPAddr)
	v.SetDefault("base_url", d.BaseURL)

	v.SetEnvPrefix("TALLY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(tallyDir())
	}
	return v
}

// loadConfig reads the settings file, if any, and decodes every layer.
func loadConfig(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read settings: %w", err)
		}
	}
	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.MCPAddr
	}
	if cfg.EOFYDate != "" {
		if _, err := schema.ParseDate(cfg.EOFYDate); err != nil {
			return Config{}, fmt.Errorf("eofy_date: %w", err)
		}
	}
	return cfg, nil
}

// Defaults returns the runner defaults the configuration carries.
func (c Config) Defaults() runner.Defaults {
	d := runner.Defaults{ReportingCommodity: c.ReportingCommodity, DPS: c.DPS}
	if c.EOFYDate != "" {
		d.EOFYDate, _ = schema.ParseDate(c.EOFYDate)
	}
	return d
}

// Jobs converts the configured schedules to scheduler jobs.
func (c Config) Jobs() ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(c.Schedules))
	for _, sc := range c.Schedules {
		job := scheduler.Job{Name: sc.Name, Cron: sc.Cron}
		for _, raw := range sc.Targets {
			t, err := schema.ParseTarget(raw)
			if err != nil {
				return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
			}
			job.Targets = append(job.Targets, t)
		}
		if sc.EOFYDate != "" {
			d, err := schema.ParseDate(sc.EOFYDate)
			if err != nil {
				return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
			}
			job.EOFYDate = d
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged  bool
	SchedulesChanged bool
	RestartNeeded    []string // fields that require a server restart
}

func (d configDiff) empty() bool {
	return !d.LogLevelChanged && !d.SchedulesChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if !slices.EqualFunc(old.Schedules, new.Schedules, func(a, b ScheduleConfig) bool {
		return a.Name == b.Name && a.Cron == b.Cron && a.EOFYDate == b.EOFYDate && slices.Equal(a.Targets, b.Targets)
	}) {
		d.SchedulesChanged = true
	}
	for _, f := range []struct {
		name    string
		changed bool
	}{
		{"db_path", old.DBPath != new.DBPath},
		{"listen_addr", old.ListenAddr != new.ListenAddr},
		{"mcp_addr", old.MCPAddr != new.MCPAddr},
		{"base_url", old.BaseURL != new.BaseURL},
		{"pool_size", old.PoolSize != new.PoolSize},
		{"plugin_dir", old.PluginDir != new.PluginDir},
		{"eofy_date", old.EOFYDate != new.EOFYDate},
		{"reporting_commodity", old.ReportingCommodity != new.ReportingCommodity},
		{"dps", old.DPS != new.DPS},
	} {
		if f.changed {
			d.RestartNeeded = append(d.RestartNeeded, f.name)
		}
	}
	return d
}
