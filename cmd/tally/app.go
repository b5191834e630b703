package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/tally/internal/austax"
	"github.com/rendis/tally/internal/builders"
	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/logging"
	"github.com/rendis/tally/internal/plugins"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/steps"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/internal/validation"
)

// app is the wired runtime shared by the commands.
type app struct {
	cfg       Config
	level     *slog.LevelVar
	logger    *slog.Logger
	store     *store.LibSQLStore
	validator *validation.Validator
	runner    *runner.Runner
}

// newLogger builds the correlation-aware text logger. Its level can be
// changed later through the returned LevelVar.
func newLogger(w io.Writer, level string) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(logging.ParseLevel(level))
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return slog.New(logging.NewCorrelationHandler(h)), lv
}

// newApp opens and migrates the store and builds the registry: bookkeeping
// steps, the income tax step, plugins, then the dynamic builders.
func newApp(ctx context.Context, cfg Config, logw io.Writer) (*app, error) {
	logger, level := newLogger(logw, cfg.LogLevel)

	dsn, err := databaseURL(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	st, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	v, err := validation.New()
	if err != nil {
		st.Close()
		return nil, err
	}

	reg, err := buildRegistry(cfg, v, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	eng := engine.New(reg, engine.ExecutorConfig{PoolSize: cfg.PoolSize})
	return &app{
		cfg:       cfg,
		level:     level,
		logger:    logger,
		store:     st,
		validator: v,
		runner:    runner.New(eng, st, cfg.Defaults(), logger),
	}, nil
}

func buildRegistry(cfg Config, v *validation.Validator, logger *slog.Logger) (*engine.Registry, error) {
	rb := engine.NewRegistryBuilder()
	steps.Register(rb)
	austax.Register(rb)

	if cfg.PluginDir != "" {
		engines, err := plugins.NewEngines()
		if err != nil {
			return nil, fmt.Errorf("plugin engines: %w", err)
		}
		ps, err := plugins.Load(cfg.PluginDir, v, engines, logger)
		if err != nil {
			return nil, err
		}
		plugins.Register(rb, ps)
		if len(ps) > 0 {
			logger.Info("plugins loaded", slog.Int("count", len(ps)), slog.String("dir", cfg.PluginDir))
		}
	}

	builders.Register(rb)
	return rb.Build(), nil
}

// databaseURL turns a plain db_path into a file URI, creating its directory.
// Paths that already carry a scheme are used as is.
func databaseURL(path string) (string, error) {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "://") {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create database dir: %w", err)
	}
	return "file:" + path, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
