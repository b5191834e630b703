package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/tally/internal/api"
	"github.com/rendis/tally/internal/logging"
	"github.com/rendis/tally/internal/scheduler"
	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/internal/streaming"
	tallymcp "github.com/rendis/tally/pkg/mcp"
)

type serveOptions struct {
	*rootOptions
	MCP bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run configured schedules",
		Long: `Serve the HTTP API on listen_addr and run the configured schedules.

Run events stream from /api/v1/events as Server-Sent Events.

With --mcp the MCP SSE transport is also served on mcp_addr, and connected
agents are notified when scheduled runs finish.

The settings file is watched: log_level and schedules apply immediately,
other changes need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d := &daemon{app: a, cfg: opts.cfg}
			if opts.MCP {
				d.mcp = tallymcp.NewTallyServer(tallymcp.TallyServerDeps{Runner: a.runner, Logger: a.logger})
			}
			if err := d.start(ctx); err != nil {
				return err
			}
			defer d.stop()

			opts.viper.OnConfigChange(func(fsnotify.Event) {
				cfg, err := decodeConfig(opts.viper)
				if err != nil {
					a.logger.Error("settings reload failed", slog.String("error", err.Error()))
					return
				}
				d.reload(ctx, cfg)
			})
			opts.viper.WatchConfig()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return api.ListenAndServe(gctx, opts.cfg.ListenAddr, d.handler, 10*time.Second, a.logger)
			})
			if d.mcp != nil {
				g.Go(func() error {
					return d.mcp.ServeSSE(gctx, opts.cfg.MCPAddr, opts.cfg.BaseURL)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&opts.MCP, "mcp", false, "also serve MCP over SSE on mcp_addr")
	return cmd
}

// daemon owns the long-running pieces of serve and applies settings
// reloads to them.
type daemon struct {
	app *app
	mcp *tallymcp.TallyServer
	hub *streaming.MemoryHub

	mu        sync.Mutex
	cfg       Config
	scheduler *scheduler.Scheduler
	handler   *liveHandler
}

func (d *daemon) start(ctx context.Context) error {
	d.hub = streaming.NewMemoryHub()
	d.app.runner.PublishTo(d.hub)

	sched, err := d.newScheduler(d.cfg)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	d.scheduler = sched
	d.handler = newLiveHandler(d.apiHandler(sched).Handler())
	return nil
}

func (d *daemon) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
}

func (d *daemon) newScheduler(cfg Config) (*scheduler.Scheduler, error) {
	jobs, err := cfg.Jobs()
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.NewScheduler(d.app.runner, jobs, d.app.logger)
	if err != nil {
		return nil, err
	}
	if d.mcp != nil {
		notifier := d.mcp.Notifier()
		sched.OnRun(func(ctx context.Context, run *store.Run) {
			if err := notifier.NotifyRun(ctx, run); err != nil {
				d.app.logger.WarnContext(ctx, "run notification failed", slog.String("error", err.Error()))
			}
		})
	}
	return sched, nil
}

func (d *daemon) apiHandler(sched *scheduler.Scheduler) *api.Server {
	return api.NewServer(api.Deps{
		Runner:    d.app.runner,
		Validator: d.app.validator,
		Scheduler: sched,
		Hub:       d.hub,
		Logger:    d.app.logger,
	})
}

// reload applies what can change at runtime: the log level immediately, and
// schedules by replacing the scheduler and the API handler that exposes it.
func (d *daemon) reload(ctx context.Context, cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	diff := diffConfigs(d.cfg, cfg)
	if diff.empty() {
		return
	}
	logger := d.app.logger

	if diff.LogLevelChanged {
		d.app.level.Set(logging.ParseLevel(cfg.LogLevel))
		logger.Info("log level changed", slog.String("level", cfg.LogLevel))
	}
	if diff.SchedulesChanged {
		sched, err := d.newScheduler(cfg)
		if err != nil {
			logger.Error("schedules not reloaded", slog.String("error", err.Error()))
			cfg.Schedules = d.cfg.Schedules
		} else {
			if d.scheduler != nil {
				d.scheduler.Stop()
			}
			if err := sched.Start(ctx); err != nil {
				logger.Error("scheduler start failed", slog.String("error", err.Error()))
			}
			d.scheduler = sched
			gen := d.handler.install(d.apiHandler(sched).Handler())
			logger.Info("schedules reloaded",
				slog.Int("jobs", len(sched.Jobs())),
				slog.Uint64("generation", gen))
		}
	}
	if len(diff.RestartNeeded) > 0 {
		logger.Warn("settings changed that need a restart", slog.Any("fields", diff.RestartNeeded))
	}
	d.cfg = cfg
}
