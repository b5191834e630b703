// Package api serves report generation, plans and run history over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/scheduler"
	"github.com/rendis/tally/internal/streaming"
	"github.com/rendis/tally/internal/validation"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Runner    *runner.Runner
	Validator *validation.Validator
	// Scheduler is optional. Without it the schedule routes return 404.
	Scheduler *scheduler.Scheduler
	// Hub is optional. Without it /events returns 404.
	Hub       streaming.Hub
	Logger    *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	router *chi.Mux
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(deps.Logger))
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports", s.handleGenerate)
		r.Get("/plan", s.handlePlan)
		r.Get("/steps", s.handleSteps)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/schedules", s.handleListSchedules)
		r.Post("/schedules/{name}/run", s.handleRunSchedule)
		r.Get("/events", s.handleEvents)
	})
	return s
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves h on addr until ctx is cancelled, then drains
// outstanding requests for up to shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting api server", slog.String("addr", addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
			return srv.Close()
		}
		return nil
	}
}
