// Package logging carries report run correlation through contexts and into
// slog records.
package logging

import (
	"context"
	"log/slog"
)

// Correlation identifies the work a log line belongs to.
type Correlation struct {
	RunID  string
	StepID string
	Target string
}

// Attrs returns the non-empty fields as run_id, step_id and target.
func (c Correlation) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	for _, f := range [...]struct{ key, value string }{
		{"run_id", c.RunID},
		{"step_id", c.StepID},
		{"target", c.Target},
	} {
		if f.value != "" {
			attrs = append(attrs, slog.String(f.key, f.value))
		}
	}
	return attrs
}

type correlationKey struct{}

// FromContext returns the correlation stored in ctx, zero if none.
func FromContext(ctx context.Context) Correlation {
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}

func with(ctx context.Context, set func(*Correlation)) context.Context {
	c := FromContext(ctx)
	set(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return with(ctx, func(c *Correlation) { c.RunID = id })
}

func WithStepID(ctx context.Context, id string) context.Context {
	return with(ctx, func(c *Correlation) { c.StepID = id })
}

// WithTarget records the requested products, as the user named them.
func WithTarget(ctx context.Context, target string) context.Context {
	return with(ctx, func(c *Correlation) { c.Target = target })
}

func RunID(ctx context.Context) string { return FromContext(ctx).RunID }
func StepID(ctx context.Context) string { return FromContext(ctx).StepID }
func Target(ctx context.Context) string { return FromContext(ctx).Target }

// LogWith returns logger with the correlation of ctx attached, for loggers
// not built on NewCorrelationHandler.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := FromContext(ctx).Attrs()
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

type correlationHandler struct {
	slog.Handler
}

// NewCorrelationHandler wraps inner so every record logged with a context
// carries that context's correlation.
func NewCorrelationHandler(inner slog.Handler) slog.Handler {
	return correlationHandler{Handler: inner}
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(FromContext(ctx).Attrs()...)
	return h.Handler.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{Handler: h.Handler.WithGroup(name)}
}

// ParseLevel maps a config level name to an slog.Level. Unknown names map to Info.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
