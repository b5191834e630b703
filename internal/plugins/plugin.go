package plugins

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/expressions"
	"github.com/rendis/tally/internal/validation"
	"github.com/rendis/tally/pkg/schema"
)

// Engines are the expression engines shared by every plugin.
type Engines struct {
	CEL  *expressions.CELEngine
	JQ   *expressions.GoJQEngine
	Expr *expressions.ExprEngine
}

// NewEngines creates a fresh set of engines.
func NewEngines() (*Engines, error) {
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{CEL: cel, JQ: expressions.NewGoJQEngine(), Expr: expressions.NewExprEngine()}, nil
}

// Plugin is a compiled manifest.
type Plugin struct {
	manifest *Manifest
	kinds    []schema.ProductKind
	requires []requirement
	engines  *Engines
	logger   *slog.Logger
}

type requirement struct {
	name    string
	kind    schema.ProductKind
	keyword string
	args    schema.StepArgs
}

// Compile checks the manifest's expressions and requirements.
func Compile(m *Manifest, engines *Engines, logger *slog.Logger) (*Plugin, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kinds, err := m.kinds()
	if err != nil {
		return nil, err
	}
	if m.Accepts != "" {
		if err := engines.CEL.Compile(m.Accepts); err != nil {
			return nil, err
		}
	}
	if err := engines.JQ.Compile(m.Transactions); err != nil {
		return nil, err
	}

	p := &Plugin{manifest: m, kinds: kinds, engines: engines, logger: logger.With("plugin", m.Name)}
	for _, r := range m.Requires {
		req, err := compileRequirement(r)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "plugin %q requires %s: %s", m.Name, r.Name, err.Error()).WithCause(err)
		}
		p.requires = append(p.requires, req)
	}
	return p, nil
}

func compileRequirement(r Requirement) (requirement, error) {
	kind, err := schema.ParseProductKind(r.Kind)
	if err != nil {
		return requirement{}, err
	}
	req := requirement{name: r.Name, kind: kind}
	switch a := r.Args.(type) {
	case nil:
		req.keyword = "self"
	case string:
		req.keyword = a
	default:
		raw, err := json.Marshal(a)
		if err != nil {
			return requirement{}, err
		}
		if req.args, err = schema.UnmarshalArgs(raw); err != nil {
			return requirement{}, err
		}
	}
	return req, nil
}

func (r requirement) product(self schema.StepArgs, env *engine.Env) schema.ProductID {
	args := r.args
	switch r.keyword {
	case "self":
		args = self
	case "void":
		args = schema.VoidArgs{}
	case "eofy":
		args = schema.DateArgs{Date: env.EOFYDate}
	case "year":
		args = schema.DateRangeArgs{Start: schema.SOFYFromEOFY(env.EOFYDate), End: env.EOFYDate}
	}
	return schema.ProductID{Name: r.name, Kind: r.kind, Args: args}
}

// Name returns the step name the plugin registers.
func (p *Plugin) Name() string { return p.manifest.Name }

// accepts evaluates the manifest's predicate. Evaluation errors reject the
// args.
func (p *Plugin) accepts(args schema.StepArgs) bool {
	if p.manifest.Accepts == "" {
		return args.ArgsKind() == schema.ArgsVoid
	}
	ok, err := p.engines.CEL.Predicate(context.Background(), p.manifest.Accepts, map[string]any{
		"name": p.manifest.Name,
		"args": schema.ArgsToMap(args),
	})
	if err != nil {
		p.logger.Warn("accepts predicate failed", "args", args.String(), "error", err)
		return false
	}
	return ok
}

// Register adds a lookup for each plugin to rb.
func Register(rb *engine.RegistryBuilder, plugins []*Plugin) *engine.RegistryBuilder {
	for _, p := range plugins {
		rb.RegisterLookup(p.Name(), p.kinds, p.accepts, func(args schema.StepArgs) engine.Step {
			return &pluginStep{plugin: p, args: args}
		})
	}
	return rb
}

// Load reads, compiles and returns the plugins in dir.
func Load(dir string, v *validation.Validator, engines *Engines, logger *slog.Logger) ([]*Plugin, error) {
	manifests, err := LoadDir(dir, v)
	if err != nil {
		return nil, err
	}
	out := make([]*Plugin, 0, len(manifests))
	for _, m := range manifests {
		p, err := Compile(m, engines, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
