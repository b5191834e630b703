package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/rendis/tally/pkg/schema"
)

// CELEngine evaluates CEL predicates over step arguments. The environment
// exposes:
//   - name: the product name being resolved
//   - kind: the product kind being resolved
//   - args: the JSON form of the step args, e.g. {"type": "DateArgs", "date": "2025-06-30"}
type CELEngine struct {
	env   *cel.Env
	cache *programCache[cel.Program]
}

// NewCELEngine creates a CEL engine with the argument environment.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, cache: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Compile checks expression and caches its program. Plugins compile their
// predicates when loaded so a bad manifest fails early.
func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	_, err := e.cache.get(expression, e.compile)
	return err
}

// Evaluate runs expression against data. Missing variables default to
// their zero values.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	prg, err := e.cache.get(expression, e.compile)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, activation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

// Predicate evaluates expression and requires a boolean result.
func (e *CELEngine) Predicate(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExpression, "CEL predicate %q returned %T, not bool", expression, out)
	}
	return b, nil
}

func (e *CELEngine) compile(src string) (cel.Program, error) {
	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "CEL compile error in %q: %s", src, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": src})
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "CEL program error for %q: %s", src, err.Error()).
			WithCause(err)
	}
	return prg, nil
}

func activation(data map[string]any) map[string]any {
	out := map[string]any{"name": "", "kind": "", "args": map[string]any{}}
	for k := range out {
		if v, ok := data[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

var _ Engine = (*CELEngine)(nil)
