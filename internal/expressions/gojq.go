package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/rendis/tally/pkg/schema"
)

// GoJQEngine evaluates jq programs. Plugin steps map their dependency
// products to postings with it, and the query command filters generated
// products.
type GoJQEngine struct {
	cache *programCache[*gojq.Code]
}

// NewGoJQEngine creates a GoJQEngine with an empty program cache.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{cache: newProgramCache[*gojq.Code]()}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Compile checks program and caches it.
func (e *GoJQEngine) Compile(program string) error {
	if program == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}
	_, err := e.cache.get(program, compileJQ)
	return err
}

// Evaluate runs program over data. A single output is returned as is; more
// than one are returned as []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, program string, data map[string]any) (any, error) {
	results, err := e.EvaluateAll(ctx, program, data)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// EvaluateAll runs program over data and collects every output.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, program string, data any) ([]any, error) {
	if program == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}
	code, err := e.cache.get(program, compileJQ)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, data)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExpression, "jq evaluation failed for %q: %s", program, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": program})
		}
		results = append(results, v)
	}
	return results, nil
}

// ToJQ converts v to the generic JSON values gojq operates on by a JSON
// round trip. Structs, typed maps and integers all become plain maps,
// slices and float64s.
func ToJQ(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "encode jq input: %s", err.Error()).WithCause(err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "decode jq input: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

func compileJQ(src string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq parse error in %q: %s", src, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": src})
	}
	// No $ENV access.
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq compile error in %q: %s", src, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": src})
	}
	return code, nil
}

var _ Engine = (*GoJQEngine)(nil)
