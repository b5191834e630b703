package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/tally/pkg/schema"
)

// ExprEngine evaluates expr-lang expressions. Report formulas use it with
// an environment of lookup functions (subtotal, quantity, quantity_or).
// Programs are compiled against the first environment seen for a given
// source and reused afterwards, so callers must pass environments of the
// same shape for the same expression.
type ExprEngine struct {
	cache *programCache[*vm.Program]
}

// NewExprEngine creates an ExprEngine with an empty program cache.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: newProgramCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with data as its environment.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.cache.get(expression, func(src string) (*vm.Program, error) {
		prg, err := expr.Compile(src, expr.Env(data), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExpression, "expr compile error in %q: %s", src, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": src})
		}
		return prg, nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
