package report

import (
	"context"
	"math"

	"github.com/rendis/tally/pkg/schema"
)

// Evaluator evaluates an expression against a data environment.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// ExprFormula computes a row by evaluating Expression once per column.
// The environment binds col to the column index and provides:
//
//	subtotal(id)            subtotal of a section in this column
//	quantity(id)            quantity of a row in this column
//	quantity_or(id, def)    quantity of a row, or def if there is no such row
//
// Fractional results are floored.
type ExprFormula struct {
	Template   Row
	Expression string
	Engine     Evaluator
}

// Calculate implements Formula.
func (f *ExprFormula) Calculate(r *Report) (*Row, error) {
	row := f.Template
	row.Quantity = make([]int64, len(r.Columns))

	for col := range r.Columns {
		out, err := f.Engine.Evaluate(context.Background(), f.Expression, formulaEnv(r, col))
		if err != nil {
			return nil, err
		}
		q, err := toQuantity(out)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"formula %q: %s", f.Expression, err.Error())
		}
		row.Quantity[col] = q
	}
	return &row, nil
}

func formulaEnv(r *Report, col int) map[string]any {
	return map[string]any{
		"col": col,
		"subtotal": func(id string) (int, error) {
			q, err := r.SubtotalForID(id)
			if err != nil {
				return 0, err
			}
			return int(q[col]), nil
		},
		"quantity": func(id string) (int, error) {
			q, err := r.QuantityForID(id)
			if err != nil {
				return 0, err
			}
			return int(q[col]), nil
		},
		"quantity_or": func(id string, def int) int {
			q, err := r.QuantityForID(id)
			if err != nil {
				return def
			}
			return int(q[col])
		},
	}
}

func toQuantity(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(math.Floor(n)), nil
	case float32:
		return int64(math.Floor(float64(n))), nil
	default:
		return 0, schema.NewErrorf(schema.ErrCodeExpression, "result %v (%T) is not a number", v, v)
	}
}
