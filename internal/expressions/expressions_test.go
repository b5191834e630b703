package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/tally/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Expr ---

func TestExpr_FormulaFunctions(t *testing.T) {
	e := NewExprEngine()
	env := map[string]any{
		"col":      1,
		"subtotal": func(id string) (int, error) { return map[string]int{"income": 900, "expenses": 400}[id], nil },
	}

	out, err := e.Evaluate(context.Background(), `subtotal("income") - subtotal("expenses") + col`, env)
	require.NoError(t, err)
	assert.Equal(t, 501, out)
}

func TestExpr_CachesPrograms(t *testing.T) {
	e := NewExprEngine()
	for i := range 3 {
		out, err := e.Evaluate(context.Background(), "a * 2", map[string]any{"a": i})
		require.NoError(t, err)
		assert.Equal(t, i*2, out)
	}
	assert.Equal(t, 1, e.cache.len())
}

func TestExpr_Errors(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), "1 +", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))

	_, err = e.Evaluate(context.Background(), `fail("x")`, map[string]any{
		"fail": func(id string) (int, error) { return 0, schema.NewError(schema.ErrCodeNotFound, id) },
	})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExpr_ConcurrentEvaluate(t *testing.T) {
	e := NewExprEngine()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(context.Background(), "n + 1", map[string]any{"n": i})
			assert.NoError(t, err)
			assert.Equal(t, i+1, out)
		}()
	}
	wg.Wait()
}

// --- CEL ---

func TestCEL_Predicate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		data map[string]any
		want bool
	}{
		{"args type", `args.type == "DateArgs"`, map[string]any{"args": map[string]any{"type": "DateArgs", "date": "2025-06-30"}}, true},
		{"date compare", `args.date >= "2025-01-01"`, map[string]any{"args": map[string]any{"date": "2024-06-30"}}, false},
		{"kind", `kind == "BalancesAt" && name.startsWith("Plugin")`, map[string]any{"kind": "BalancesAt", "name": "PluginX"}, true},
		{"missing variables", `name == ""`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Predicate(context.Background(), tt.expr, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCEL_CompileErrors(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	assert.True(t, schema.IsCode(e.Compile(""), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(e.Compile("args.type =="), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(e.Compile("unknown_var"), schema.ErrCodeValidation))
	assert.NoError(t, e.Compile(`args.type == "VoidArgs"`))
}

func TestCEL_PredicateRequiresBool(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Predicate(context.Background(), `name + "x"`, map[string]any{"name": "a"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

// --- jq ---

func TestJQ_EvaluateAll(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"balances": map[string]any{"Bank": 100.0, "Loan": -40.0}}

	out, err := e.EvaluateAll(context.Background(), `.balances | to_entries[] | select(.value > 0) | .key`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"Bank"}, out)

	single, err := e.Evaluate(context.Background(), `.balances.Loan`, data)
	require.NoError(t, err)
	assert.Equal(t, -40.0, single)

	none, err := e.Evaluate(context.Background(), `empty`, data)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestJQ_NoEnvironment(t *testing.T) {
	e := NewGoJQEngine()
	t.Setenv("TALLY_SECRET", "x")

	out, err := e.Evaluate(context.Background(), `$ENV.TALLY_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestJQ_Errors(t *testing.T) {
	e := NewGoJQEngine()

	assert.True(t, schema.IsCode(e.Compile(".["), schema.ErrCodeValidation))

	_, err := e.Evaluate(context.Background(), `error("boom")`, map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestToJQ(t *testing.T) {
	out, err := ToJQ(schema.BalancesAt{Balances: map[string]int64{"Bank": 5}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"balances": map[string]any{"Bank": 5.0}}, out)
}
