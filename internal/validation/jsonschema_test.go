package validation

import (
	"sync"
	"testing"

	"github.com/rendis/tally/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func validManifest() map[string]any {
	return map[string]any{
		"name":          "MotorVehicleLogbook",
		"product_kinds": []any{"Transactions", "DynamicReport"},
		"accepts":       `args.type == "void"`,
		"requires": []any{
			map[string]any{"name": "CombineOrdinaryTransactions", "kind": "BalancesAt", "args": "eofy"},
			map[string]any{"name": "DBBalances", "kind": "BalancesAt", "args": map[string]any{"type": "date", "date": "2025-06-30"}},
		},
		"after_init_graph": []any{"AllTransactionsExceptEarningsToEquity"},
		"transactions":     `[]`,
		"report": map[string]any{
			"title":    "Logbook",
			"sections": []any{map[string]any{"text": "Vehicle", "id": "vehicle", "account_kind": "drcr.asset"}},
			"formulas": []any{map[string]any{"text": "Total", "id": "total", "expr": `subtotal("vehicle")`, "heading": true}},
		},
	}
}

// --- ValidateManifest ---

func TestValidateManifest_Valid(t *testing.T) {
	v := newValidator(t)
	assert.NoError(t, v.ValidateManifest(validManifest()))

	minimal := map[string]any{"name": "Accrual", "product_kinds": []any{"Transactions"}, "transactions": "[]"}
	assert.NoError(t, v.ValidateManifest(minimal))
}

func TestValidateManifest_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"missing name", func(m map[string]any) { delete(m, "name") }},
		{"bad name", func(m map[string]any) { m["name"] = "1abc" }},
		{"balances kind not producible", func(m map[string]any) { m["product_kinds"] = []any{"BalancesAt"} }},
		{"report kind without transactions", func(m map[string]any) { m["product_kinds"] = []any{"DynamicReport"} }},
		{"report kind without template", func(m map[string]any) { delete(m, "report") }},
		{"unknown field", func(m map[string]any) { m["retry"] = 3 }},
		{"unknown require kind", func(m map[string]any) {
			m["requires"] = []any{map[string]any{"name": "X", "kind": "Ledger"}}
		}},
		{"unknown args keyword", func(m map[string]any) {
			m["requires"] = []any{map[string]any{"name": "X", "kind": "BalancesAt", "args": "tomorrow"}}
		}},
		{"date args without date", func(m map[string]any) {
			m["requires"] = []any{map[string]any{"name": "X", "kind": "BalancesAt", "args": map[string]any{"type": "date"}}}
		}},
		{"bad date", func(m map[string]any) {
			m["requires"] = []any{map[string]any{"name": "X", "kind": "BalancesAt", "args": map[string]any{"type": "date", "date": "30/06/2025"}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator(t)
			m := validManifest()
			tt.mutate(m)

			err := v.ValidateManifest(m)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
		})
	}
}

func TestValidateManifest_Nil(t *testing.T) {
	err := newValidator(t).ValidateManifest(nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestValidateManifest_ReportsViolations(t *testing.T) {
	m := validManifest()
	delete(m, "name")
	m["extra"] = true

	err := newValidator(t).ValidateManifest(m)
	var terr *schema.TallyError
	require.ErrorAs(t, err, &terr)
	violations, ok := terr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}

// --- ValidateRequest ---

func TestValidateRequest(t *testing.T) {
	v := newValidator(t)

	ok := `{"targets": [
		{"name": "BalanceSheet", "kind": "DynamicReport", "args": {"type": "multiple_dates", "dates": ["2025-06-30"]}},
		{"name": "DBTransactions", "kind": "Transactions"}
	], "eofy_date": "2025-06-30", "save": true}`
	assert.NoError(t, v.ValidateRequest([]byte(ok)))

	for name, raw := range map[string]string{
		"not json":       `{`,
		"no targets":     `{"targets": []}`,
		"bad kind":       `{"targets": [{"name": "X", "kind": "Report"}]}`,
		"range args":     `{"targets": [{"name": "X", "kind": "BalancesBetween", "args": {"type": "date_range", "start": "2025-01-01"}}]}`,
		"unknown option": `{"targets": [{"name": "X", "kind": "Transactions"}], "format": "pdf"}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, schema.IsCode(v.ValidateRequest([]byte(raw)), schema.ErrCodeValidation))
		})
	}
}

func TestValidator_Concurrent(t *testing.T) {
	v := newValidator(t)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.ValidateManifest(validManifest()))
		}()
	}
	wg.Wait()
}
