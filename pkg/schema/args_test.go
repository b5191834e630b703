package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsEqual_SameVariantSameFields(t *testing.T) {
	d := MustParseDate("2025-06-30")

	assert.True(t, ArgsEqual(VoidArgs{}, VoidArgs{}))
	assert.True(t, ArgsEqual(DateArgs{Date: d}, DateArgs{Date: d}))
	assert.True(t, ArgsEqual(
		NewMultipleDateArgs(d, d.AddDays(-365)),
		NewMultipleDateArgs(d, d.AddDays(-365)),
	))
	assert.True(t, ArgsEqual(
		CustomArgs{Type: "fx", Params: map[string]string{"a": "1", "b": "2"}},
		CustomArgs{Type: "fx", Params: map[string]string{"b": "2", "a": "1"}},
	))
}

func TestArgsEqual_DifferentVariantOrFields(t *testing.T) {
	d := MustParseDate("2025-06-30")

	assert.False(t, ArgsEqual(VoidArgs{}, DateArgs{Date: d}))
	assert.False(t, ArgsEqual(DateArgs{Date: d}, DateArgs{Date: d.AddDays(1)}))
	assert.False(t, ArgsEqual(
		DateRangeArgs{Start: d, End: d},
		NewMultipleDateRangeArgs(DateRangeArgs{Start: d, End: d}),
	))
	assert.False(t, ArgsEqual(nil, VoidArgs{}))
	assert.True(t, ArgsEqual(nil, nil))
}

func TestArgsEqual_CustomSeparatorsInValues(t *testing.T) {
	tests := []struct {
		name string
		a, b CustomArgs
	}{
		{
			"separator in value",
			CustomArgs{Type: "T", Params: map[string]string{"a": "1,b=2"}},
			CustomArgs{Type: "T", Params: map[string]string{"a": "1", "b": "2"}},
		},
		{
			"equals sign in name",
			CustomArgs{Type: "T", Params: map[string]string{"a=1": ""}},
			CustomArgs{Type: "T", Params: map[string]string{"a": "1="}},
		},
		{
			"brace in type",
			CustomArgs{Type: "T{a=1}", Params: nil},
			CustomArgs{Type: "T", Params: map[string]string{"a": "1}"}},
		},
		{
			"quote in value",
			CustomArgs{Type: "T", Params: map[string]string{"a": `1","b"="2`}},
			CustomArgs{Type: "T", Params: map[string]string{"a": "1", "b": "2"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, ArgsEqual(tt.a, tt.b))
			assert.NotEqual(t,
				ProductID{Name: "X", Kind: KindGeneric, Args: tt.a}.Key(),
				ProductID{Name: "X", Kind: KindGeneric, Args: tt.b}.Key())
		})
	}
}

func TestArgs_String(t *testing.T) {
	a := MustParseDate("2024-07-01")
	b := MustParseDate("2025-06-30")

	assert.Equal(t, "", VoidArgs{}.String())
	assert.Equal(t, "2025-06-30", DateArgs{Date: b}.String())
	assert.Equal(t, "2024-07-01, 2025-06-30", DateRangeArgs{Start: a, End: b}.String())
	assert.Equal(t, "(2024-07-01, 2025-06-30)",
		NewMultipleDateRangeArgs(DateRangeArgs{Start: a, End: b}).String())
	assert.Equal(t, "fx{a=1, b=2}", CustomArgs{Type: "fx", Params: map[string]string{"b": "2", "a": "1"}}.String())
}

func TestMarshalArgs_PreservesVariant(t *testing.T) {
	a := MustParseDate("2024-07-01")
	b := MustParseDate("2025-06-30")

	cases := []StepArgs{
		VoidArgs{},
		DateArgs{Date: b},
		DateRangeArgs{Start: a, End: b},
		NewMultipleDateArgs(a, b),
		NewMultipleDateRangeArgs(DateRangeArgs{Start: a, End: b}),
		CustomArgs{Type: "fx", Params: map[string]string{"rate": "1.5"}},
	}
	for _, in := range cases {
		t.Run(string(in.ArgsKind()), func(t *testing.T) {
			data, err := MarshalArgs(in)
			require.NoError(t, err)
			out, err := UnmarshalArgs(data)
			require.NoError(t, err)
			assert.True(t, ArgsEqual(in, out), "got %s", out.Key())
		})
	}
}

func TestUnmarshalArgs_Invalid(t *testing.T) {
	_, err := UnmarshalArgs([]byte(`{"type":"date"}`))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeValidation))

	_, err = UnmarshalArgs([]byte(`{"type":"weekly"}`))
	require.Error(t, err)
}

func TestStepID_Produces(t *testing.T) {
	d := MustParseDate("2025-06-30")
	id := StepID{Name: "CalculateIncomeTax", Kinds: []ProductKind{KindDynamicReport, KindTransactions}, Args: VoidArgs{}}

	assert.True(t, id.Produces(ProductID{Name: "CalculateIncomeTax", Kind: KindTransactions, Args: VoidArgs{}}))
	assert.True(t, id.Produces(ProductID{Name: "CalculateIncomeTax", Kind: KindDynamicReport}))
	assert.False(t, id.Produces(ProductID{Name: "CalculateIncomeTax", Kind: KindBalancesAt, Args: VoidArgs{}}))
	assert.False(t, id.Produces(ProductID{Name: "CalculateIncomeTax", Kind: KindTransactions, Args: DateArgs{Date: d}}))
	assert.False(t, id.Produces(ProductID{Name: "Other", Kind: KindTransactions, Args: VoidArgs{}}))
}

func TestProductID_JSON(t *testing.T) {
	in := ProductID{Name: "BalanceSheet", Kind: KindDynamicReport, Args: NewMultipleDateArgs(MustParseDate("2025-06-30"))}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"BalanceSheet","kind":"DynamicReport","args":{"type":"multiple_dates","dates":["2025-06-30"]}}`, string(data))

	var out ProductID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Equal(out))
	assert.Equal(t, in.Key(), out.Key())
}

func TestProductID_String(t *testing.T) {
	p := ProductID{Name: "DBBalances", Kind: KindBalancesAt, Args: DateArgs{Date: MustParseDate("2025-06-30")}}
	assert.Equal(t, "DBBalances.BalancesAt(2025-06-30)", p.String())
}
