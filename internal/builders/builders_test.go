package builders

import (
	"context"
	"testing"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

var (
	eofy      = schema.MustParseDate("2025-06-30")
	lastEOFY  = schema.MustParseDate("2024-06-30")
	yearRange = schema.DateRangeArgs{Start: schema.MustParseDate("2024-07-01"), End: eofy}
)

type fnStep struct {
	id       schema.StepID
	requires []schema.ProductID
	run      func(products engine.ProductReader) (*engine.Products, error)
}

func (s *fnStep) ID() schema.StepID                         { return s.id }
func (s *fnStep) Requires(*engine.Env) []schema.ProductID { return s.requires }

func (s *fnStep) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	if s.run != nil {
		return s.run(products)
	}
	out := engine.NewProducts()
	for _, k := range s.id.Kinds {
		out.Insert(s.id.Product(k), &schema.Generic{})
	}
	return out, nil
}

// sink is a target step that only pulls in its requirements.
func sink(requires ...schema.ProductID) engine.Step {
	return &fnStep{
		id:       schema.StepID{Name: "Sink", Kinds: []schema.ProductKind{schema.KindGeneric}, Args: schema.VoidArgs{}},
		requires: requires,
	}
}

func tx(date string, postings ...schema.Posting) schema.TransactionWithPostings {
	return schema.TransactionWithPostings{
		Transaction: schema.Transaction{DT: schema.MustParseDate(date).Time(), Description: "test"},
		Postings:    postings,
	}
}

func posting(account string, q int64) schema.Posting {
	return schema.Posting{Account: account, Quantity: q, Commodity: "$"}
}

func txStep(name string, args schema.StepArgs, requires []schema.ProductID, txs func(engine.ProductReader) ([]schema.TransactionWithPostings, error)) engine.Step {
	id := schema.StepID{Name: name, Kinds: []schema.ProductKind{schema.KindTransactions}, Args: args}
	return &fnStep{
		id:       id,
		requires: requires,
		run: func(products engine.ProductReader) (*engine.Products, error) {
			out, err := txs(products)
			if err != nil {
				return nil, err
			}
			return engine.Single(id.Product(schema.KindTransactions), &schema.Transactions{Transactions: out}), nil
		},
	}
}

// ledgerRegistry registers:
//   - Ledger: Transactions with no dependencies
//   - Base: BalancesAt by date, 400 in X up to last EOFY and 1000 after
//   - Adjust: Transactions depending on Base's BalancesAt at EOFY
//   - Tax: Transactions taking 10% of X's movement in the year
func ledgerRegistry() *engine.Registry {
	rb := engine.NewRegistryBuilder().
		RegisterLookup("Ledger", []schema.ProductKind{schema.KindTransactions}, engine.AcceptArgs(schema.ArgsVoid),
			func(args schema.StepArgs) engine.Step {
				return txStep("Ledger", args, nil, func(engine.ProductReader) ([]schema.TransactionWithPostings, error) {
					return []schema.TransactionWithPostings{
						tx("2025-06-01", posting("AccountX", 500), posting("AccountY", -500)),
						tx("2025-08-01", posting("AccountX", 7), posting("AccountY", -7)),
					}, nil
				})
			}).
		RegisterLookup("Base", []schema.ProductKind{schema.KindBalancesAt}, engine.AcceptArgs(schema.ArgsDate),
			func(args schema.StepArgs) engine.Step {
				date := args.(schema.DateArgs).Date
				id := schema.StepID{Name: "Base", Kinds: []schema.ProductKind{schema.KindBalancesAt}, Args: args}
				return &fnStep{id: id, run: func(engine.ProductReader) (*engine.Products, error) {
					balances := map[string]int64{"X": 1000}
					if !date.After(lastEOFY) {
						balances["X"] = 400
					}
					return engine.Single(id.Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
				}}
			}).
		RegisterLookup("Adjust", []schema.ProductKind{schema.KindTransactions}, engine.AcceptArgs(schema.ArgsVoid),
			func(args schema.StepArgs) engine.Step {
				return txStep("Adjust", args,
					[]schema.ProductID{balancesAt("Base", eofy)},
					func(engine.ProductReader) ([]schema.TransactionWithPostings, error) {
						return []schema.TransactionWithPostings{
							tx("2025-06-30", posting("X", 10), posting("Y", -10)),
							tx("2025-07-15", posting("X", 1), posting("Y", -1)),
						}, nil
					})
			}).
		RegisterLookup("Tax", []schema.ProductKind{schema.KindTransactions}, engine.AcceptArgs(schema.ArgsVoid),
			func(args schema.StepArgs) engine.Step {
				base := schema.ProductID{Name: "Base", Kind: schema.KindBalancesBetween, Args: yearRange}
				return txStep("Tax", args, []schema.ProductID{base},
					func(products engine.ProductReader) ([]schema.TransactionWithPostings, error) {
						movement, err := engine.BalancesBetween(products, base)
						if err != nil {
							return nil, err
						}
						tax := movement.Balances["X"] / 10
						return []schema.TransactionWithPostings{
							tx("2025-06-30", posting("X", -tax), posting("TaxPayable", tax)),
						}, nil
					})
			})
	return Register(rb).Build()
}

func generate(t *testing.T, targets ...schema.ProductID) *engine.Products {
	t.Helper()
	eng := engine.New(ledgerRegistry(), engine.ExecutorConfig{})
	products, err := eng.GenerateReport(context.Background(), []engine.Step{sink(targets...)}, &engine.Env{EOFYDate: eofy})
	require.NoError(t, err)
	return products
}

// --- Tests ---

func TestRegister_Order(t *testing.T) {
	desc := Register(engine.NewRegistryBuilder()).Build().Describe()
	assert.Equal(t, []string{
		GenerateBalancesName,
		UpdateBalancesBetweenName,
		UpdateBalancesAtName,
		BalancesAtToBalancesBetweenName,
	}, desc.Builders)
}

func TestGenerateBalances_FoldsTransactionsUpToDate(t *testing.T) {
	target := balancesAt("Ledger", eofy)
	products := generate(t, target)

	balances, err := products.BalancesAt(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"AccountX": 500, "AccountY": -500}, balances.Balances)
}

func TestGenerateBalances_CanBuild(t *testing.T) {
	reg := ledgerRegistry()
	g := engine.NewGraph(reg)
	env := &engine.Env{}
	b := GenerateBalances()

	assert.True(t, b.CanBuild(balancesAt("Ledger", eofy), g, env))
	assert.False(t, b.CanBuild(schema.ProductID{Name: "Ledger", Kind: schema.KindBalancesAt, Args: schema.VoidArgs{}}, g, env),
		"balances need a date")
	assert.False(t, b.CanBuild(schema.ProductID{Name: "Ledger", Kind: schema.KindBalancesBetween, Args: yearRange}, g, env))
	assert.False(t, b.CanBuild(balancesAt("Adjust", eofy), g, env), "Adjust has dependencies")
	assert.False(t, b.CanBuild(balancesAt("Missing", eofy), g, env))
}

func TestUpdateBalancesAt_FromOpeningBalancesAt(t *testing.T) {
	target := balancesAt("Adjust", eofy)
	products := generate(t, schema.ProductID{Name: "Adjust", Kind: schema.KindTransactions, Args: schema.VoidArgs{}}, target)

	balances, err := products.BalancesAt(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 1010, "Y": -10}, balances.Balances)
}

func TestUpdateBalancesAt_FromBalancesBetween(t *testing.T) {
	target := balancesAt("Tax", eofy)
	products := generate(t, schema.ProductID{Name: "Tax", Kind: schema.KindTransactions, Args: schema.VoidArgs{}}, target)

	movement, err := products.BalancesBetween(schema.ProductID{Name: "Base", Kind: schema.KindBalancesBetween, Args: yearRange})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 600}, movement.Balances)

	balances, err := products.BalancesAt(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 940, "TaxPayable": 60}, balances.Balances)
}

func TestUpdateBalancesBetween(t *testing.T) {
	target := schema.ProductID{Name: "Tax", Kind: schema.KindBalancesBetween, Args: yearRange}
	products := generate(t, schema.ProductID{Name: "Tax", Kind: schema.KindTransactions, Args: schema.VoidArgs{}}, target)

	balances, err := products.BalancesBetween(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 540, "TaxPayable": 60}, balances.Balances)
}

func TestUpdateBalancesBetween_DifferentRangeAddsOpening(t *testing.T) {
	reg := ledgerRegistry()
	targets := []engine.Step{sink(
		schema.ProductID{Name: "Tax", Kind: schema.KindTransactions, Args: schema.VoidArgs{}},
	)}
	g, err := engine.Resolve(reg, targets, &engine.Env{})
	require.NoError(t, err)

	other := schema.DateRangeArgs{Start: schema.MustParseDate("2025-01-01"), End: eofy}
	s, ok := updateBetweenSource(schema.ProductID{Name: "Tax", Kind: schema.KindBalancesBetween, Args: other}, g)
	require.True(t, ok)
	s.InitGraph(g, &engine.Env{})

	deps := g.DependenciesFor(s.ID())
	require.Len(t, deps, 2)
	assert.Equal(t, schema.KindTransactions, deps[0].Kind)
	assert.True(t, deps[1].Equal(schema.ProductID{Name: "Base", Kind: schema.KindBalancesBetween, Args: other}))
}

func TestUpdateBalancesAt_RequiresSingleDependency(t *testing.T) {
	multi := &fnStep{
		id:       schema.StepID{Name: "Multi", Kinds: []schema.ProductKind{schema.KindTransactions}, Args: schema.VoidArgs{}},
		requires: []schema.ProductID{balancesAt("Base", eofy), balancesAt("Base", lastEOFY)},
	}
	g, err := engine.Resolve(ledgerRegistry(), []engine.Step{multi}, &engine.Env{})
	require.NoError(t, err)

	assert.False(t, UpdateBalancesAt().CanBuild(balancesAt("Multi", eofy), g, &engine.Env{}))
	assert.True(t, UpdateBalancesAt().CanBuild(balancesAt("Adjust", eofy), mustResolveAdjust(t), &engine.Env{}))
}

func mustResolveAdjust(t *testing.T) *engine.Graph {
	t.Helper()
	g, err := engine.Resolve(ledgerRegistry(), []engine.Step{
		sink(schema.ProductID{Name: "Adjust", Kind: schema.KindTransactions, Args: schema.VoidArgs{}}),
	}, &engine.Env{})
	require.NoError(t, err)
	return g
}

func TestBalancesAtToBalancesBetween(t *testing.T) {
	target := schema.ProductID{Name: "Base", Kind: schema.KindBalancesBetween, Args: yearRange}
	products := generate(t, target)

	balances, err := products.BalancesBetween(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 600}, balances.Balances)

	_, ok := products.Get(balancesAt("Base", lastEOFY))
	assert.True(t, ok, "opening balances come from the day before the range")
}
