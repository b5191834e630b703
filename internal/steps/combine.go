package steps

import (
	"context"
	"fmt"
	"maps"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// combineOrdinaryTransactions joins the ledger transactions with the postings
// of unreconciled statement lines.
type combineOrdinaryTransactions struct {
	args schema.DateArgs
}

func (s *combineOrdinaryTransactions) ID() schema.StepID {
	return stepID(CombineOrdinaryTransactions, schema.KindTransactions, s.args)
}

func (s *combineOrdinaryTransactions) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{
		product(DBTransactions, schema.KindTransactions, schema.VoidArgs{}),
		product(PostUnreconciledStatementLines, schema.KindTransactions, schema.VoidArgs{}),
	}
}

func (s *combineOrdinaryTransactions) Execute(_ context.Context, _ *engine.Env, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	return combineTransactions(s.ID(), g, products)
}

// combineOrdinaryBalances sums the ledger balances and the balances of
// unreconciled statement lines at a date.
type combineOrdinaryBalances struct {
	args schema.DateArgs
}

func (s *combineOrdinaryBalances) ID() schema.StepID {
	return stepID(CombineOrdinaryTransactions, schema.KindBalancesAt, s.args)
}

func (s *combineOrdinaryBalances) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{
		product(DBBalances, schema.KindBalancesAt, s.args),
		product(PostUnreconciledStatementLines, schema.KindBalancesAt, s.args),
	}
}

func (s *combineOrdinaryBalances) Execute(_ context.Context, _ *engine.Env, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	balances := map[string]int64{}
	for _, dep := range g.DependenciesFor(s.ID()) {
		b, err := engine.BalancesAt(products, dep)
		if err != nil {
			return nil, err
		}
		for account, q := range b.Balances {
			balances[account] += q
		}
	}
	return engine.Single(s.ID().Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
}

// allTransactionsExceptEarnings is every transaction except the transfers of
// earnings to equity, including any transactions injected as dependencies.
type allTransactionsExceptEarnings struct {
	args schema.DateArgs
}

func (s *allTransactionsExceptEarnings) ID() schema.StepID {
	return stepID(AllTransactionsExceptEarningsToEquity, schema.KindTransactions, s.args)
}

func (s *allTransactionsExceptEarnings) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{product(CombineOrdinaryTransactions, schema.KindTransactions, s.args)}
}

func (s *allTransactionsExceptEarnings) Execute(_ context.Context, _ *engine.Env, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	return combineTransactions(s.ID(), g, products)
}

// allBalancesExceptEarnings forwards the balances of its preferred
// dependency. Steps that adjust balances inject themselves as later
// dependencies and so take precedence over the ordinary balances.
type allBalancesExceptEarnings struct {
	kind schema.ProductKind
	args schema.StepArgs
}

func (s *allBalancesExceptEarnings) ID() schema.StepID {
	return stepID(AllTransactionsExceptEarningsToEquity, s.kind, s.args)
}

func (s *allBalancesExceptEarnings) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{product(CombineOrdinaryTransactions, s.kind, s.args)}
}

func (s *allBalancesExceptEarnings) Execute(_ context.Context, _ *engine.Env, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	dep, ok := g.PreferredDependency(s.ID(), s.kind)
	if !ok {
		panic(fmt.Sprintf("%s has no %s dependency to forward", s.ID(), s.kind))
	}
	p, err := products.GetOrErr(dep)
	if err != nil {
		return nil, err
	}
	return engine.Single(s.ID().Product(s.kind), p.Clone()), nil
}

// allBalancesIncludingEarnings applies the current year and retained
// earnings transfers to the balances at a date.
type allBalancesIncludingEarnings struct {
	args schema.DateArgs
}

func (s *allBalancesIncludingEarnings) ID() schema.StepID {
	return stepID(AllTransactionsIncludingEarningsToEquity, schema.KindBalancesAt, s.args)
}

func (s *allBalancesIncludingEarnings) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{
		product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesAt, s.args),
		product(CurrentYearEarningsToEquity, schema.KindTransactions, s.args),
		product(RetainedEarningsToEquity, schema.KindTransactions, s.args),
	}
}

func (s *allBalancesIncludingEarnings) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	opening, err := engine.BalancesAt(products, product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesAt, s.args))
	if err != nil {
		return nil, err
	}
	balances := maps.Clone(opening.Balances)
	if balances == nil {
		balances = map[string]int64{}
	}
	for _, name := range []string{CurrentYearEarningsToEquity, RetainedEarningsToEquity} {
		txs, err := engine.Transactions(products, product(name, schema.KindTransactions, s.args))
		if err != nil {
			return nil, err
		}
		schema.UpdateBalancesFromTransactions(balances, txs.Transactions)
	}
	return engine.Single(s.ID().Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
}
