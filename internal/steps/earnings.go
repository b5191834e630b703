package steps

import (
	"context"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// currentYearEarnings transfers the income and expense movements of the
// financial year to date into Current Year Earnings.
type currentYearEarnings struct {
	args schema.DateArgs
}

func (s *currentYearEarnings) ID() schema.StepID {
	return stepID(CurrentYearEarningsToEquity, schema.KindTransactions, s.args)
}

func (s *currentYearEarnings) movement(env *engine.Env) schema.ProductID {
	sofy := schema.SOFYFromEOFY(schema.EOFYFor(s.args.Date, env.EOFYDate))
	return product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesBetween,
		schema.DateRangeArgs{Start: sofy, End: s.args.Date})
}

func (s *currentYearEarnings) Requires(env *engine.Env) []schema.ProductID {
	return []schema.ProductID{s.movement(env)}
}

func (s *currentYearEarnings) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	movement, err := engine.BalancesBetween(products, s.movement(env))
	if err != nil {
		return nil, err
	}
	txs, err := earningsTransfers(ctx, env, movement.Balances, s.args.Date, "Current year earnings", schema.CurrentYearEarnings)
	if err != nil {
		return nil, err
	}
	return engine.Single(s.ID().Product(schema.KindTransactions), &schema.Transactions{Transactions: txs}), nil
}

// retainedEarnings transfers the income and expense balances at the end of
// the previous financial year into Retained Earnings.
type retainedEarnings struct {
	args schema.DateArgs
}

func (s *retainedEarnings) ID() schema.StepID {
	return stepID(RetainedEarningsToEquity, schema.KindTransactions, s.args)
}

func (s *retainedEarnings) lastEOFY(env *engine.Env) schema.Date {
	return schema.LastEOFY(s.args.Date, env.EOFYDate)
}

func (s *retainedEarnings) Requires(env *engine.Env) []schema.ProductID {
	return []schema.ProductID{
		product(CombineOrdinaryTransactions, schema.KindBalancesAt, schema.DateArgs{Date: s.lastEOFY(env)}),
	}
}

func (s *retainedEarnings) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	lastEOFY := s.lastEOFY(env)
	balances, err := engine.BalancesAt(products, product(CombineOrdinaryTransactions, schema.KindBalancesAt, schema.DateArgs{Date: lastEOFY}))
	if err != nil {
		return nil, err
	}
	txs, err := earningsTransfers(ctx, env, balances.Balances, lastEOFY, "Retained earnings", schema.RetainedEarnings)
	if err != nil {
		return nil, err
	}
	return engine.Single(s.ID().Product(schema.KindTransactions), &schema.Transactions{Transactions: txs}), nil
}

// earningsTransfers returns one transaction per income or expense account in
// balances, moving its balance into equity.
func earningsTransfers(ctx context.Context, env *engine.Env, balances map[string]int64, date schema.Date, description, equity string) ([]schema.TransactionWithPostings, error) {
	kinds, err := env.KindsForAccount(ctx)
	if err != nil {
		return nil, err
	}

	txs := []schema.TransactionWithPostings{}
	for _, account := range sortedAccounts(balances) {
		if !isIncomeOrExpense(kinds[account]) {
			continue
		}
		balance := balances[account]
		txs = append(txs, schema.TransactionWithPostings{
			Transaction: schema.Transaction{DT: date.Time(), Description: description},
			Postings: []schema.Posting{
				{Account: account, Quantity: -balance, Commodity: env.ReportingCommodity},
				{Account: equity, Quantity: balance, Commodity: env.ReportingCommodity},
			},
		})
	}
	return txs, nil
}
