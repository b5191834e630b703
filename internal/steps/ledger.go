package steps

import (
	"context"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// dbTransactions reads every transaction from the ledger.
type dbTransactions struct{}

func (*dbTransactions) ID() schema.StepID {
	return stepID(DBTransactions, schema.KindTransactions, schema.VoidArgs{})
}

func (s *dbTransactions) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, _ engine.ProductReader) (*engine.Products, error) {
	txs, err := env.DB.Transactions(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load transactions").WithCause(err)
	}
	return engine.Single(s.ID().Product(schema.KindTransactions), &schema.Transactions{Transactions: txs}), nil
}

// dbBalances reads account balances at a date from the ledger.
type dbBalances struct {
	args schema.DateArgs
}

func (s *dbBalances) ID() schema.StepID {
	return stepID(DBBalances, schema.KindBalancesAt, s.args)
}

func (s *dbBalances) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, _ engine.ProductReader) (*engine.Products, error) {
	balances, err := env.DB.Balances(ctx, s.args.Date)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load balances at %s", s.args.Date).WithCause(err)
	}
	if balances == nil {
		balances = map[string]int64{}
	}
	return engine.Single(s.ID().Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
}

// postUnreconciledStatementLines posts each unreconciled statement line
// against the unclassified debits or credits account.
type postUnreconciledStatementLines struct{}

func (*postUnreconciledStatementLines) ID() schema.StepID {
	return stepID(PostUnreconciledStatementLines, schema.KindTransactions, schema.VoidArgs{})
}

func (s *postUnreconciledStatementLines) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, _ engine.ProductReader) (*engine.Products, error) {
	lines, err := env.DB.UnreconciledStatementLines(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load unreconciled statement lines").WithCause(err)
	}

	txs := make([]schema.TransactionWithPostings, 0, len(lines))
	for _, line := range lines {
		unclassified := schema.UnclassifiedStatementLineDebits
		if line.Quantity < 0 {
			unclassified = schema.UnclassifiedStatementLineCredits
		}
		txs = append(txs, schema.TransactionWithPostings{
			Transaction: schema.Transaction{DT: line.DT, Description: line.Description},
			Postings: []schema.Posting{
				{Account: line.SourceAccount, Quantity: line.Quantity, Commodity: line.Commodity},
				{Account: unclassified, Quantity: -line.Quantity, Commodity: line.Commodity},
			},
		})
	}
	env.Log().DebugContext(ctx, "posted unreconciled statement lines", "lines", len(lines))
	return engine.Single(s.ID().Product(schema.KindTransactions), &schema.Transactions{Transactions: txs}), nil
}
