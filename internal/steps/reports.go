package steps

import (
	"context"
	"slices"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

// balanceSheet reports assets, liabilities and equity at each date.
type balanceSheet struct {
	args schema.MultipleDateArgs
}

func (s *balanceSheet) ID() schema.StepID {
	return stepID(BalanceSheet, schema.KindDynamicReport, s.args)
}

func (s *balanceSheet) Requires(*engine.Env) []schema.ProductID {
	out := make([]schema.ProductID, len(s.args.Dates))
	for i, d := range s.args.Dates {
		out[i] = product(AllTransactionsIncludingEarningsToEquity, schema.KindBalancesAt, d)
	}
	return out
}

func (s *balanceSheet) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	balances := make([]map[string]int64, len(s.args.Dates))
	columns := make([]string, len(s.args.Dates))
	for i, d := range s.args.Dates {
		b, err := engine.BalancesAt(products, product(AllTransactionsIncludingEarningsToEquity, schema.KindBalancesAt, d))
		if err != nil {
			return nil, err
		}
		balances[i] = b.Balances
		columns[i] = d.Date.String()
	}

	kinds, err := env.KindsForAccount(ctx)
	if err != nil {
		return nil, err
	}

	r := report.New("Balance sheet", columns,
		totalledSection("Assets", "total_assets", "Total assets",
			report.EntriesForKind(schema.AccountKindAsset, false, balances, kinds), len(columns)),
		report.Spacer{},
		totalledSection("Liabilities", "total_liabilities", "Total liabilities",
			report.EntriesForKind(schema.AccountKindLiability, true, balances, kinds), len(columns)),
		report.Spacer{},
		totalledSection("Equity", "total_equity", "Total equity",
			report.EntriesForKind(schema.AccountKindEquity, true, balances, kinds), len(columns)),
	)
	return engine.Single(s.ID().Product(schema.KindDynamicReport), r), nil
}

// incomeStatement reports income and expenses over each date range.
type incomeStatement struct {
	args schema.MultipleDateRangeArgs
}

func (s *incomeStatement) ID() schema.StepID {
	return stepID(IncomeStatement, schema.KindDynamicReport, s.args)
}

func (s *incomeStatement) Requires(*engine.Env) []schema.ProductID {
	out := make([]schema.ProductID, len(s.args.Dates))
	for i, d := range s.args.Dates {
		out[i] = product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesBetween, d)
	}
	return out
}

func (s *incomeStatement) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	balances := make([]map[string]int64, len(s.args.Dates))
	columns := make([]string, len(s.args.Dates))
	for i, d := range s.args.Dates {
		b, err := engine.BalancesBetween(products, product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesBetween, d))
		if err != nil {
			return nil, err
		}
		balances[i] = b.Balances
		columns[i] = d.End.String()
	}

	kinds, err := env.KindsForAccount(ctx)
	if err != nil {
		return nil, err
	}

	income := totalledSection("Income", "total_income", "Total income",
		report.EntriesForKind(schema.AccountKindIncome, true, balances, kinds), len(columns))
	expenses := totalledSection("Expenses", "total_expenses", "Total expenses",
		report.EntriesForKind(schema.AccountKindExpense, false, balances, kinds), len(columns))

	totalIncome := income.Entries[len(income.Entries)-1].(*report.Row).Quantity
	totalExpenses := expenses.Entries[len(expenses.Entries)-1].(*report.Row).Quantity
	net := make([]int64, len(columns))
	for i := range net {
		net[i] = totalIncome[i] - totalExpenses[i]
	}

	r := report.New("Income statement", columns,
		income,
		report.Spacer{},
		expenses,
		report.Spacer{},
		&report.Row{
			Text:     "Net surplus (deficit)",
			Quantity: net,
			ID:       "net_surplus",
			Visible:  true,
			Heading:  true,
			Bordered: true,
		},
	)
	return engine.Single(s.ID().Product(schema.KindDynamicReport), r), nil
}

// trialBalance lists every account balance at a date as a debit or credit.
type trialBalance struct {
	args schema.DateArgs
}

func (s *trialBalance) ID() schema.StepID {
	return stepID(TrialBalance, schema.KindDynamicReport, s.args)
}

func (s *trialBalance) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{product(AllTransactionsExceptEarningsToEquity, schema.KindBalancesAt, s.args)}
}

func (s *trialBalance) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	b, err := engine.BalancesAt(products, s.Requires(nil)[0])
	if err != nil {
		return nil, err
	}

	accounts := &report.Section{ID: "accounts", Visible: true}
	for _, account := range sortedAccounts(b.Balances) {
		balance := b.Balances[account]
		accounts.Entries = append(accounts.Entries, &report.Row{
			Text:     account,
			Quantity: []int64{max(balance, 0), max(-balance, 0)},
			Visible:  true,
			Link:     "/transactions/" + account,
		})
	}

	r := report.New("Trial balance", []string{"Dr", "Cr"},
		accounts,
		&report.Row{
			Text:     "Totals",
			Quantity: accounts.Subtotal(2),
			ID:       "totals",
			Visible:  true,
			Heading:  true,
			Bordered: true,
		},
	)
	return engine.Single(s.ID().Product(schema.KindDynamicReport), r), nil
}

// totalledSection returns a section of entries followed by a bordered total row.
func totalledSection(text, totalID, totalText string, entries []report.Entry, columns int) *report.Section {
	section := &report.Section{Text: text, Visible: true, Entries: slices.Clip(entries)}
	section.Entries = append(section.Entries, &report.Row{
		Text:     totalText,
		Quantity: section.Subtotal(columns),
		ID:       totalID,
		Visible:  true,
		Heading:  true,
		Bordered: true,
	})
	return section
}
