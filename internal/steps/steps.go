// Package steps implements the bookkeeping steps: database reads, the
// combination of ordinary transactions, earnings transfers to equity, and the
// balance sheet, income statement and trial balance reports.
package steps

import (
	"slices"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// Step names.
const (
	AllTransactionsExceptEarningsToEquity    = "AllTransactionsExceptEarningsToEquity"
	AllTransactionsIncludingEarningsToEquity = "AllTransactionsIncludingEarningsToEquity"
	BalanceSheet                             = "BalanceSheet"
	CombineOrdinaryTransactions              = "CombineOrdinaryTransactions"
	CurrentYearEarningsToEquity              = "CurrentYearEarningsToEquity"
	DBBalances                               = "DBBalances"
	DBTransactions                           = "DBTransactions"
	IncomeStatement                          = "IncomeStatement"
	PostUnreconciledStatementLines           = "PostUnreconciledStatementLines"
	RetainedEarningsToEquity                 = "RetainedEarningsToEquity"
	TrialBalance                             = "TrialBalance"
)

var (
	transactionsKind    = []schema.ProductKind{schema.KindTransactions}
	balancesAtKind      = []schema.ProductKind{schema.KindBalancesAt}
	balancesBetweenKind = []schema.ProductKind{schema.KindBalancesBetween}
	reportKind          = []schema.ProductKind{schema.KindDynamicReport}
)

// Register adds a lookup for every bookkeeping step to rb.
func Register(rb *engine.RegistryBuilder) *engine.RegistryBuilder {
	acceptDate := engine.AcceptArgs(schema.ArgsDate)
	acceptVoid := engine.AcceptArgs(schema.ArgsVoid)

	return rb.
		RegisterLookup(AllTransactionsExceptEarningsToEquity, transactionsKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &allTransactionsExceptEarnings{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(AllTransactionsExceptEarningsToEquity, balancesAtKind, engine.AcceptAnyArgs,
			func(args schema.StepArgs) engine.Step {
				return &allBalancesExceptEarnings{kind: schema.KindBalancesAt, args: args}
			}).
		RegisterLookup(AllTransactionsExceptEarningsToEquity, balancesBetweenKind, engine.AcceptAnyArgs,
			func(args schema.StepArgs) engine.Step {
				return &allBalancesExceptEarnings{kind: schema.KindBalancesBetween, args: args}
			}).
		RegisterLookup(AllTransactionsIncludingEarningsToEquity, balancesAtKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &allBalancesIncludingEarnings{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(BalanceSheet, reportKind, engine.AcceptArgs(schema.ArgsMultipleDates),
			func(args schema.StepArgs) engine.Step {
				return &balanceSheet{args: args.(schema.MultipleDateArgs)}
			}).
		RegisterLookup(CombineOrdinaryTransactions, transactionsKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &combineOrdinaryTransactions{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(CombineOrdinaryTransactions, balancesAtKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &combineOrdinaryBalances{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(CurrentYearEarningsToEquity, transactionsKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &currentYearEarnings{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(DBBalances, balancesAtKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &dbBalances{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(DBTransactions, transactionsKind, acceptVoid,
			func(schema.StepArgs) engine.Step { return &dbTransactions{} }).
		RegisterLookup(IncomeStatement, reportKind, engine.AcceptArgs(schema.ArgsMultipleDateRanges),
			func(args schema.StepArgs) engine.Step {
				return &incomeStatement{args: args.(schema.MultipleDateRangeArgs)}
			}).
		RegisterLookup(PostUnreconciledStatementLines, transactionsKind, acceptVoid,
			func(schema.StepArgs) engine.Step { return &postUnreconciledStatementLines{} }).
		RegisterLookup(RetainedEarningsToEquity, transactionsKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &retainedEarnings{args: args.(schema.DateArgs)}
			}).
		RegisterLookup(TrialBalance, reportKind, acceptDate,
			func(args schema.StepArgs) engine.Step {
				return &trialBalance{args: args.(schema.DateArgs)}
			})
}

// NewRegistry returns a registry holding only the bookkeeping steps.
func NewRegistry() *engine.Registry {
	return Register(engine.NewRegistryBuilder()).Build()
}

func stepID(name string, kind schema.ProductKind, args schema.StepArgs) schema.StepID {
	return schema.StepID{Name: name, Kinds: []schema.ProductKind{kind}, Args: args}
}

func product(name string, kind schema.ProductKind, args schema.StepArgs) schema.ProductID {
	return schema.ProductID{Name: name, Kind: kind, Args: args}
}

// combineTransactions concatenates the transactions of every dependency of
// id, in declaration order.
func combineTransactions(id schema.StepID, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	var out []schema.TransactionWithPostings
	for _, dep := range g.DependenciesFor(id) {
		txs, err := engine.Transactions(products, dep)
		if err != nil {
			return nil, err
		}
		out = append(out, txs.Transactions...)
	}
	if out == nil {
		out = []schema.TransactionWithPostings{}
	}
	return engine.Single(id.Product(schema.KindTransactions), &schema.Transactions{Transactions: out}), nil
}

// sortedAccounts returns the accounts of balances in name order.
func sortedAccounts(balances map[string]int64) []string {
	accounts := make([]string, 0, len(balances))
	for a := range balances {
		accounts = append(accounts, a)
	}
	slices.Sort(accounts)
	return accounts
}

func isIncomeOrExpense(kinds []string) bool {
	return slices.Contains(kinds, schema.AccountKindIncome) || slices.Contains(kinds, schema.AccountKindExpense)
}
