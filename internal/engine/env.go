package engine

import (
	"context"
	"log/slog"

	"github.com/rendis/tally/pkg/schema"
)

// LedgerReader is the read side of the bookkeeping database.
type LedgerReader interface {
	// Balances returns the balance of every account as at the end of date.
	Balances(ctx context.Context, date schema.Date) (map[string]int64, error)
	Transactions(ctx context.Context) ([]schema.TransactionWithPostings, error)
	AccountConfigurations(ctx context.Context) ([]schema.AccountConfiguration, error)
	UnreconciledStatementLines(ctx context.Context) ([]schema.StatementLine, error)
}

// Env carries the settings and data source shared by every step of a run.
type Env struct {
	EOFYDate           schema.Date
	ReportingCommodity string
	DPS                int
	DB                 LedgerReader
	Logger             *slog.Logger
}

// Log returns env.Logger, or the default logger when unset.
func (e *Env) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// KindsForAccount loads the account configurations, including the system
// accounts, and returns each account's kinds.
func (e *Env) KindsForAccount(ctx context.Context) (map[string][]string, error) {
	configs, err := e.DB.AccountConfigurations(ctx)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load account configurations").WithCause(err)
	}
	configs = append(configs, schema.SystemAccountConfigurations()...)
	return schema.KindsForAccount(configs), nil
}
