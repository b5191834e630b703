// Package store persists the ledger and generated report runs in a libSQL
// database.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	engine.LedgerReader

	// Ledger writes
	InsertTransaction(ctx context.Context, tx *schema.TransactionWithPostings) (int64, error)
	SetAccountKind(ctx context.Context, account, kind string) error
	InsertStatementLine(ctx context.Context, line *schema.StatementLine) (int64, error)
	Reconcile(ctx context.Context, statementLineID, postingID int64) error

	// Metadata
	Metadata(ctx context.Context) (Metadata, error)
	SetMetadata(ctx context.Context, key, value string) error

	// Report runs
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Metadata keys.
const (
	MetaEOFYDate           = "eofy_date"
	MetaReportingCommodity = "reporting_commodity"
	MetaAmountDPS          = "amount_dps"
)

// Metadata holds the ledger's reporting settings. Zero fields were not set.
type Metadata struct {
	EOFYDate           schema.Date `json:"eofy_date"`
	ReportingCommodity string      `json:"reporting_commodity,omitempty"`
	DPS                int         `json:"amount_dps,omitempty"`
}

// RunStatus is the outcome of a report run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one persisted generation of a set of targets.
type Run struct {
	ID       string             `json:"id"`
	Source   string             `json:"source"`
	EOFYDate schema.Date        `json:"eofy_date"`
	Targets  []schema.ProductID `json:"targets"`
	Status   RunStatus          `json:"status"`
	Error    string             `json:"error,omitempty"`
	// Products is the JSON array of generated target products.
	Products  json.RawMessage `json:"products,omitempty"`
	Steps     int             `json:"steps"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
}

// RunFilter narrows ListRuns. Runs are returned newest first.
type RunFilter struct {
	Source string
	Status RunStatus
	Limit  int
}
