package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/tally/pkg/schema"
)

// dtLayout is how timestamps are stored. SQLite's DATE() understands it.
const dtLayout = "2006-01-02 15:04:05.000000"

// LibSQLStore implements Store on libSQL (an embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens the database at dbPath, a file URI such as
// "file:/path/to/ledger.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return a row, so they go through QueryRow.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}
	return &LibSQLStore{db: db}, nil
}

// NewWithDB wraps an open database handle.
func NewWithDB(db *sql.DB) *LibSQLStore { return &LibSQLStore{db: db} }

func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies pending migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Ledger reads ---

// Balances sums the postings of every account up to and including date.
// Postings carrying a cost are counted at cost.
func (s *LibSQLStore) Balances(ctx context.Context, date schema.Date) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.account, SUM(COALESCE(p.quantity_ascost, p.quantity))
		 FROM postings p JOIN transactions t ON t.id = p.transaction_id
		 WHERE DATE(t.dt) <= DATE(?)
		 GROUP BY p.account`, date.String())
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	balances := map[string]int64{}
	for rows.Next() {
		var account string
		var q int64
		if err := rows.Scan(&account, &q); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances[account] = q
	}
	return balances, rows.Err()
}

// Transactions returns every transaction with its postings, ordered by date.
func (s *LibSQLStore) Transactions(ctx context.Context) ([]schema.TransactionWithPostings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.dt, t.description, p.id, p.description, p.account, p.quantity, p.commodity, p.quantity_ascost
		 FROM transactions t JOIN postings p ON p.transaction_id = t.id
		 ORDER BY t.dt, t.id, p.id`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []schema.TransactionWithPostings
	for rows.Next() {
		var (
			txID, postingID int64
			dt              dbTime
			desc            dbText
			postingDesc     sql.NullString
			p               schema.Posting
			asCost          sql.NullInt64
		)
		if err := rows.Scan(&txID, &dt, &desc, &postingID, &postingDesc, &p.Account, &p.Quantity, &p.Commodity, &asCost); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		p.ID = &postingID
		p.TransactionID = &txID
		if postingDesc.Valid {
			p.Description = &postingDesc.String
		}
		if asCost.Valid {
			p.QuantityAsCost = &asCost.Int64
		}

		if n := len(out); n == 0 || *out[n-1].Transaction.ID != txID {
			id := txID
			out = append(out, schema.TransactionWithPostings{
				Transaction: schema.Transaction{ID: &id, DT: dt.Time, Description: string(desc)},
			})
		}
		last := &out[len(out)-1]
		last.Postings = append(last.Postings, p)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) AccountConfigurations(ctx context.Context) ([]schema.AccountConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, account, kind, data FROM account_configurations ORDER BY account, kind`)
	if err != nil {
		return nil, fmt.Errorf("query account configurations: %w", err)
	}
	defer rows.Close()

	var out []schema.AccountConfiguration
	for rows.Next() {
		var (
			c    schema.AccountConfiguration
			id   int64
			data sql.NullString
		)
		if err := rows.Scan(&id, &c.Account, &c.Kind, &data); err != nil {
			return nil, fmt.Errorf("scan account configuration: %w", err)
		}
		c.ID = &id
		if data.Valid {
			c.Data = &data.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UnreconciledStatementLines returns the statement lines with no
// reconciliation, ordered by date.
func (s *LibSQLStore) UnreconciledStatementLines(ctx context.Context) ([]schema.StatementLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l.source_account, l.dt, l.description, l.quantity, l.balance, l.commodity
		 FROM statement_lines l
		 WHERE NOT EXISTS (SELECT 1 FROM statement_line_reconciliations r WHERE r.statement_line_id = l.id)
		 ORDER BY l.dt, l.id`)
	if err != nil {
		return nil, fmt.Errorf("query statement lines: %w", err)
	}
	defer rows.Close()

	var out []schema.StatementLine
	for rows.Next() {
		var (
			line schema.StatementLine
			id   int64
			dt   dbTime
			desc dbText
		)
		if err := rows.Scan(&id, &line.SourceAccount, &dt, &desc, &line.Quantity, &line.Balance, &line.Commodity); err != nil {
			return nil, fmt.Errorf("scan statement line: %w", err)
		}
		line.ID = &id
		line.DT = dt.Time
		line.Description = string(desc)
		out = append(out, line)
	}
	return out, rows.Err()
}

// --- Ledger writes ---

// InsertTransaction stores tx and its postings and sets their ids. The
// postings must balance.
func (s *LibSQLStore) InsertTransaction(ctx context.Context, tx *schema.TransactionWithPostings) (int64, error) {
	var sum int64
	for _, p := range tx.Postings {
		if p.QuantityAsCost != nil {
			sum += *p.QuantityAsCost
		} else {
			sum += p.Quantity
		}
	}
	if sum != 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "transaction %q does not balance: off by %d", tx.Transaction.Description, sum)
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	res, err := dbtx.ExecContext(ctx, `INSERT INTO transactions (dt, description) VALUES (?, ?)`,
		formatDT(tx.Transaction.DT), tx.Transaction.Description)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	txID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i := range tx.Postings {
		p := &tx.Postings[i]
		res, err := dbtx.ExecContext(ctx,
			`INSERT INTO postings (transaction_id, description, account, quantity, commodity, quantity_ascost) VALUES (?, ?, ?, ?, ?, ?)`,
			txID, nullStrPtr(p.Description), p.Account, p.Quantity, p.Commodity, nullInt64Ptr(p.QuantityAsCost))
		if err != nil {
			return 0, fmt.Errorf("insert posting: %w", err)
		}
		postingID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		p.ID = &postingID
		p.TransactionID = &txID
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	tx.Transaction.ID = &txID
	return txID, nil
}

// SetAccountKind tags account with kind. Tagging twice is a no-op.
func (s *LibSQLStore) SetAccountKind(ctx context.Context, account, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account_configurations (account, kind) VALUES (?, ?) ON CONFLICT(account, kind) DO NOTHING`,
		account, kind)
	if err != nil {
		return fmt.Errorf("set account kind: %w", err)
	}
	return nil
}

func (s *LibSQLStore) InsertStatementLine(ctx context.Context, line *schema.StatementLine) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO statement_lines (source_account, dt, description, quantity, balance, commodity) VALUES (?, ?, ?, ?, ?, ?)`,
		line.SourceAccount, formatDT(line.DT), line.Description, line.Quantity, line.Balance, line.Commodity)
	if err != nil {
		return 0, fmt.Errorf("insert statement line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	line.ID = &id
	return id, nil
}

// Reconcile links a statement line to the posting that accounts for it.
func (s *LibSQLStore) Reconcile(ctx context.Context, statementLineID, postingID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statement_line_reconciliations (statement_line_id, posting_id) VALUES (?, ?)`,
		statementLineID, postingID)
	if err != nil {
		return fmt.Errorf("reconcile statement line %d: %w", statementLineID, err)
	}
	return nil
}

// --- Metadata ---

func (s *LibSQLStore) Metadata(ctx context.Context) (Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE key IN (?, ?, ?)`,
		MetaEOFYDate, MetaReportingCommodity, MetaAmountDPS)
	if err != nil {
		return Metadata{}, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	var m Metadata
	for rows.Next() {
		var (
			key   string
			value dbText
		)
		if err := rows.Scan(&key, &value); err != nil {
			return Metadata{}, fmt.Errorf("scan metadata: %w", err)
		}
		switch key {
		case MetaEOFYDate:
			if m.EOFYDate, err = schema.ParseDate(string(value)); err != nil {
				return Metadata{}, fmt.Errorf("metadata %s: %w", key, err)
			}
		case MetaReportingCommodity:
			m.ReportingCommodity = string(value)
		case MetaAmountDPS:
			if m.DPS, err = strconv.Atoi(string(value)); err != nil {
				return Metadata{}, fmt.Errorf("metadata %s: %w", key, err)
			}
		}
	}
	return m, rows.Err()
}

func (s *LibSQLStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// --- Report runs ---

// SaveRun inserts run, or replaces the run with the same id.
func (s *LibSQLStore) SaveRun(ctx context.Context, run *Run) error {
	targets, err := json.Marshal(run.Targets)
	if err != nil {
		return fmt.Errorf("marshal run targets: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO report_runs (id, source, eofy_date, targets, status, error, products, steps, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET source=excluded.source, eofy_date=excluded.eofy_date, targets=excluded.targets,
		   status=excluded.status, error=excluded.error, products=excluded.products, steps=excluded.steps,
		   started_at=excluded.started_at, duration_ms=excluded.duration_ms`,
		run.ID, run.Source, run.EOFYDate.String(), string(targets), string(run.Status), nullStr(run.Error),
		nullRaw(run.Products), run.Steps, formatDT(run.StartedAt), run.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, source, eofy_date, targets, status, error, products, steps, started_at, duration_ms`

// GetRun returns the run with its products.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM report_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	return run, err
}

// ListRuns returns runs newest first, without their products.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + strings.Replace(runColumns, "products", "NULL", 1) + ` FROM report_runs`
	var (
		where []string
		args  []any
	)
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run              Run
		eofy, started    dbTime
		targets, status  string
		errMsg, products sql.NullString
		durationMS       int64
	)
	if err := row.Scan(&run.ID, &run.Source, &eofy, &targets, &status, &errMsg, &products, &run.Steps, &started, &durationMS); err != nil {
		return nil, err
	}

	run.EOFYDate = eofy.CalendarDate()
	if err := json.Unmarshal([]byte(targets), &run.Targets); err != nil {
		return nil, fmt.Errorf("run %s targets: %w", run.ID, err)
	}
	run.StartedAt = started.Time
	run.Status = RunStatus(status)
	run.Error = errMsg.String
	if products.Valid && products.String != "" {
		run.Products = json.RawMessage(products.String)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// --- Helpers ---

func formatDT(t time.Time) string { return t.UTC().Format(dtLayout) }

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func nullStrPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64Ptr(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

var _ Store = (*LibSQLStore)(nil)
