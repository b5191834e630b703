package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/schema"
)

const testLedger = `
metadata:
  eofy_date: "2025-06-30"
  reporting_commodity: $
  amount_dps: 2
accounts:
  Bank: [drcr.asset]
  Capital: [drcr.equity]
  Salary: [drcr.income]
  Rent: [drcr.expense]
transactions:
  - date: "2023-07-10"
    description: Opening
    postings:
      - {account: Bank, quantity: 100000, commodity: $}
      - {account: Capital, quantity: -100000, commodity: $}
  - date: "2024-09-01"
    description: Pay
    postings:
      - {account: Bank, quantity: 80000, commodity: $}
      - {account: Salary, quantity: -80000, commodity: $, description: September}
  - date: "2025-01-15"
    description: Rent
    postings:
      - {account: Rent, quantity: 30000, commodity: $}
      - {account: Bank, quantity: -30000, commodity: $}
statement_lines:
  - {source_account: Bank, date: "2024-09-01", description: PAY, quantity: 80000, balance: 180000, commodity: $}
`

func TestImportLedger(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	var lf ledgerFile
	require.NoError(t, yaml.Unmarshal([]byte(testLedger), &lf))

	sum, err := importLedger(ctx, st, &lf)
	require.NoError(t, err)
	assert.Equal(t, importSummary{Transactions: 3, Accounts: 4, StatementLines: 1}, sum)

	meta, err := st.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.MustParseDate("2025-06-30"), meta.EOFYDate)
	assert.Equal(t, "$", meta.ReportingCommodity)
	assert.Equal(t, 2, meta.DPS)

	txs, err := st.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "Opening", txs[0].Transaction.Description)
	require.Len(t, txs[1].Postings, 2)

	kinds, err := st.AccountConfigurations(ctx)
	require.NoError(t, err)
	assert.Len(t, kinds, 4)

	lines, err := st.UnreconciledStatementLines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "PAY", lines[0].Description)
}

func TestImportLedger_BadDate(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	lf := &ledgerFile{Transactions: []ledgerTransaction{{Date: "yesterday"}}}
	_, err = importLedger(ctx, st, lf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction 1")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_ImportThenReport(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	db := filepath.Join(dir, "books", "ledger.db")
	file := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testLedger), 0o644))

	out, err := runCLI(t, "--db", db, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 transactions, 4 accounts, 1 statement lines")

	out, err = runCLI(t, "--db", db, "report", "IncomeStatement@ranges:2024-07-01..2025-06-30")
	require.NoError(t, err)
	assert.Contains(t, out, "Income statement")

	out, err = runCLI(t, "--db", db, "report", "IncomeStatement@ranges:2024-07-01..2025-06-30", "--save", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id"`)

	out, err = runCLI(t, "--db", db, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")

	out, err = runCLI(t, "--db", db, "plan", "IncomeStatement@ranges:2024-07-01..2025-06-30", "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
}

func TestCLI_ReportUnknownTarget(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "ledger.db")

	_, err := runCLI(t, "--db", db, "report", "NoSuchReport@2025-06-30", "--eofy", "2025-06-30")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNoStepForProduct))
}

func TestImportLedger_Example(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	data, err := os.ReadFile(filepath.Join("..", "..", "examples", "ledger.yaml"))
	require.NoError(t, err)
	var lf ledgerFile
	require.NoError(t, yaml.Unmarshal(data, &lf))

	sum, err := importLedger(ctx, st, &lf)
	require.NoError(t, err)
	assert.Equal(t, importSummary{Transactions: 6, Accounts: 7, StatementLines: 2}, sum)
}
