package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/tally/internal/store"
	"github.com/rendis/tally/pkg/schema"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", root.cfg.DBPath)
			return nil
		},
	}
}

// ledgerFile is the import format. JSON files are read as YAML.
type ledgerFile struct {
	Metadata struct {
		EOFYDate           string `yaml:"eofy_date"`
		ReportingCommodity string `yaml:"reporting_commodity"`
		AmountDPS          *int   `yaml:"amount_dps"`
	} `yaml:"metadata"`
	// Accounts maps account names to their kinds, e.g. drcr.asset.
	Accounts       map[string][]string `yaml:"accounts"`
	Transactions   []ledgerTransaction `yaml:"transactions"`
	StatementLines []ledgerLine        `yaml:"statement_lines"`
}

type ledgerTransaction struct {
	Date        string          `yaml:"date"`
	Description string          `yaml:"description"`
	Postings    []ledgerPosting `yaml:"postings"`
}

type ledgerPosting struct {
	Account        string `yaml:"account"`
	Quantity       int64  `yaml:"quantity"`
	Commodity      string `yaml:"commodity"`
	QuantityAsCost *int64 `yaml:"quantity_ascost"`
	Description    string `yaml:"description"`
}

type ledgerLine struct {
	SourceAccount string `yaml:"source_account"`
	Date          string `yaml:"date"`
	Description   string `yaml:"description"`
	Quantity      int64  `yaml:"quantity"`
	Balance       int64  `yaml:"balance"`
	Commodity     string `yaml:"commodity"`
}

// importSummary counts what an import wrote.
type importSummary struct {
	Transactions   int
	Accounts       int
	StatementLines int
}

func newImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <ledger.yaml>",
		Short: "Load transactions, account kinds and metadata into the ledger",
		Long: `Load a ledger file (YAML or JSON) into the database.

  metadata:
    eofy_date: "2025-06-30"
    reporting_commodity: $
    amount_dps: 2
  accounts:
    Bank: [drcr.asset]
    Salary: [drcr.income]
  transactions:
    - date: "2024-09-01"
      description: Pay
      postings:
        - {account: Bank, quantity: 80000, commodity: $}
        - {account: Salary, quantity: -80000, commodity: $}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var lf ledgerFile
			if err := yaml.Unmarshal(data, &lf); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := importLedger(cmd.Context(), a.store, &lf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d transactions, %d accounts, %d statement lines\n",
				sum.Transactions, sum.Accounts, sum.StatementLines)
			return nil
		},
	}
}

func importLedger(ctx context.Context, st store.Store, lf *ledgerFile) (importSummary, error) {
	var sum importSummary

	meta := map[string]string{
		store.MetaEOFYDate:           lf.Metadata.EOFYDate,
		store.MetaReportingCommodity: lf.Metadata.ReportingCommodity,
	}
	if lf.Metadata.AmountDPS != nil {
		meta[store.MetaAmountDPS] = strconv.Itoa(*lf.Metadata.AmountDPS)
	}
	for key, value := range meta {
		if value == "" {
			continue
		}
		if err := st.SetMetadata(ctx, key, value); err != nil {
			return sum, err
		}
	}

	for account, kinds := range lf.Accounts {
		for _, kind := range kinds {
			if err := st.SetAccountKind(ctx, account, kind); err != nil {
				return sum, err
			}
		}
		sum.Accounts++
	}

	for i, t := range lf.Transactions {
		dt, err := schema.ParseDate(t.Date)
		if err != nil {
			return sum, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		tx := &schema.TransactionWithPostings{
			Transaction: schema.Transaction{DT: dt.Time(), Description: t.Description},
		}
		for _, p := range t.Postings {
			posting := schema.Posting{
				Account:        p.Account,
				Quantity:       p.Quantity,
				Commodity:      p.Commodity,
				QuantityAsCost: p.QuantityAsCost,
			}
			if p.Description != "" {
				posting.Description = &p.Description
			}
			tx.Postings = append(tx.Postings, posting)
		}
		if _, err := st.InsertTransaction(ctx, tx); err != nil {
			return sum, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		sum.Transactions++
	}

	for i, l := range lf.StatementLines {
		dt, err := schema.ParseDate(l.Date)
		if err != nil {
			return sum, fmt.Errorf("statement line %d: %w", i+1, err)
		}
		if _, err := st.InsertStatementLine(ctx, &schema.StatementLine{
			SourceAccount: l.SourceAccount,
			DT:            dt.Time(),
			Description:   l.Description,
			Quantity:      l.Quantity,
			Balance:       l.Balance,
			Commodity:     l.Commodity,
		}); err != nil {
			return sum, fmt.Errorf("statement line %d: %w", i+1, err)
		}
		sum.StatementLines++
	}
	return sum, nil
}
