package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

type reportOptions struct {
	*rootOptions
	EOFY   string
	Format string
	Save   bool
}

func newReportCommand(root *rootOptions) *cobra.Command {
	opts := &reportOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "report <target>...",
		Short: "Generate report targets",
		Long: `Generate one or more targets from the ledger and print them.

Targets are written Name[.Kind][@args]. Kind defaults to DynamicReport.

Example:
  tally report BalanceSheet@2025-06-30,2024-06-30
  tally report IncomeStatement@ranges:2024-07-01..2025-06-30 --save
  tally report CombineOrdinaryTransactions.BalancesAt@2025-06-30 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}
			eofy, err := parseOptionalDate(opts.EOFY)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runner.Generate(cmd.Context(), runner.Request{
				Targets:  targets,
				EOFYDate: eofy,
				Source:   runner.SourceCLI,
				Save:     opts.Save,
			})
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), res.Entries(), opts.Format, res.Env.DPS)
		},
	}

	cmd.Flags().StringVar(&opts.EOFY, "eofy", "", "end of financial year override (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (text|json)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "save the run")
	return cmd
}

// writeEntries prints generated products. In text mode reports are rendered
// as tables and other products as indented JSON.
func writeEntries(w io.Writer, entries []engine.ProductEntry, format string, dps int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text":
		tr := report.TextRenderer{DPS: dps}
		for i, e := range entries {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if rep, ok := e.Product.(*report.Report); ok {
				if err := tr.Render(w, rep); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(w, "%s\n", e.ID)
			raw, err := json.MarshalIndent(e.Product, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", raw)
		}
		return nil
	default:
		return fmt.Errorf("invalid format %q: must be text or json", format)
	}
}

func parseTargets(args []string) ([]schema.ProductID, error) {
	targets := make([]schema.ProductID, len(args))
	for i, a := range args {
		t, err := schema.ParseTarget(a)
		if err != nil {
			return nil, err
		}
		targets[i] = t
	}
	return targets, nil
}

func parseOptionalDate(s string) (schema.Date, error) {
	if s == "" {
		return schema.Date{}, nil
	}
	return schema.ParseDate(s)
}
