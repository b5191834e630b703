package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/tally/internal/expressions"
	"github.com/rendis/tally/internal/runner"
	"github.com/rendis/tally/internal/store"
)

type queryOptions struct {
	*rootOptions
	RunID string
	EOFY  string
	Raw   bool
}

func newQueryCommand(root *rootOptions) *cobra.Command {
	opts := &queryOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "query <jq-program> [target]...",
		Short: "Filter generated products with jq",
		Long: `Run a jq program over generated products, an array of {"id", "product"}.

The products come from a saved run (--run) or are generated from the given
targets without saving.

Example:
  tally query '.[].product.entries[] | select(.id == "net_surplus")' IncomeStatement@ranges:2024-07-01..2025-06-30
  tally query '.[0].product.title' --run 3f2c...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program := args[0]
			if opts.RunID == "" && len(args) < 2 {
				return fmt.Errorf("give targets or --run")
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var data any
			if opts.RunID != "" {
				run, err := a.runner.GetRun(cmd.Context(), opts.RunID)
				if err != nil {
					return err
				}
				if run.Status != store.RunCompleted {
					return fmt.Errorf("run %s %s: %s", run.ID, run.Status, run.Error)
				}
				if err := json.Unmarshal(run.Products, &data); err != nil {
					return fmt.Errorf("decode run products: %w", err)
				}
			} else {
				targets, err := parseTargets(args[1:])
				if err != nil {
					return err
				}
				eofy, err := parseOptionalDate(opts.EOFY)
				if err != nil {
					return err
				}
				res, err := a.runner.Generate(cmd.Context(), runner.Request{Targets: targets, EOFYDate: eofy, Source: runner.SourceCLI})
				if err != nil {
					return err
				}
				if data, err = expressions.ToJQ(res.Entries()); err != nil {
					return err
				}
			}

			results, err := expressions.NewGoJQEngine().EvaluateAll(cmd.Context(), program, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				if s, ok := r.(string); ok && opts.Raw {
					fmt.Fprintln(out, s)
					continue
				}
				b, err := json.MarshalIndent(r, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", b)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "query the products of this saved run")
	cmd.Flags().StringVar(&opts.EOFY, "eofy", "", "end of financial year override (YYYY-MM-DD)")
	cmd.Flags().BoolVarP(&opts.Raw, "raw-output", "r", false, "print strings without quotes")
	return cmd
}
