package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/tally/internal/store"
)

type runsOptions struct {
	*rootOptions
	Source string
	Status string
	Limit  int
	Format string
}

func newRunsCommand(root *rootOptions) *cobra.Command {
	opts := &runsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List saved report runs, or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := a.runner.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", b)
				return nil
			}

			runs, err := a.runner.Runs(cmd.Context(), store.RunFilter{
				Source: opts.Source,
				Status: store.RunStatus(opts.Status),
				Limit:  opts.Limit,
			})
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSOURCE\tSTATUS\tSTEPS\tTARGETS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, r.Status, r.Steps, len(r.Targets))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "only runs from this source (cli|api|mcp|schedule)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (completed|failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (text|json)")
	return cmd
}

func newStepsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the registered steps and dynamic builders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			desc := a.runner.Registry().Describe()
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tPRODUCT KINDS")
			for _, l := range desc.Lookups {
				fmt.Fprintf(tw, "%s\t%v\n", l.Name, l.Kinds)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out, "\nbuilders (tried in order):")
			for _, b := range desc.Builders {
				fmt.Fprintf(out, "  %s\n", b)
			}
			return nil
		},
	}
}
