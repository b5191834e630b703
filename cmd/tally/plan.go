package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/tally/internal/diagram"
)

type planOptions struct {
	*rootOptions
	EOFY   string
	Format string
	Out    string
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	opts := &planOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "plan <target>...",
		Short: "Show the steps needed to generate targets",
		Long: `Resolve targets against the registry and print the scheduled steps
without running them.

Formats: json, ascii, mermaid, dot, svg and png. png requires --out.`,
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
			if opts.Format == "png" && opts.Out == "" {
				return fmt.Errorf("png output requires --out")
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.runner.Plan(cmd.Context(), targets, eofy)
			if err != nil {
				return err
			}

			var out []byte
			if opts.Format == "json" {
				out, err = json.MarshalIndent(plan.Describe(), "", "  ")
				if err != nil {
					return err
				}
				out = append(out, '\n')
			} else {
				model, err := diagram.Build(strings.Join(args, ", "), plan, nil)
				if err != nil {
					return err
				}
				switch opts.Format {
				case "ascii":
					out = []byte(diagram.RenderASCII(model))
				case "mermaid":
					out = []byte(diagram.RenderMermaid(model))
				case "dot":
					out, err = diagram.RenderDOT(cmd.Context(), model)
				case "svg":
					out, err = diagram.RenderSVG(cmd.Context(), model)
				case "png":
					out, err = diagram.RenderImage(cmd.Context(), model)
				default:
					return fmt.Errorf("invalid format %q: must be json, ascii, mermaid, dot, svg or png", opts.Format)
				}
				if err != nil {
					return err
				}
			}

			if opts.Out != "" {
				return os.WriteFile(opts.Out, out, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.EOFY, "eofy", "", "end of financial year override (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "ascii", "output format (json|ascii|mermaid|dot|svg|png)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}
