package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tallymcp "github.com/rendis/tally/pkg/mcp"
)

type mcpOptions struct {
	*rootOptions
	SSE bool
}

func newMCPCommand(root *rootOptions) *cobra.Command {
	opts := &mcpOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Long: `Serve tally.generate, tally.plan, tally.query, tally.steps and tally.runs
to MCP clients. stdio by default; --sse serves on mcp_addr instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := tallymcp.NewTallyServer(tallymcp.TallyServerDeps{Runner: a.runner, Logger: a.logger})
			if opts.SSE {
				return srv.ServeSSE(ctx, opts.cfg.MCPAddr, opts.cfg.BaseURL)
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&opts.SSE, "sse", false, "serve over SSE on mcp_addr instead of stdio")
	return cmd
}
