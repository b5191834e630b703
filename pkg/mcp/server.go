package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/tally/internal/expressions"
	"github.com/rendis/tally/internal/runner"
)

// TallyServerDeps holds the dependencies for creating a TallyServer.
type TallyServerDeps struct {
	Runner *runner.Runner
	// JQ evaluates tally.query programs. Defaults to a fresh engine.
	JQ     *expressions.GoJQEngine
	Logger *slog.Logger
}

// TallyServer wraps an MCP server with the report tool handlers.
type TallyServer struct {
	runner    *runner.Runner
	jq        *expressions.GoJQEngine
	logger    *slog.Logger
	watchers  *Watchers
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewTallyServer creates a TallyServer with all tools registered.
func NewTallyServer(deps TallyServerDeps) *TallyServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	jq := deps.JQ
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}

	s := &TallyServer{
		runner:   deps.Runner,
		jq:       jq,
		logger:   logger,
		watchers: NewWatchers(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.watchers.Drop(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"tally",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Tally generates bookkeeping reports from a ledger. Use tally.steps to list what can be produced, tally.plan to see the steps a target needs, tally.generate to produce reports, tally.runs to browse saved runs and tally.query to filter a saved run's products with jq."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.watchers)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *TallyServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
// Agents connected this way receive run notifications.
func (s *TallyServer) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp sse server listening", slog.String("addr", addr))
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return sse.Shutdown(shutdownCtx)
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *TallyServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Notifier returns the notifier that pushes to connected agents.
func (s *TallyServer) Notifier() *MCPNotifier {
	return s.notifier
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *TallyServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: planTool(), Handler: s.handlePlan},
		{Tool: stepsTool(), Handler: s.handleSteps},
		{Tool: runsTool(), Handler: s.handleRuns},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

const targetsHelp = "Targets as Name[.Kind][@args], e.g. IncomeStatement@ranges:2024-07-01..2025-06-30 or TrialBalance@2025-06-30. Kind defaults to DynamicReport"

func generateTool() mcp.Tool {
	return mcp.NewTool("tally.generate",
		mcp.WithDescription("Generate report targets from the ledger"),
		mcp.WithArray("targets", mcp.Required(), mcp.WithStringItems(), mcp.Description(targetsHelp)),
		mcp.WithString("eofy_date", mcp.Description("End of financial year override (YYYY-MM-DD)")),
		mcp.WithBoolean("save", mcp.Description("Save the run so it can be listed and queried later")),
		mcp.WithString("format",
			mcp.Enum("json", "text"),
			mcp.Description("Output format: json (products) or text (rendered reports). Default json"),
		),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent. Registers it for run notifications over SSE")),
		mcp.WithString("notify", mcp.Enum(NotifyAll, NotifyFailures, NotifyNone),
			mcp.Description("Which finished scheduled runs to be notified about (default all)")),
	)
}

func planTool() mcp.Tool {
	return mcp.NewTool("tally.plan",
		mcp.WithDescription("Show the steps needed to generate targets, in execution order"),
		mcp.WithArray("targets", mcp.Required(), mcp.WithStringItems(), mcp.Description(targetsHelp)),
		mcp.WithString("eofy_date", mcp.Description("End of financial year override (YYYY-MM-DD)")),
		mcp.WithString("format",
			mcp.Enum("json", "ascii", "mermaid", "image"),
			mcp.Description("Output format: json, ascii (text), mermaid (flowchart syntax) or image (PNG). Default json"),
		),
	)
}

func stepsTool() mcp.Tool {
	return mcp.NewTool("tally.steps",
		mcp.WithDescription("List the registered steps and dynamic builders"),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("tally.runs",
		mcp.WithDescription("List saved report runs, or fetch one with its products"),
		mcp.WithString("run_id", mcp.Description("Fetch this run including its products")),
		mcp.WithString("source", mcp.Enum("cli", "api", "mcp", "schedule"), mcp.Description("Only runs from this source")),
		mcp.WithString("status", mcp.Enum("completed", "failed"), mcp.Description("Only runs with this status")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent. Registers it for run notifications over SSE")),
		mcp.WithString("notify", mcp.Enum(NotifyAll, NotifyFailures, NotifyNone),
			mcp.Description("Which finished scheduled runs to be notified about (default all)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("tally.query",
		mcp.WithDescription("Filter the products of a saved run with a jq program"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of a completed, saved run")),
		mcp.WithString("expression", mcp.Required(), mcp.Description(`jq program over the run's products, an array of {"id", "product"}`)),
	)
}
