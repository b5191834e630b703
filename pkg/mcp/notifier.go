package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/tally/internal/store"
)

// AgentNotifier pushes notifications to connected agents.
type AgentNotifier interface {
	Notify(ctx context.Context, agentID string, payload map[string]any) error
}

// MCPNotifier sends notifications/message to watching agents' sessions.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	watchers  *Watchers
}

func NewMCPNotifier(mcpServer *server.MCPServer, watchers *Watchers) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, watchers: watchers}
}

// Notify pushes payload to the agent's session. An agent that is not
// watching, or whose session has gone, is skipped without error.
func (n *MCPNotifier) Notify(_ context.Context, agentID string, payload map[string]any) error {
	sessionID, ok := n.watchers.Session(agentID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.watchers.Drop(sessionID)
		return nil
	}
	return err
}

// NotifyRun tells the agents watching run that it finished.
func (n *MCPNotifier) NotifyRun(ctx context.Context, run *store.Run) error {
	var errs []error
	for _, agentID := range n.watchers.For(run) {
		if err := n.Notify(ctx, agentID, runPayload(run)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runPayload(run *store.Run) map[string]any {
	level := "info"
	if run.Status == store.RunFailed {
		level = "error"
	}
	data := map[string]any{
		"event":  "run_finished",
		"run_id": run.ID,
		"source": run.Source,
		"status": string(run.Status),
		"steps":  run.Steps,
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	return map[string]any{"level": level, "logger": "tally", "data": data}
}
