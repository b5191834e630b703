package mcp

import (
	"slices"
	"sync"

	"github.com/rendis/tally/internal/store"
)

// Notification levels an agent can ask for.
const (
	NotifyAll      = "all"
	NotifyFailures = "failures"
	NotifyNone     = "none"
)

type watch struct {
	session string
	level   string
}

// Watchers tracks which agents want run notifications, and on which MCP
// session they are reachable. An agent is watched from its latest tool call
// that carried agent_id.
type Watchers struct {
	mu     sync.RWMutex
	agents map[string]watch
}

func NewWatchers() *Watchers {
	return &Watchers{agents: make(map[string]watch)}
}

// Watch records agentID on sessionID at level. NotifyNone or an empty
// session forgets the agent; an unknown level means NotifyAll.
func (w *Watchers) Watch(agentID, sessionID, level string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if level == NotifyNone || sessionID == "" {
		delete(w.agents, agentID)
		return
	}
	if level != NotifyFailures {
		level = NotifyAll
	}
	w.agents[agentID] = watch{session: sessionID, level: level}
}

// Session returns the session agentID was last seen on.
func (w *Watchers) Session(agentID string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.agents[agentID]
	return a.session, ok
}

// For returns the agents to notify about run, sorted.
func (w *Watchers) For(run *store.Run) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []string
	for id, a := range w.agents {
		if a.level == NotifyFailures && run.Status != store.RunFailed {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Drop forgets every agent on sessionID.
func (w *Watchers) Drop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, a := range w.agents {
		if a.session == sessionID {
			delete(w.agents, id)
		}
	}
}
