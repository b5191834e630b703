// Package streaming fans report run progress out to live subscribers.
package streaming

import (
	"context"
	"time"

	"github.com/rendis/tally/pkg/schema"
)

// EventType is what happened to a run.
type EventType string

const (
	RunStarted   EventType = "run.started"
	RunCompleted EventType = "run.completed"
	RunFailed    EventType = "run.failed"
)

// Finished reports whether t ends a run.
func (t EventType) Finished() bool { return t == RunCompleted || t == RunFailed }

// RunEvent is a report run starting or finishing.
type RunEvent struct {
	Type     EventType          `json:"type"`
	RunID    string             `json:"run_id"`
	Source   string             `json:"source,omitempty"`
	EOFYDate schema.Date        `json:"eofy_date"`
	Targets  []schema.ProductID `json:"targets"`
	At       time.Time          `json:"at"`
	// Outcome is set once the run has finished.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Outcome summarises a finished run.
type Outcome struct {
	Steps     int           `json:"steps"`
	Duration  time.Duration `json:"duration_ns"`
	Saved     bool          `json:"saved"`
	Error     string        `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
}

// Reports returns the distinct target names of the run, in target order.
func (e RunEvent) Reports() []string {
	var out []string
	seen := make(map[string]bool, len(e.Targets))
	for _, t := range e.Targets {
		if !seen[t.Name] {
			seen[t.Name] = true
			out = append(out, t.Name)
		}
	}
	return out
}

// Filter selects the events a subscriber receives. Empty fields match all.
type Filter struct {
	RunID  string      `json:"run_id,omitempty"`
	Types  []EventType `json:"types,omitempty"`
	Source string      `json:"source,omitempty"`
	// Report keeps runs with a target of this name, e.g. BalanceSheet.
	Report string `json:"report,omitempty"`
	// Replay first delivers the recently finished runs that match.
	Replay bool `json:"replay,omitempty"`
}

// Hub is a pub/sub channel for run events.
type Hub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter Filter) (<-chan RunEvent, func(), error)
}
