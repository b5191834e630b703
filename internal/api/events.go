package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rendis/tally/internal/streaming"
	"github.com/rendis/tally/pkg/schema"
)

// handleEvents streams run events as Server-Sent Events until the client
// goes away. Query parameters run_id, type (repeatable), source and report
// narrow the stream; replay=true first sends recently finished runs.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, schema.NewError(schema.ErrCodeNotFound, "event streaming not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, schema.NewError(schema.ErrCodeExecution, "streaming not supported"))
		return
	}

	q := r.URL.Query()
	filter := streaming.Filter{
		RunID:  q.Get("run_id"),
		Source: q.Get("source"),
		Report: q.Get("report"),
		Replay: q.Get("replay") == "true",
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, streaming.EventType(t))
	}
	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
