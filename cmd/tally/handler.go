package main

import (
	"net/http"
	"strconv"
	"sync/atomic"
)

// liveHandler serves through whichever API handler was installed last.
// Each install bumps the generation, reported to clients in X-Tally-Generation.
type liveHandler struct {
	current    atomic.Pointer[http.Handler]
	generation atomic.Uint64
}

func newLiveHandler(h http.Handler) *liveHandler {
	l := &liveHandler{}
	l.install(h)
	return l
}

// install replaces the handler and returns the new generation.
func (l *liveHandler) install(h http.Handler) uint64 {
	l.current.Store(&h)
	return l.generation.Add(1)
}

func (l *liveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := *l.current.Load()
	w.Header().Set("X-Tally-Generation", strconv.FormatUint(l.generation.Load(), 10))
	h.ServeHTTP(w, r)
}
