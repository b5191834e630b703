package streaming

import (
	"context"
	"slices"
	"sync"
)

const (
	subscriberBuffer = 64
	// historySize is how many finished runs MemoryHub keeps for Replay.
	historySize = 32
)

type subscriber struct {
	events chan RunEvent
	filter Filter
}

// MemoryHub is an in-process Hub. It remembers the last historySize
// finished runs so late subscribers can catch up.
type MemoryHub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	history []RunEvent
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[*subscriber]struct{})}
}

// Publish delivers event to every matching subscriber without blocking. A
// subscriber whose buffer is full misses the event.
func (h *MemoryHub) Publish(ctx context.Context, event RunEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if event.Type.Finished() {
		if len(h.history) == historySize {
			h.history = slices.Delete(h.history, 0, 1)
		}
		h.history = append(h.history, event)
	}
	for sub := range h.subs {
		sub.offer(event)
	}
	return nil
}

// Subscribe registers a subscriber and, with filter.Replay, queues the
// matching finished runs oldest first. The returned func unsubscribes; the
// channel is never closed.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan RunEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sub := &subscriber{events: make(chan RunEvent, subscriberBuffer), filter: filter}

	h.mu.Lock()
	if filter.Replay {
		for _, e := range h.history {
			sub.offer(e)
		}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}, nil
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *subscriber) offer(e RunEvent) {
	if !s.filter.matches(e) {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

func (f Filter) matches(e RunEvent) bool {
	switch {
	case f.RunID != "" && f.RunID != e.RunID:
		return false
	case f.Source != "" && f.Source != e.Source:
		return false
	case len(f.Types) > 0 && !slices.Contains(f.Types, e.Type):
		return false
	case f.Report != "" && !slices.Contains(e.Reports(), f.Report):
		return false
	}
	return true
}
