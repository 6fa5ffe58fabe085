package orchestrator

import (
	"sync"

	"codeberg.org/werrin/pithermd/internal/event"
)

// eventRing is a bounded, insertion-ordered buffer of the most recent
// system events; the oldest entry is evicted first. The dispatcher
// writes from one goroutine while readers query concurrently.
type eventRing struct {
	mu      sync.RWMutex
	entries []event.SystemEvent
	size    int
}

func newEventRing(size int) *eventRing {
	return &eventRing{
		entries: make([]event.SystemEvent, 0, size),
		size:    size,
	}
}

func (r *eventRing) push(ev event.SystemEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.size {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = ev
	} else {
		r.entries = append(r.entries, ev)
	}
}

// recent returns the most recent limit entries in chronological order.
// A non-positive limit returns everything retained.
func (r *eventRing) recent(limit int) []event.SystemEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}

	return append([]event.SystemEvent(nil), r.entries[len(r.entries)-limit:]...)
}

func (r *eventRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
