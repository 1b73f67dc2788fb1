// Package history keeps a bounded log of the most recent compute cycles
// for display.
package history

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept.
const DefaultCapacity = 50

// Entry is one logged cycle.
type Entry struct {
	Index   int           `json:"index"`
	Latency time.Duration `json:"latency_ns"`
	IsJank  bool          `json:"is_jank"`
}

// History is a FIFO log capped at a fixed capacity.
type History struct {
	mu       sync.RWMutex
	capacity int
	next     int
	entries  []Entry
}

// New creates a history holding at most capacity entries.
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity+1),
	}
}

// Append assigns the next index to the cycle, pushes it to the tail and
// drops the oldest entries beyond capacity.
func (h *History) Append(latency time.Duration, isJank bool) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	e := Entry{Index: h.next, Latency: latency, IsJank: isJank}

	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}

	return e
}

// Entries returns a copy of the log, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Capacity returns the maximum number of entries.
func (h *History) Capacity() int {
	return h.capacity
}
