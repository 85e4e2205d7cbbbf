package espresso

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultHistorySize is the number of snapshots kept.
	DefaultHistorySize = 8
	minHistorySize     = 2
	maxHistorySize     = 16
)

// History is a bounded, time-ordered ring of snapshots. The builder is the
// only writer; readers get copies.
type History struct {
	mu       sync.RWMutex
	buf      []Snapshot
	capacity int
	head     int // next write position
	count    int
}

// NewHistory returns a History of the given capacity, clamped to 2..16.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	if capacity < minHistorySize {
		capacity = minHistorySize
	}
	if capacity > maxHistorySize {
		capacity = maxHistorySize
	}
	return &History{buf: make([]Snapshot, capacity), capacity: capacity}
}

// Push appends s, evicting the oldest entry when full. Snapshots must be
// strictly newer than the latest entry.
func (h *History) Push(s Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count > 0 {
		latest := h.buf[(h.head-1+h.capacity)%h.capacity]
		if !s.Time.After(latest.Time) {
			return fmt.Errorf("snapshot at %s not after %s", s.Time.Format(time.RFC3339Nano), latest.Time.Format(time.RFC3339Nano))
		}
	}

	h.buf[h.head] = s
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
	return nil
}

// Latest returns the newest snapshot.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return Snapshot{}, false
	}
	return h.buf[(h.head-1+h.capacity)%h.capacity], true
}

// All returns the snapshots oldest first.
func (h *History) All() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Snapshot, h.count)
	// Oldest item is at (head - count) mod capacity
	start := (h.head - h.count + h.capacity) % h.capacity
	for i := 0; i < h.count; i++ {
		result[i] = h.buf[(start+i)%h.capacity]
	}
	return result
}

// Len returns the number of snapshots held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap returns the capacity.
func (h *History) Cap() int {
	return h.capacity
}

// Reset drops every snapshot.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = 0
	h.count = 0
}
