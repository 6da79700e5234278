// Package monitor keeps recent planner decisions in memory and renders them
// as HTML charts and PNG plots.
package monitor

import (
	"context"
	"sync"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// DefaultHistorySize is the number of decisions kept by NewHistory(0).
const DefaultHistorySize = 600

// History is a bounded ring of recent decisions. It is a
// planner.DecisionSink and is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	buf   []planner.Decision
	next  int
	full  bool
	total uint64
}

// NewHistory returns a ring holding the last size decisions.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]planner.Decision, size)}
}

// HandleDecision implements planner.DecisionSink.
func (h *History) HandleDecision(_ context.Context, d planner.Decision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = d
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
	h.total++
}

// Latest returns the most recent decision.
func (h *History) Latest() (planner.Decision, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.total == 0 {
		return planner.Decision{}, false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.buf) - 1
	}
	return h.buf[i], true
}

// Snapshot returns the held decisions, oldest first.
func (h *History) Snapshot() []planner.Decision {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]planner.Decision(nil), h.buf[:h.next]...)
	}
	out := make([]planner.Decision, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// Len returns the number of decisions held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Total returns the number of decisions ever received.
func (h *History) Total() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}
