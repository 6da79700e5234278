package db

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// Recorder is a planner.DecisionSink that writes every decision to the
// database. Write failures are logged and counted; they never stall the
// planning loop.
type Recorder struct {
	db      *DB
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder returns a Recorder backed by db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// HandleDecision implements planner.DecisionSink.
func (r *Recorder) HandleDecision(ctx context.Context, d planner.Decision) {
	if d.RunID == "" {
		r.failed.Add(1)
		opsf("dropping cycle %d: no run id", d.Cycle)
		return
	}
	if err := r.db.RecordDecision(ctx, d); err != nil {
		if n := r.failed.Add(1); n == 1 || n%100 == 0 {
			opsf("failed to record decision (run %s, %d failures): %v", d.RunID, n, err)
		}
		return
	}
	r.written.Add(1)
}

// Stats returns the number of decisions written and dropped.
func (r *Recorder) Stats() (written, failed uint64) {
	return r.written.Load(), r.failed.Load()
}
