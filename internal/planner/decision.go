package planner

import (
	"context"
	"time"

	"github.com/banshee-data/highway.planner/internal/cost"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// Candidate is one successor state considered during a cycle.
type Candidate struct {
	State      vehicle.ManeuverState `json:"state"`
	Feasible   bool                  `json:"feasible"`
	Lane       int                   `json:"lane"`
	Speed      float64               `json:"speed,omitempty"`
	Accel      float64               `json:"accel,omitempty"`
	Evaluation cost.Evaluation       `json:"evaluation"`
}

// Decision is the outcome of one arbitration. Values are copies and safe to
// hand to other goroutines.
type Decision struct {
	RunID    string                `json:"run_id,omitempty"`
	Cycle    int                   `json:"cycle"`
	Time     time.Time             `json:"time"`
	Previous vehicle.ManeuverState `json:"previous"`
	State    vehicle.ManeuverState `json:"state"`
	Fallback bool                  `json:"fallback,omitempty"`

	// Committed ego state. S and D are the positions the decision was made
	// from; ProjectedS is where the chosen trajectory ends.
	Lane        int     `json:"lane"`
	S           float64 `json:"s"`
	D           float64 `json:"d"`
	ProjectedS  float64 `json:"projected_s"`
	Speed       float64 `json:"speed"`
	Accel       float64 `json:"accel"`
	TargetSpeed float64 `json:"target_speed"`
	Total       float64 `json:"total_cost"`

	Vehicles   int                `json:"vehicles"`
	Duration   time.Duration      `json:"duration_ns"`
	Candidates []Candidate        `json:"candidates"`
	Trajectory vehicle.Trajectory `json:"-"`
}

// Chosen returns the candidate that was selected, if it was evaluated.
func (d Decision) Chosen() (Candidate, bool) {
	for _, c := range d.Candidates {
		if c.Feasible && c.State == d.State {
			return c, true
		}
	}
	return Candidate{}, false
}

// LaneChanged reports whether the decision moved the ego to another lane.
func (d Decision) LaneChanged() bool {
	return d.Trajectory.Start().Lane != d.Trajectory.End().Lane
}

// DecisionSink receives every decision a Planner commits.
type DecisionSink interface {
	HandleDecision(ctx context.Context, d Decision)
}

// SinkFunc adapts a function to DecisionSink.
type SinkFunc func(ctx context.Context, d Decision)

// HandleDecision calls f.
func (f SinkFunc) HandleDecision(ctx context.Context, d Decision) { f(ctx, d) }

// MultiSink fans a decision out to several sinks in order. Nil entries are
// skipped.
type MultiSink []DecisionSink

// HandleDecision forwards d to every sink.
func (m MultiSink) HandleDecision(ctx context.Context, d Decision) {
	for _, s := range m {
		if s != nil {
			s.HandleDecision(ctx, d)
		}
	}
}
