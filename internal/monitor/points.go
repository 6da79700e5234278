package monitor

import (
	"context"

	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/planner"
)

// Point is one cycle reduced to the values that are charted.
type Point struct {
	Cycle       int
	State       string
	Lane        int
	Speed       float64
	TargetSpeed float64
	Cost        float64
}

// CycleSource loads the stored cycles of a run. *db.DB and *api.Client both
// satisfy it.
type CycleSource interface {
	Cycles(ctx context.Context, runID string, limit int) ([]db.CycleRecord, error)
}

// PointsFromDecisions converts live decisions.
func PointsFromDecisions(ds []planner.Decision) []Point {
	out := make([]Point, len(ds))
	for i, d := range ds {
		out[i] = Point{
			Cycle:       d.Cycle,
			State:       string(d.State),
			Lane:        d.Lane,
			Speed:       d.Speed,
			TargetSpeed: d.TargetSpeed,
			Cost:        d.Total,
		}
	}
	return out
}

// PointsFromCycles converts stored cycles.
func PointsFromCycles(cs []db.CycleRecord) []Point {
	out := make([]Point, len(cs))
	for i, c := range cs {
		out[i] = Point{
			Cycle:       c.Cycle,
			State:       string(c.State),
			Lane:        c.Lane,
			Speed:       c.Speed,
			TargetSpeed: c.TargetSpeed,
			Cost:        c.TotalCost,
		}
	}
	return out
}
