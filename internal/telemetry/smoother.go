package telemetry

import (
	"math"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// Handoff is what the planner passes to the path smoother each cycle: the
// committed decision and the state the simulator reported.
type Handoff struct {
	Decision  planner.Decision
	Telemetry Telemetry
}

// PathSmoother turns a committed decision into waypoints for the simulator.
type PathSmoother interface {
	Smooth(h Handoff) Path
}

// SmootherFunc adapts a function to PathSmoother.
type SmootherFunc func(h Handoff) Path

// Smooth calls f.
func (f SmootherFunc) Smooth(h Handoff) Path { return f(h) }

// ContinuePath keeps the simulator moving when no map-aware smoother is
// attached. It re-emits the unconsumed part of the previous path and tops it
// up to Points waypoints along the last heading, spaced for the committed
// speed. It does not steer toward the committed lane.
type ContinuePath struct {
	Points   int     // waypoints per reply
	Interval float64 // seconds between waypoints
}

// DefaultContinuePath matches the simulator's 50-point, 20 ms control rate.
func DefaultContinuePath() ContinuePath {
	return ContinuePath{Points: 50, Interval: 0.02}
}

// Smooth implements PathSmoother.
func (c ContinuePath) Smooth(h Handoff) Path {
	prev := h.Telemetry.PreviousPath()
	n := prev.Len()
	points := c.Points
	if points < n {
		points = n
	}

	out := Path{
		X: make([]float64, n, points),
		Y: make([]float64, n, points),
	}
	copy(out.X, prev.X[:n])
	copy(out.Y, prev.Y[:n])

	x, y := h.Telemetry.X, h.Telemetry.Y
	heading := h.Telemetry.Yaw * math.Pi / 180
	if n >= 2 {
		x, y = prev.X[n-1], prev.Y[n-1]
		heading = math.Atan2(y-prev.Y[n-2], x-prev.X[n-2])
	} else if n == 1 {
		x, y = prev.X[0], prev.Y[0]
	}

	step := h.Decision.Speed * c.Interval
	for len(out.X) < points {
		x += step * math.Cos(heading)
		y += step * math.Sin(heading)
		out.X = append(out.X, x)
		out.Y = append(out.Y, y)
	}
	return out
}
