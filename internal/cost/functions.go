package cost

import (
	"math"

	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// limitEpsilon keeps values computed exactly at a limit from tripping it.
const limitEpsilon = 1e-9

// HelperData is derived once per trajectory from its projected sample.
type HelperData struct {
	IntendedLane   int
	FinalLane      int
	DistanceToGoal float64
}

// NewHelperData derives the helper data for traj. Prepare states intend the
// adjacent lane while still finishing in the current one.
func NewHelperData(traj vehicle.Trajectory) HelperData {
	end := traj.End()
	intended := end.Lane
	if end.State.IsPrepare() {
		intended = end.ClampLane(end.Lane + end.State.LaneDirection())
	}
	return HelperData{
		IntendedLane:   intended,
		FinalLane:      end.Lane,
		DistanceToGoal: end.GoalS - end.S,
	}
}

// Logistic maps [0, ∞) onto [0, 1) and is odd around zero, so its range is
// (-1, 1).
func Logistic(x float64) float64 {
	return 2.0/(1.0+math.Exp(-x)) - 1.0
}

// Collision is 1 when the nearest vehicle in the final lane is closer than
// CollisionDistance at the projected step.
func Collision(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	_, dist, ok := q.Nearest(h.FinalLane, traj.End().S, 1)
	if ok && dist < p.CollisionDistance {
		return 1
	}
	return 0
}

// Buffer rises toward 1 as the nearest vehicle in the final lane closes in
// relative to VehicleRadius. An empty lane costs nothing.
func Buffer(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	_, dist, ok := q.Nearest(h.FinalLane, traj.End().S, 1)
	if !ok {
		return 0
	}
	if dist <= 0 {
		return 1
	}
	return Logistic(2 * p.VehicleRadius / dist)
}

// Efficiency penalizes intended and final lanes whose forward traffic runs
// below target speed. The result is in [0, 2].
func Efficiency(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	target := traj.Start().TargetSpeed
	if target <= 0 {
		return 0
	}
	intended := laneSpeed(q, h.IntendedLane, traj.Start().S, target, p.EfficiencyLookahead)
	final := laneSpeed(q, h.FinalLane, traj.End().S, target, p.EfficiencyLookahead)
	return (2*target - intended - final) / target
}

// laneSpeed is the speed of the nearest vehicle ahead of s within lookahead,
// capped at target. An open lane runs at target.
func laneSpeed(q vehicle.LaneQuery, lane int, s, target, lookahead float64) float64 {
	lead, ok := q.Ahead(lane, s, 0)
	if !ok || lead.S-s > lookahead {
		return target
	}
	return math.Min(lead.V, target)
}

// GoalDistance penalizes intended and final lanes away from the goal lane.
// The penalty grows as the remaining distance to the goal shrinks and is 1
// at or past the goal.
func GoalDistance(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	goal := traj.End().GoalLane
	delta := math.Abs(float64(2*goal - h.IntendedLane - h.FinalLane))
	if delta == 0 {
		return 0
	}
	if h.DistanceToGoal > 0 {
		return 1 - math.Exp(-delta/h.DistanceToGoal)
	}
	return 1
}

// Acceleration is 1 when the projected acceleration exceeds MaxAcceleration.
func Acceleration(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	end := traj.End()
	if math.Abs(end.A) > end.MaxAcceleration+limitEpsilon {
		return 1
	}
	return 0
}

// Jerk is 1 when the change in acceleration over one planning step exceeds
// MaxJerk.
func Jerk(traj vehicle.Trajectory, q vehicle.LaneQuery, h HelperData, p Params) float64 {
	start, end := traj.Start(), traj.End()
	jerk := math.Abs(end.A-start.A) / start.Step()
	if jerk > end.MaxJerk+limitEpsilon {
		return 1
	}
	return 0
}
