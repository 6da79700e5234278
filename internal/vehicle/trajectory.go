package vehicle

// Trajectory is the committed state at the start of a planning step followed
// by the projected state at its end.
type Trajectory [2]Vehicle

// Start is the committed state.
func (t Trajectory) Start() Vehicle { return t[0] }

// End is the projected state.
func (t Trajectory) End() Vehicle { return t[1] }

// TrajectoryResult is the outcome of generating a trajectory for one
// maneuver state: either a feasible trajectory or an infeasibility signal.
type TrajectoryResult struct {
	trajectory Trajectory
	feasible   bool
}

// Feasible wraps a generated trajectory.
func Feasible(t Trajectory) TrajectoryResult {
	return TrajectoryResult{trajectory: t, feasible: true}
}

// Infeasible reports that the maneuver cannot be executed this step.
func Infeasible() TrajectoryResult {
	return TrajectoryResult{}
}

// Trajectory returns the trajectory and whether it is feasible.
func (r TrajectoryResult) Trajectory() (Trajectory, bool) {
	return r.trajectory, r.feasible
}

// IsFeasible reports whether a trajectory was produced.
func (r TrajectoryResult) IsFeasible() bool {
	return r.feasible
}

// GenerateTrajectory builds the two-sample trajectory for state given the
// current predictions. Sample 0 is always the receiver itself; sample 1 is
// produced by the kinematics solver.
func (v Vehicle) GenerateTrajectory(state ManeuverState, predictions PredictionMap) TrajectoryResult {
	return v.generateTrajectory(state, predictions.Query())
}

func (v Vehicle) generateTrajectory(state ManeuverState, q LaneQuery) TrajectoryResult {
	switch state {
	case ConstantSpeed:
		return Feasible(v.constantSpeedTrajectory())
	case KeepLane:
		return Feasible(v.keepLaneTrajectory(q))
	case PrepareLaneChangeLeft, PrepareLaneChangeRight:
		return v.prepLaneChangeTrajectory(state, q)
	case LaneChangeLeft, LaneChangeRight:
		return v.laneChangeTrajectory(state, q)
	default:
		return Infeasible()
	}
}

func (v Vehicle) constantSpeedTrajectory() Trajectory {
	return Trajectory{v, v.project(v.Lane, v.V, 0, ConstantSpeed)}
}

func (v Vehicle) keepLaneTrajectory(q LaneQuery) Trajectory {
	newV, newA := v.kinematics(q, v.Lane)
	return Trajectory{v, v.project(v.Lane, newV, newA, KeepLane)}
}

// prepLaneChangeTrajectory solves for the adjacent lane without leaving the
// current one. The slower of the two lane solutions is kept so the
// preparation never outruns traffic in the lane the vehicle still occupies.
func (v Vehicle) prepLaneChangeTrajectory(state ManeuverState, q LaneQuery) TrajectoryResult {
	target := v.Lane + state.LaneDirection()
	if !v.LaneValid(target) {
		return Infeasible()
	}

	newV, newA := v.kinematics(q, target)
	if curV, curA := v.kinematics(q, v.Lane); curV < newV {
		newV, newA = curV, curA
	}
	return Feasible(Trajectory{v, v.project(v.Lane, newV, newA, state)})
}

// laneChangeTrajectory is infeasible while any vehicle in the target lane is
// inside the clearance window around the current position or the projected
// position.
func (v Vehicle) laneChangeTrajectory(state ManeuverState, q LaneQuery) TrajectoryResult {
	target := v.Lane + state.LaneDirection()
	if !v.LaneValid(target) {
		return Infeasible()
	}
	if q.Occupied(target, v.S, 0, v.LaneChangeClearance) {
		return Infeasible()
	}

	newV, newA := v.kinematics(q, target)
	next := v.project(target, newV, newA, state)
	if q.Occupied(target, next.S, 1, v.LaneChangeClearance) {
		return Infeasible()
	}
	return Feasible(Trajectory{v, next})
}

// GenerateTrajectoryFrom is GenerateTrajectory over an already-built lane
// query, for callers that evaluate several states against one prediction map.
func (v Vehicle) GenerateTrajectoryFrom(state ManeuverState, q LaneQuery) TrajectoryResult {
	return v.generateTrajectory(state, q)
}
