// Package vehicle owns the kinematic snapshot shared by the ego vehicle and
// surrounding traffic, and everything derived from a single snapshot:
// constant-velocity predictions, the per-step kinematics solver, maneuver
// trajectories and the maneuver state machine.
//
// Positions are road-relative: S is the longitudinal distance along the
// road (metres), D the lateral offset from the road's left edge (metres).
// Lane 0 is the leftmost lane.
//
// No I/O happens in this package. Every operation is a pure function of its
// receiver and arguments.
package vehicle

import (
	"fmt"
	"math"
)

// DefaultPlanningStep is the planning step (seconds) used when a snapshot
// carries no positive Dt.
const DefaultPlanningStep = 1.2

// ManeuverState is one state of the behaviour state machine.
type ManeuverState string

const (
	ConstantSpeed          ManeuverState = "CS"   // bootstrap only, before the first observation
	KeepLane               ManeuverState = "KL"   // follow the current lane
	PrepareLaneChangeLeft  ManeuverState = "PLCL" // match speed for a move one lane left
	PrepareLaneChangeRight ManeuverState = "PLCR" // match speed for a move one lane right
	LaneChangeLeft         ManeuverState = "LCL"  // move one lane left this step
	LaneChangeRight        ManeuverState = "LCR"  // move one lane right this step
)

// AllStates lists every maneuver state in a stable order.
var AllStates = []ManeuverState{
	ConstantSpeed,
	KeepLane,
	PrepareLaneChangeLeft,
	PrepareLaneChangeRight,
	LaneChangeLeft,
	LaneChangeRight,
}

// ParseManeuverState converts the short state name used in logs and storage.
func ParseManeuverState(s string) (ManeuverState, error) {
	for _, st := range AllStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown maneuver state %q", s)
}

// LaneDirection is -1 for left-bound states, +1 for right-bound states and
// 0 otherwise.
func (s ManeuverState) LaneDirection() int {
	switch s {
	case PrepareLaneChangeLeft, LaneChangeLeft:
		return -1
	case PrepareLaneChangeRight, LaneChangeRight:
		return 1
	default:
		return 0
	}
}

// IsPrepare reports whether s is one of the prepare-lane-change states.
func (s ManeuverState) IsPrepare() bool {
	return s == PrepareLaneChangeLeft || s == PrepareLaneChangeRight
}

// IsLaneChange reports whether s is one of the lane-change states.
func (s ManeuverState) IsLaneChange() bool {
	return s == LaneChangeLeft || s == LaneChangeRight
}

// Profile is the static configuration of a vehicle. It is set once through
// Configure and held for the vehicle's lifetime.
type Profile struct {
	TargetSpeed         float64 // m/s
	MaxAcceleration     float64 // m/s², bound on |A|
	MaxJerk             float64 // m/s³
	LanesAvailable      int
	GoalLane            int
	GoalS               float64 // metres
	FollowingBuffer     float64 // preferred gap to a lead vehicle (metres)
	LaneChangeClearance float64 // minimum gap in the target lane for a lane change (metres)
	LaneWidth           float64 // metres
}

// DefaultProfile returns the profile used for a three-lane highway with a
// 22 m/s (≈49.5 mph) speed target.
func DefaultProfile() Profile {
	return Profile{
		TargetSpeed:         22.0,
		MaxAcceleration:     10.0,
		MaxJerk:             10.0,
		LanesAvailable:      3,
		GoalLane:            1,
		GoalS:               6945.554,
		FollowingBuffer:     30.0,
		LaneChangeClearance: 15.0,
		LaneWidth:           4.0,
	}
}

// Vehicle is the kinematic snapshot of one vehicle at one planning instant.
type Vehicle struct {
	Lane  int
	S     float64
	D     float64
	V     float64
	A     float64
	State ManeuverState
	Dt    float64 // planning step in seconds

	Profile
}

// New returns a snapshot in the Constant-Speed bootstrap state.
func New(lane int, s, d, v, a float64) Vehicle {
	return Vehicle{
		Lane:  lane,
		S:     s,
		D:     d,
		V:     v,
		A:     a,
		State: ConstantSpeed,
		Dt:    DefaultPlanningStep,
	}
}

// Configure installs the static profile. The goal lane and current lane are
// clamped into the road.
func (v *Vehicle) Configure(p Profile) {
	if p.LanesAvailable < 1 {
		p.LanesAvailable = 1
	}
	v.Profile = p
	v.GoalLane = v.ClampLane(p.GoalLane)
	v.Lane = v.ClampLane(v.Lane)
}

// ClampLane maps lane into [0, LanesAvailable).
func (v Vehicle) ClampLane(lane int) int {
	if lane < 0 {
		return 0
	}
	if v.LanesAvailable > 0 && lane >= v.LanesAvailable {
		return v.LanesAvailable - 1
	}
	return lane
}

// LaneValid reports whether lane exists on the road.
func (v Vehicle) LaneValid(lane int) bool {
	return lane >= 0 && lane < v.LanesAvailable
}

// LaneCenter is the lateral position of the centre of lane.
func (v Vehicle) LaneCenter(lane int) float64 {
	return v.LaneWidth * (float64(lane) + 0.5)
}

// LaneFromD returns the lane containing lateral position d, clamped into the
// road.
func (v Vehicle) LaneFromD(d float64) int {
	if v.LaneWidth <= 0 {
		return v.Lane
	}
	return v.ClampLane(int(math.Floor(d / v.LaneWidth)))
}

// Step returns the planning step in seconds.
func (v Vehicle) Step() float64 {
	if v.Dt > 0 {
		return v.Dt
	}
	return DefaultPlanningStep
}

// PositionAt returns the longitudinal position after the given number of
// planning steps at constant speed.
func (v Vehicle) PositionAt(steps int) float64 {
	return v.S + v.V*v.Step()*float64(steps)
}

// project returns the snapshot one planning step ahead after moving to lane
// with final speed newV and acceleration newA. Position integrates the mean
// of the current and final speeds.
func (v Vehicle) project(lane int, newV, newA float64, state ManeuverState) Vehicle {
	next := v
	next.Lane = lane
	next.S = v.S + 0.5*(v.V+newV)*v.Step()
	if lane != v.Lane && v.LaneWidth > 0 {
		next.D = v.LaneCenter(lane)
	}
	next.V = newV
	next.A = newA
	next.State = state
	return next
}

func (v Vehicle) String() string {
	return fmt.Sprintf("%s lane=%d s=%.2f d=%.2f v=%.2f a=%.2f", v.State, v.Lane, v.S, v.D, v.V, v.A)
}
