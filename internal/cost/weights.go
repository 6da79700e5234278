// Package cost scores candidate maneuver trajectories. Each cost function
// returns an unweighted value; the Evaluator combines them with a Weights set
// into a single total where lower is better.
package cost

import (
	"fmt"
	"math"

	"github.com/banshee-data/highway.planner/internal/config"
)

// Weights multiplies each cost function's output. The ordering between the
// weights carries the safety contract: collision vetoes everything, the
// comfort limits dominate efficiency and goal progress, and buffer proximity
// only breaks ties between otherwise equal candidates.
type Weights struct {
	Collision    float64 `json:"collision"`
	Buffer       float64 `json:"buffer"`
	Efficiency   float64 `json:"efficiency"`
	Goal         float64 `json:"goal"`
	Acceleration float64 `json:"acceleration"`
	Jerk         float64 `json:"jerk"`
}

// DefaultWeights returns the stock weight set.
func DefaultWeights() Weights {
	return Weights{
		Collision:    1e10,
		Buffer:       1e3,
		Efficiency:   1e6,
		Goal:         1e5,
		Acceleration: 1e8,
		Jerk:         1e8,
	}
}

// WeightsFromTuning builds a Weights set from a loaded TuningConfig.
func WeightsFromTuning(cfg *config.TuningConfig) Weights {
	return Weights{
		Collision:    cfg.GetWeightCollision(),
		Buffer:       cfg.GetWeightBuffer(),
		Efficiency:   cfg.GetWeightEfficiency(),
		Goal:         cfg.GetWeightGoal(),
		Acceleration: cfg.GetWeightAcceleration(),
		Jerk:         cfg.GetWeightJerk(),
	}
}

// Validate rejects negative weights and sets that break the ordering
// collision > max(jerk, acceleration) > max(efficiency, goal) > buffer.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"collision":    w.Collision,
		"buffer":       w.Buffer,
		"efficiency":   w.Efficiency,
		"goal":         w.Goal,
		"acceleration": w.Acceleration,
		"jerk":         w.Jerk,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s weight must be finite and non-negative, got %g", name, v)
		}
	}

	comfort := math.Max(w.Jerk, w.Acceleration)
	progress := math.Max(w.Efficiency, w.Goal)
	if w.Collision <= comfort {
		return fmt.Errorf("collision weight %g must exceed jerk and acceleration weights (%g)", w.Collision, comfort)
	}
	if comfort <= progress {
		return fmt.Errorf("jerk/acceleration weight %g must exceed efficiency and goal weights (%g)", comfort, progress)
	}
	if progress <= w.Buffer {
		return fmt.Errorf("efficiency/goal weight %g must exceed buffer weight (%g)", progress, w.Buffer)
	}
	return nil
}

// Params are the distances the cost functions compare against.
type Params struct {
	CollisionDistance   float64 // minimum separation before the collision veto fires (metres)
	VehicleRadius       float64 // desired radius for buffer proximity (metres)
	EfficiencyLookahead float64 // how far ahead traffic slows a lane (metres)
}

// DefaultParams returns the stock cost parameters. CollisionDistance stays
// below the default following buffer so steady car-following is never
// vetoed.
func DefaultParams() Params {
	return Params{
		CollisionDistance:   10,
		VehicleRadius:       10,
		EfficiencyLookahead: 100,
	}
}

// ParamsFromTuning builds Params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		CollisionDistance:   cfg.GetCollisionDistance(),
		VehicleRadius:       cfg.GetVehicleRadius(),
		EfficiencyLookahead: cfg.GetEfficiencyLookahead(),
	}
}
