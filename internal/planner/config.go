package planner

import (
	"fmt"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/cost"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// MinHorizon is the shortest prediction horizon that covers the projected
// step.
const MinHorizon = 2

// Config holds everything a Planner needs to arbitrate.
type Config struct {
	Profile      vehicle.Profile
	PlanningStep float64 // seconds
	Horizon      int     // prediction steps per tracked vehicle
	StartLane    int
	Weights      cost.Weights
	Params       cost.Params
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Profile:      vehicle.DefaultProfile(),
		PlanningStep: vehicle.DefaultPlanningStep,
		Horizon:      2,
		StartLane:    1,
		Weights:      cost.DefaultWeights(),
		Params:       cost.DefaultParams(),
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Profile:      vehicle.ProfileFromTuning(cfg),
		PlanningStep: vehicle.PlanningStepFromTuning(cfg),
		Horizon:      cfg.GetPredictionHorizon(),
		StartLane:    cfg.GetStartLane(),
		Weights:      cost.WeightsFromTuning(cfg),
		Params:       cost.ParamsFromTuning(cfg),
	}
}

// Validate checks the configuration before a Planner is built from it.
func (c Config) Validate() error {
	if c.PlanningStep <= 0 {
		return fmt.Errorf("planning step must be positive, got %g", c.PlanningStep)
	}
	// Lane-change clearance and collision cost look at step 1.
	if c.Horizon < MinHorizon {
		return fmt.Errorf("prediction horizon must be at least %d, got %d", MinHorizon, c.Horizon)
	}
	if c.Profile.LanesAvailable < 1 {
		return fmt.Errorf("lanes available must be at least 1, got %d", c.Profile.LanesAvailable)
	}
	if c.StartLane < 0 || c.StartLane >= c.Profile.LanesAvailable {
		return fmt.Errorf("start lane %d outside road of %d lanes", c.StartLane, c.Profile.LanesAvailable)
	}
	if c.Profile.TargetSpeed <= 0 {
		return fmt.Errorf("target speed must be positive, got %g", c.Profile.TargetSpeed)
	}
	if c.Profile.LaneWidth <= 0 {
		return fmt.Errorf("lane width must be positive, got %g", c.Profile.LaneWidth)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}
