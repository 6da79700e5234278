package vehicle

import "github.com/banshee-data/highway.planner/internal/config"

// ProfileFromTuning builds a Profile from a loaded TuningConfig.
func ProfileFromTuning(cfg *config.TuningConfig) Profile {
	return Profile{
		TargetSpeed:         cfg.GetTargetSpeedMps(),
		MaxAcceleration:     cfg.GetMaxAcceleration(),
		MaxJerk:             cfg.GetMaxJerk(),
		LanesAvailable:      cfg.GetLanesAvailable(),
		GoalLane:            cfg.GetGoalLane(),
		GoalS:               cfg.GetGoalS(),
		FollowingBuffer:     cfg.GetFollowingBuffer(),
		LaneChangeClearance: cfg.GetLaneChangeClearance(),
		LaneWidth:           cfg.GetLaneWidth(),
	}
}

// PlanningStepFromTuning returns the configured planning step in seconds.
func PlanningStepFromTuning(cfg *config.TuningConfig) float64 {
	return cfg.GetPlanningStep().Seconds()
}
