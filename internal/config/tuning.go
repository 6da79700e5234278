package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for the behaviour planner. The same
// JSON is served back by /api/config, so a dump of a running planner can be
// loaded as a startup file.
type TuningConfig struct {
	// Planning cycle
	PlanningStep      *string `json:"planning_step,omitempty"` // duration string like "1.2s"
	PredictionHorizon *int    `json:"prediction_horizon,omitempty"`

	// Road
	LanesAvailable *int     `json:"lanes_available,omitempty"`
	LaneWidth      *float64 `json:"lane_width,omitempty"`
	StartLane      *int     `json:"start_lane,omitempty"`
	GoalLane       *int     `json:"goal_lane,omitempty"`
	GoalS          *float64 `json:"goal_s,omitempty"`

	// Vehicle limits
	TargetSpeedMps  *float64 `json:"target_speed_mps,omitempty"`
	MaxAcceleration *float64 `json:"max_acceleration,omitempty"`
	MaxJerk         *float64 `json:"max_jerk,omitempty"`

	// Gaps (metres)
	FollowingBuffer     *float64 `json:"following_buffer,omitempty"`
	LaneChangeClearance *float64 `json:"lane_change_clearance,omitempty"`
	CollisionDistance   *float64 `json:"collision_distance,omitempty"`
	VehicleRadius       *float64 `json:"vehicle_radius,omitempty"`
	EfficiencyLookahead *float64 `json:"efficiency_lookahead,omitempty"`

	// Cost weights
	WeightCollision    *float64 `json:"weight_collision,omitempty"`
	WeightBuffer       *float64 `json:"weight_buffer,omitempty"`
	WeightEfficiency   *float64 `json:"weight_efficiency,omitempty"`
	WeightGoal         *float64 `json:"weight_goal,omitempty"`
	WeightAcceleration *float64 `json:"weight_acceleration,omitempty"`
	WeightJerk         *float64 `json:"weight_jerk,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		PlanningStep:        ptrString(empty.GetPlanningStep().String()),
		PredictionHorizon:   ptrInt(empty.GetPredictionHorizon()),
		LanesAvailable:      ptrInt(empty.GetLanesAvailable()),
		LaneWidth:           ptrFloat64(empty.GetLaneWidth()),
		StartLane:           ptrInt(empty.GetStartLane()),
		GoalLane:            ptrInt(empty.GetGoalLane()),
		GoalS:               ptrFloat64(empty.GetGoalS()),
		TargetSpeedMps:      ptrFloat64(empty.GetTargetSpeedMps()),
		MaxAcceleration:     ptrFloat64(empty.GetMaxAcceleration()),
		MaxJerk:             ptrFloat64(empty.GetMaxJerk()),
		FollowingBuffer:     ptrFloat64(empty.GetFollowingBuffer()),
		LaneChangeClearance: ptrFloat64(empty.GetLaneChangeClearance()),
		CollisionDistance:   ptrFloat64(empty.GetCollisionDistance()),
		VehicleRadius:       ptrFloat64(empty.GetVehicleRadius()),
		EfficiencyLookahead: ptrFloat64(empty.GetEfficiencyLookahead()),
		WeightCollision:     ptrFloat64(empty.GetWeightCollision()),
		WeightBuffer:        ptrFloat64(empty.GetWeightBuffer()),
		WeightEfficiency:    ptrFloat64(empty.GetWeightEfficiency()),
		WeightGoal:          ptrFloat64(empty.GetWeightGoal()),
		WeightAcceleration:  ptrFloat64(empty.GetWeightAcceleration()),
		WeightJerk:          ptrFloat64(empty.GetWeightJerk()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and its parents.
// Panics if the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/*
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.PlanningStep != nil && *c.PlanningStep != "" {
		d, err := time.ParseDuration(*c.PlanningStep)
		if err != nil {
			return fmt.Errorf("invalid planning_step '%s': %w", *c.PlanningStep, err)
		}
		if d <= 0 {
			return fmt.Errorf("planning_step must be positive, got %s", d)
		}
	}

	if c.PredictionHorizon != nil && *c.PredictionHorizon < 2 {
		return fmt.Errorf("prediction_horizon must be at least 2, got %d", *c.PredictionHorizon)
	}

	if c.LanesAvailable != nil && *c.LanesAvailable < 1 {
		return fmt.Errorf("lanes_available must be at least 1, got %d", *c.LanesAvailable)
	}
	lanes := c.GetLanesAvailable()
	if c.GoalLane != nil && (*c.GoalLane < 0 || *c.GoalLane >= lanes) {
		return fmt.Errorf("goal_lane must be in [0, %d), got %d", lanes, *c.GoalLane)
	}
	if c.StartLane != nil && (*c.StartLane < 0 || *c.StartLane >= lanes) {
		return fmt.Errorf("start_lane must be in [0, %d), got %d", lanes, *c.StartLane)
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"lane_width", c.LaneWidth},
		{"target_speed_mps", c.TargetSpeedMps},
		{"max_acceleration", c.MaxAcceleration},
		{"max_jerk", c.MaxJerk},
		{"collision_distance", c.CollisionDistance},
		{"vehicle_radius", c.VehicleRadius},
		{"efficiency_lookahead", c.EfficiencyLookahead},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"goal_s", c.GoalS},
		{"following_buffer", c.FollowingBuffer},
		{"lane_change_clearance", c.LaneChangeClearance},
		{"weight_collision", c.WeightCollision},
		{"weight_buffer", c.WeightBuffer},
		{"weight_efficiency", c.WeightEfficiency},
		{"weight_goal", c.WeightGoal},
		{"weight_acceleration", c.WeightAcceleration},
		{"weight_jerk", c.WeightJerk},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.v)
		}
	}

	return nil
}

// GetPlanningStep parses and returns the PlanningStep as a time.Duration.
func (c *TuningConfig) GetPlanningStep() time.Duration {
	if c.PlanningStep == nil || *c.PlanningStep == "" {
		return 1200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PlanningStep)
	if err != nil || d <= 0 {
		return 1200 * time.Millisecond // default on parse error
	}
	return d
}

// GetPredictionHorizon returns the prediction_horizon value or the default.
func (c *TuningConfig) GetPredictionHorizon() int {
	if c.PredictionHorizon == nil {
		return 2
	}
	return *c.PredictionHorizon
}

// GetLanesAvailable returns the lanes_available value or the default.
func (c *TuningConfig) GetLanesAvailable() int {
	if c.LanesAvailable == nil {
		return 3
	}
	return *c.LanesAvailable
}

// GetLaneWidth returns the lane_width value or the default.
func (c *TuningConfig) GetLaneWidth() float64 {
	if c.LaneWidth == nil {
		return 4.0
	}
	return *c.LaneWidth
}

// GetStartLane returns the start_lane value or the default.
func (c *TuningConfig) GetStartLane() int {
	if c.StartLane == nil {
		return 1
	}
	return *c.StartLane
}

// GetGoalLane returns the goal_lane value or the default.
func (c *TuningConfig) GetGoalLane() int {
	if c.GoalLane == nil {
		return 1
	}
	return *c.GoalLane
}

// GetGoalS returns the goal_s value or the default (one lap of the
// simulator track).
func (c *TuningConfig) GetGoalS() float64 {
	if c.GoalS == nil {
		return 6945.554
	}
	return *c.GoalS
}

// GetTargetSpeedMps returns the target_speed_mps value or the default.
func (c *TuningConfig) GetTargetSpeedMps() float64 {
	if c.TargetSpeedMps == nil {
		return 22.0
	}
	return *c.TargetSpeedMps
}

// GetMaxAcceleration returns the max_acceleration value or the default.
func (c *TuningConfig) GetMaxAcceleration() float64 {
	if c.MaxAcceleration == nil {
		return 10.0
	}
	return *c.MaxAcceleration
}

// GetMaxJerk returns the max_jerk value or the default.
func (c *TuningConfig) GetMaxJerk() float64 {
	if c.MaxJerk == nil {
		return 10.0
	}
	return *c.MaxJerk
}

// GetFollowingBuffer returns the following_buffer value or the default.
func (c *TuningConfig) GetFollowingBuffer() float64 {
	if c.FollowingBuffer == nil {
		return 30.0
	}
	return *c.FollowingBuffer
}

// GetLaneChangeClearance returns the lane_change_clearance value or the default.
func (c *TuningConfig) GetLaneChangeClearance() float64 {
	if c.LaneChangeClearance == nil {
		return 15.0
	}
	return *c.LaneChangeClearance
}

// GetCollisionDistance returns the collision_distance value or the default.
func (c *TuningConfig) GetCollisionDistance() float64 {
	if c.CollisionDistance == nil {
		return 10.0
	}
	return *c.CollisionDistance
}

// GetVehicleRadius returns the vehicle_radius value or the default.
func (c *TuningConfig) GetVehicleRadius() float64 {
	if c.VehicleRadius == nil {
		return 10.0
	}
	return *c.VehicleRadius
}

// GetEfficiencyLookahead returns the efficiency_lookahead value or the default.
func (c *TuningConfig) GetEfficiencyLookahead() float64 {
	if c.EfficiencyLookahead == nil {
		return 100.0
	}
	return *c.EfficiencyLookahead
}

// GetWeightCollision returns the weight_collision value or the default.
func (c *TuningConfig) GetWeightCollision() float64 {
	if c.WeightCollision == nil {
		return 1e10
	}
	return *c.WeightCollision
}

// GetWeightBuffer returns the weight_buffer value or the default.
func (c *TuningConfig) GetWeightBuffer() float64 {
	if c.WeightBuffer == nil {
		return 1e3
	}
	return *c.WeightBuffer
}

// GetWeightEfficiency returns the weight_efficiency value or the default.
func (c *TuningConfig) GetWeightEfficiency() float64 {
	if c.WeightEfficiency == nil {
		return 1e6
	}
	return *c.WeightEfficiency
}

// GetWeightGoal returns the weight_goal value or the default.
func (c *TuningConfig) GetWeightGoal() float64 {
	if c.WeightGoal == nil {
		return 1e5
	}
	return *c.WeightGoal
}

// GetWeightAcceleration returns the weight_acceleration value or the default.
func (c *TuningConfig) GetWeightAcceleration() float64 {
	if c.WeightAcceleration == nil {
		return 1e8
	}
	return *c.WeightAcceleration
}

// GetWeightJerk returns the weight_jerk value or the default.
func (c *TuningConfig) GetWeightJerk() float64 {
	if c.WeightJerk == nil {
		return 1e8
	}
	return *c.WeightJerk
}
