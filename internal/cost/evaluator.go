package cost

import (
	"fmt"

	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// Breakdown holds one value per cost function.
type Breakdown struct {
	Collision    float64 `json:"collision"`
	Buffer       float64 `json:"buffer"`
	Efficiency   float64 `json:"efficiency"`
	Goal         float64 `json:"goal"`
	Acceleration float64 `json:"acceleration"`
	Jerk         float64 `json:"jerk"`
}

// Sum adds the components.
func (b Breakdown) Sum() float64 {
	return b.Collision + b.Buffer + b.Efficiency + b.Goal + b.Acceleration + b.Jerk
}

// Scale multiplies each component by its weight.
func (b Breakdown) Scale(w Weights) Breakdown {
	return Breakdown{
		Collision:    b.Collision * w.Collision,
		Buffer:       b.Buffer * w.Buffer,
		Efficiency:   b.Efficiency * w.Efficiency,
		Goal:         b.Goal * w.Goal,
		Acceleration: b.Acceleration * w.Acceleration,
		Jerk:         b.Jerk * w.Jerk,
	}
}

func (b Breakdown) String() string {
	return fmt.Sprintf("collision=%.3g buffer=%.3g efficiency=%.3g goal=%.3g accel=%.3g jerk=%.3g",
		b.Collision, b.Buffer, b.Efficiency, b.Goal, b.Acceleration, b.Jerk)
}

// Evaluation is the scored result for one trajectory.
type Evaluation struct {
	Helper   HelperData `json:"helper"`
	Raw      Breakdown  `json:"raw"`
	Weighted Breakdown  `json:"weighted"`
	Total    float64    `json:"total"`
}

// Evaluator scores trajectories with a fixed weight set.
type Evaluator struct {
	weights Weights
	params  Params
}

// NewEvaluator returns an evaluator after checking the weight ordering.
func NewEvaluator(w Weights, p Params) (*Evaluator, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost weights: %w", err)
	}
	return &Evaluator{weights: w, params: p}, nil
}

// Weights returns the weight set in use.
func (e *Evaluator) Weights() Weights { return e.weights }

// Params returns the cost parameters in use.
func (e *Evaluator) Params() Params { return e.params }

// Evaluate scores traj against predictions.
func (e *Evaluator) Evaluate(traj vehicle.Trajectory, predictions vehicle.PredictionMap) Evaluation {
	return e.EvaluateQuery(traj, predictions.Query())
}

// EvaluateQuery scores traj against an already-built lane query.
func (e *Evaluator) EvaluateQuery(traj vehicle.Trajectory, q vehicle.LaneQuery) Evaluation {
	h := NewHelperData(traj)
	raw := Breakdown{
		Collision:    Collision(traj, q, h, e.params),
		Buffer:       Buffer(traj, q, h, e.params),
		Efficiency:   Efficiency(traj, q, h, e.params),
		Goal:         GoalDistance(traj, q, h, e.params),
		Acceleration: Acceleration(traj, q, h, e.params),
		Jerk:         Jerk(traj, q, h, e.params),
	}
	weighted := raw.Scale(e.weights)
	return Evaluation{
		Helper:   h,
		Raw:      raw,
		Weighted: weighted,
		Total:    weighted.Sum(),
	}
}
