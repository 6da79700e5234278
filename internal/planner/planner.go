// Package planner runs the behaviour arbitration cycle: it keeps the ego
// vehicle's committed state, turns fused observations into predictions,
// scores every legal successor maneuver and commits the cheapest one.
//
// A Planner is owned by a single goroutine. Decisions handed to sinks are
// copies and never alias the ego state.
package planner

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/highway.planner/internal/cost"
	"github.com/banshee-data/highway.planner/internal/timeutil"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

// Observation is one fused sensor track in road coordinates.
type Observation struct {
	ID int
	S  float64
	D  float64
	VX float64 // m/s
	VY float64 // m/s
}

// Speed is the magnitude of the observed velocity.
func (o Observation) Speed() float64 {
	return math.Hypot(o.VX, o.VY)
}

// Input is the per-cycle view of the world the planner consumes.
type Input struct {
	S            float64
	D            float64
	Speed        float64 // m/s
	Observations []Observation
}

// Planner arbitrates maneuvers for one ego vehicle.
type Planner struct {
	cfg       Config
	evaluator *cost.Evaluator
	clock     timeutil.Clock
	sink      DecisionSink

	ego   vehicle.Vehicle
	runID string
	cycle int
}

// New returns a Planner whose ego starts in the Constant-Speed state at the
// configured start lane.
func New(cfg Config) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid planner config: %w", err)
	}
	evaluator, err := cost.NewEvaluator(cfg.Weights, cfg.Params)
	if err != nil {
		return nil, err
	}

	ego := vehicle.New(cfg.StartLane, 0, 0, 0, 0)
	ego.Dt = cfg.PlanningStep
	ego.Configure(cfg.Profile)
	ego.D = ego.LaneCenter(ego.Lane)

	return &Planner{
		cfg:       cfg,
		evaluator: evaluator,
		clock:     timeutil.RealClock{},
		ego:       ego,
	}, nil
}

// Config returns the configuration the planner was built with.
func (p *Planner) Config() Config { return p.cfg }

// Ego returns a copy of the committed ego state.
func (p *Planner) Ego() vehicle.Vehicle { return p.ego }

// SetEgo replaces the committed ego state. The profile and planning step are
// always reapplied from the planner's configuration.
func (p *Planner) SetEgo(v vehicle.Vehicle) {
	v.Dt = p.cfg.PlanningStep
	v.Configure(p.cfg.Profile)
	p.ego = v
}

// SetRunID tags subsequent decisions with id.
func (p *Planner) SetRunID(id string) { p.runID = id }

// RunID returns the current run id.
func (p *Planner) RunID() string { return p.runID }

// SetSink installs the sink that receives every decision from Cycle.
func (p *Planner) SetSink(s DecisionSink) { p.sink = s }

// SetClock replaces the clock used for decision timestamps and latency.
func (p *Planner) SetClock(c timeutil.Clock) { p.clock = c }

// Predictions builds the prediction map for a set of observations. Lane
// comes from the lateral position and speed from the velocity magnitude.
func (p *Planner) Predictions(obs []Observation) vehicle.PredictionMap {
	pm := make(vehicle.PredictionMap, len(obs))
	for _, o := range obs {
		other := vehicle.New(p.ego.LaneFromD(o.D), o.S, o.D, o.Speed(), 0)
		other.Dt = p.cfg.PlanningStep
		pm[o.ID] = other.GeneratePredictions(p.cfg.Horizon)
	}
	return pm
}

// ChooseNextState evaluates every successor of the ego's current state and
// returns the uncommitted decision for the cheapest feasible one. Ties go to
// the state enumerated first. When nothing is feasible the decision falls
// back to Keep-Lane.
func (p *Planner) ChooseNextState(predictions vehicle.PredictionMap) Decision {
	q := predictions.Query()
	ego := p.ego

	states := ego.SuccessorStates()
	candidates := make([]Candidate, 0, len(states))
	trajectories := make([]vehicle.Trajectory, 0, len(states))
	totals := make([]float64, 0, len(states))
	feasibleIdx := make([]int, 0, len(states))

	for _, st := range states {
		c := Candidate{State: st}
		traj, ok := ego.GenerateTrajectoryFrom(st, q).Trajectory()
		if ok {
			c.Feasible = true
			c.Lane = traj.End().Lane
			c.Speed = traj.End().V
			c.Accel = traj.End().A
			c.Evaluation = p.evaluator.EvaluateQuery(traj, q)
			totals = append(totals, c.Evaluation.Total)
			feasibleIdx = append(feasibleIdx, len(candidates))
			tracef("candidate %s lane=%d v=%.2f a=%.2f total=%.4g (%s)",
				st, c.Lane, c.Speed, c.Accel, c.Evaluation.Total, c.Evaluation.Raw)
		} else {
			tracef("candidate %s infeasible", st)
		}
		candidates = append(candidates, c)
		trajectories = append(trajectories, traj)
	}

	d := Decision{
		Previous:    ego.State,
		TargetSpeed: ego.TargetSpeed,
		S:           ego.S,
		D:           ego.D,
		Candidates:  candidates,
	}

	if len(totals) == 0 {
		traj, _ := ego.GenerateTrajectoryFrom(vehicle.KeepLane, q).Trajectory()
		d.Fallback = true
		d.Trajectory = traj
		d.Total = p.evaluator.EvaluateQuery(traj, q).Total
		opsf("no feasible successor from %s at s=%.1f, falling back to %s", ego.State, ego.S, vehicle.KeepLane)
	} else {
		best := feasibleIdx[floats.MinIdx(totals)]
		d.Trajectory = trajectories[best]
		d.Total = candidates[best].Evaluation.Total
	}

	end := d.Trajectory.End()
	d.State = end.State
	d.Lane = end.Lane
	d.Speed = end.V
	d.Accel = end.A
	d.ProjectedS = end.S
	return d
}

// RealizeNextState commits the decision's projected lane, speed,
// acceleration and state into the ego.
func (p *Planner) RealizeNextState(d Decision) {
	prev := p.ego
	p.ego.Lane = d.Lane
	p.ego.V = d.Speed
	p.ego.A = d.Accel
	p.ego.State = d.State
	if prev.Lane != d.Lane {
		p.ego.D = p.ego.LaneCenter(d.Lane)
		diagf("lane change %d -> %d at s=%.1f (%s)", prev.Lane, d.Lane, prev.S, d.State)
	} else if prev.State != d.State {
		diagf("state %s -> %s lane=%d v=%.2f", prev.State, d.State, d.Lane, d.Speed)
	}
}

// Step chooses and commits the next state against predictions.
func (p *Planner) Step(predictions vehicle.PredictionMap) Decision {
	start := p.clock.Now()
	d := p.ChooseNextState(predictions)
	p.RealizeNextState(d)

	p.cycle++
	d.Cycle = p.cycle
	d.RunID = p.runID
	d.Time = start
	d.Vehicles = len(predictions)
	d.Duration = p.clock.Since(start)
	return d
}

// Cycle runs one full planning cycle: the ego takes its position and speed
// from the input, keeps its committed lane, and the resulting decision is
// committed and handed to the sink.
func (p *Planner) Cycle(ctx context.Context, in Input) Decision {
	p.ego.S = in.S
	p.ego.D = in.D
	p.ego.V = math.Max(0, in.Speed)

	predictions := p.Predictions(in.Observations)
	d := p.Step(predictions)
	tracef("cycle %d %s -> %s lane=%d s=%.1f v=%.2f a=%.2f total=%.4g vehicles=%d in-lane=%d took=%s",
		d.Cycle, d.Previous, d.State, d.Lane, d.S, d.Speed, d.Accel, d.Total, d.Vehicles,
		predictions.Query().Count(d.Lane), d.Duration)

	if p.sink != nil {
		p.sink.HandleDecision(ctx, d)
	}
	return d
}
