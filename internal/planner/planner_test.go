package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/timeutil"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	p.SetClock(timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	return p
}

// keepLaneEgo puts the planner's ego in Keep-Lane at lane with speed v.
func keepLaneEgo(p *Planner, lane int, s, v float64) {
	e := p.Ego()
	e.Lane = lane
	e.S = s
	e.D = e.LaneCenter(lane)
	e.V = v
	e.A = 0
	e.State = vehicle.KeepLane
	p.SetEgo(e)
}

func candidate(t *testing.T, d Decision, st vehicle.ManeuverState) Candidate {
	t.Helper()
	for _, c := range d.Candidates {
		if c.State == st {
			return c
		}
	}
	t.Fatalf("no candidate for %s in %+v", st, d.Candidates)
	return Candidate{}
}

func TestConfigFromTuningMatchesDefaults(t *testing.T) {
	if diff := cmp.Diff(DefaultConfig(), ConfigFromTuning(config.DefaultTuningConfig())); diff != "" {
		t.Errorf("ConfigFromTuning mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero step", func(c *Config) { c.PlanningStep = 0 }},
		{"zero horizon", func(c *Config) { c.Horizon = 0 }},
		{"single-step horizon", func(c *Config) { c.Horizon = 1 }},
		{"start lane off road", func(c *Config) { c.StartLane = 3 }},
		{"no target speed", func(c *Config) { c.Profile.TargetSpeed = 0 }},
		{"weights out of order", func(c *Config) { c.Weights.Buffer = 1e12 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestBootstrapStartsInConstantSpeed(t *testing.T) {
	p := newTestPlanner(t)
	e := p.Ego()
	assert.Equal(t, vehicle.ConstantSpeed, e.State)
	assert.Equal(t, 1, e.Lane)
	assert.Equal(t, 1.2, e.Dt)
}

// Scenario A: an empty road keeps the lane and accelerates toward target.
func TestEmptyRoadKeepsLane(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()

	first := p.Cycle(ctx, Input{S: 100, D: 6, Speed: 5})
	assert.Equal(t, vehicle.ConstantSpeed, first.Previous)
	assert.Equal(t, vehicle.KeepLane, first.State)
	require.Len(t, first.Candidates, 1)
	assert.Equal(t, 1, first.Lane)
	assert.InDelta(t, 5+10*1.2, first.Speed, 1e-9)

	second := p.Cycle(ctx, Input{S: 120, D: 6, Speed: first.Speed})
	assert.Equal(t, vehicle.KeepLane, second.State)
	assert.Equal(t, 1, second.Lane)
	assert.Greater(t, second.Speed, first.Speed)
	assert.LessOrEqual(t, second.Speed-first.Speed, 10*1.2+1e-9)
	assert.InDelta(t, 22, second.Speed, 1e-9)
	assert.Len(t, second.Candidates, 3)
	assert.Equal(t, 0.0, second.Total)
}

// Scenario B: a slow lead inside the buffer caps Keep-Lane and makes
// preparing for the open adjacent lane cheaper.
func TestLeadInsideBufferPrefersPreparation(t *testing.T) {
	p := newTestPlanner(t)
	keepLaneEgo(p, 1, 100, 20)
	lead := Observation{ID: 4, S: 120, D: 6, VX: 20}
	pm := p.Predictions([]Observation{lead})

	d := p.ChooseNextState(pm)

	keep := candidate(t, d, vehicle.KeepLane)
	prep := candidate(t, d, vehicle.PrepareLaneChangeLeft)
	require.True(t, keep.Feasible)
	require.True(t, prep.Feasible)

	assert.LessOrEqual(t, keep.Speed, lead.Speed())
	assert.Less(t, prep.Evaluation.Total, keep.Evaluation.Total)
	assert.Equal(t, vehicle.PrepareLaneChangeLeft, d.State, "equal prepare costs resolve to the first enumerated")
	assert.Equal(t, 1, d.Lane, "preparation does not leave the lane")
	assert.Equal(t, vehicle.KeepLane, p.Ego().State, "choosing does not commit")
}

// Scenario C: an occupied target lane removes the lane change from
// consideration.
func TestOccupiedTargetLaneExcluded(t *testing.T) {
	p := newTestPlanner(t)
	keepLaneEgo(p, 1, 100, 20)
	e := p.Ego()
	e.State = vehicle.PrepareLaneChangeLeft
	p.SetEgo(e)

	alongside := Observation{ID: 9, S: 101, D: 2, VX: 20}
	d := p.Step(p.Predictions([]Observation{alongside}))

	lc := candidate(t, d, vehicle.LaneChangeLeft)
	assert.False(t, lc.Feasible)
	assert.NotEqual(t, vehicle.LaneChangeLeft, d.State)
	assert.Equal(t, 1, p.Ego().Lane)
}

func TestClearTargetLaneChangesLane(t *testing.T) {
	p := newTestPlanner(t)
	keepLaneEgo(p, 1, 100, 20)
	e := p.Ego()
	e.State = vehicle.PrepareLaneChangeLeft
	p.SetEgo(e)

	// Slow traffic ahead in lane 1 makes staying expensive.
	slow := Observation{ID: 2, S: 125, D: 6, VX: 12}
	d := p.Step(p.Predictions([]Observation{slow}))

	assert.Equal(t, vehicle.LaneChangeLeft, d.State)
	assert.Equal(t, 0, d.Lane)
	assert.True(t, d.LaneChanged())
	assert.Equal(t, 0, p.Ego().Lane)
	assert.Equal(t, p.Ego().LaneCenter(0), p.Ego().D)

	// A lane change always returns to Keep-Lane.
	next := p.Step(vehicle.PredictionMap{})
	assert.Equal(t, vehicle.KeepLane, next.State)
	require.Len(t, next.Candidates, 1)
}

func TestCycleDeliversDecisionToSink(t *testing.T) {
	p := newTestPlanner(t)
	p.SetRunID("run-1")

	var got []Decision
	p.SetSink(MultiSink{
		nil,
		SinkFunc(func(_ context.Context, d Decision) { got = append(got, d) }),
	})

	obs := []Observation{
		{ID: 1, S: 300, D: 2, VX: 15, VY: 0},
		{ID: 2, S: 50, D: 9.5, VX: 3, VY: 4},
	}
	d := p.Cycle(context.Background(), Input{S: 100, D: 6, Speed: 10, Observations: obs})

	require.Len(t, got, 1)
	if diff := cmp.Diff(d, got[0]); diff != "" {
		t.Errorf("sink decision mismatch (-returned +delivered):\n%s", diff)
	}
	assert.Equal(t, "run-1", d.RunID)
	assert.Equal(t, 1, d.Cycle)
	assert.Equal(t, 2, d.Vehicles)
	assert.Equal(t, time.Duration(0), d.Duration)
	assert.Equal(t, 100.0, d.S)

	p.Cycle(context.Background(), Input{S: 110, D: 6, Speed: 12})
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].Cycle)
}

func TestCycleTraceCountsLaneTraffic(t *testing.T) {
	var trace bytes.Buffer
	SetLogWriters(nil, nil, &trace)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	p := newTestPlanner(t)
	d := p.Cycle(context.Background(), Input{S: 100, D: 6, Speed: 10, Observations: []Observation{
		{ID: 1, S: 300, D: 6, VX: 15},
		{ID: 2, S: 50, D: 2, VX: 10},
	}})
	require.Equal(t, 1, d.Lane)
	assert.Contains(t, trace.String(), "vehicles=2 in-lane=1")
}

func TestPredictionsFromObservations(t *testing.T) {
	p := newTestPlanner(t)
	pm := p.Predictions([]Observation{
		{ID: 7, S: 200, D: 9.9, VX: 3, VY: 4},
		{ID: 8, S: 10, D: 14, VX: 20},
	})

	require.Len(t, pm[7], 2)
	assert.Equal(t, 2, pm[7][0].Lane)
	assert.InDelta(t, 5, pm[7][0].V, 1e-9)
	assert.InDelta(t, 200+5*1.2, pm[7][1].S, 1e-9)
	assert.Equal(t, 2, pm[8][0].Lane, "observations right of the road clamp to the last lane")
}

func TestCycleIsDeterministic(t *testing.T) {
	in := Input{S: 500, D: 6, Speed: 18, Observations: []Observation{
		{ID: 1, S: 520, D: 6, VX: 15},
		{ID: 2, S: 470, D: 2, VX: 25},
		{ID: 3, S: 560, D: 10, VX: 21},
	}}

	run := func() []Decision {
		p := newTestPlanner(t)
		var out []Decision
		for i := 0; i < 5; i++ {
			in.S += 20
			out = append(out, p.Cycle(context.Background(), in))
		}
		return out
	}
	a := run()
	in.S = 500
	b := run()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("identical inputs produced different decisions (-first +second):\n%s", diff)
	}
}

func TestCandidateJSONKeepsLeftmostLane(t *testing.T) {
	b, err := json.Marshal(Candidate{State: vehicle.LaneChangeLeft, Feasible: true, Lane: 0})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"lane":0`)
}
