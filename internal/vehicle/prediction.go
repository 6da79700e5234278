package vehicle

import (
	"math"
	"sort"
)

// PredictionMap maps a tracked vehicle id to its predicted snapshots, one per
// planning step starting at the current instant.
type PredictionMap map[int][]Vehicle

// GeneratePredictions projects the vehicle forward for horizon planning
// steps assuming it holds its lane and speed. Step i sits at S + V·dt·i.
// A horizon of zero or less yields the current snapshot alone.
func (v Vehicle) GeneratePredictions(horizon int) []Vehicle {
	if horizon <= 0 {
		return []Vehicle{v}
	}
	out := make([]Vehicle, horizon)
	for i := range out {
		p := v
		p.S = v.PositionAt(i)
		p.A = 0
		out[i] = p
	}
	return out
}

// laneEntry is one tracked vehicle's prediction sequence.
type laneEntry struct {
	id  int
	seq []Vehicle
}

// at returns the prediction at step. Steps past the horizon extrapolate the
// last sample at constant speed.
func (e laneEntry) at(step int) Vehicle {
	if step < 0 {
		step = 0
	}
	last := len(e.seq) - 1
	if step <= last {
		return e.seq[step]
	}
	p := e.seq[last]
	p.S = p.PositionAt(step - last)
	p.A = 0
	return p
}

// LaneQuery answers nearest-vehicle questions over a PredictionMap. Entries
// are grouped by lane and ordered by id so that equal gaps always resolve
// to the lowest id.
type LaneQuery struct {
	byLane map[int][]laneEntry
}

// Query indexes the map by lane. Vehicles keep their lane over the whole
// horizon, so the first prediction decides the lane.
func (p PredictionMap) Query() LaneQuery {
	ids := make([]int, 0, len(p))
	for id, seq := range p {
		if len(seq) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	q := LaneQuery{byLane: make(map[int][]laneEntry)}
	for _, id := range ids {
		seq := p[id]
		lane := seq[0].Lane
		q.byLane[lane] = append(q.byLane[lane], laneEntry{id: id, seq: seq})
	}
	return q
}

// Count returns the number of tracked vehicles in lane.
func (q LaneQuery) Count(lane int) int {
	return len(q.byLane[lane])
}

// Ahead returns the vehicle in lane with the smallest positive gap in front
// of s at the given prediction step.
func (q LaneQuery) Ahead(lane int, s float64, step int) (Vehicle, bool) {
	var (
		best  Vehicle
		found bool
		gap   = math.Inf(1)
	)
	for _, e := range q.byLane[lane] {
		p := e.at(step)
		if g := p.S - s; g > 0 && g < gap {
			gap, best, found = g, p, true
		}
	}
	return best, found
}

// Behind returns the vehicle in lane with the smallest positive gap behind s
// at the given prediction step.
func (q LaneQuery) Behind(lane int, s float64, step int) (Vehicle, bool) {
	var (
		best  Vehicle
		found bool
		gap   = math.Inf(1)
	)
	for _, e := range q.byLane[lane] {
		p := e.at(step)
		if g := s - p.S; g > 0 && g < gap {
			gap, best, found = g, p, true
		}
	}
	return best, found
}

// Nearest returns the vehicle in lane closest to s in either direction at
// the given prediction step, with its absolute longitudinal distance. A
// vehicle level with s is at distance zero.
func (q LaneQuery) Nearest(lane int, s float64, step int) (Vehicle, float64, bool) {
	var (
		best  Vehicle
		found bool
		dist  = math.Inf(1)
	)
	for _, e := range q.byLane[lane] {
		p := e.at(step)
		if d := math.Abs(p.S - s); d < dist {
			dist, best, found = d, p, true
		}
	}
	return best, dist, found
}

// Occupied reports whether any vehicle in lane is closer than window to s at
// the given prediction step.
func (q LaneQuery) Occupied(lane int, s float64, step int, window float64) bool {
	_, dist, ok := q.Nearest(lane, s, step)
	return ok && dist < window
}
