package vehicle

import "math"

// Kinematics returns the speed and acceleration the vehicle can reach by the
// end of one planning step while driving in lane.
//
// Speed moves toward TargetSpeed by at most MaxAcceleration·dt in either
// direction and never goes negative. When a lead vehicle is found in lane
// the speed is also capped at lead.V + (gap − FollowingBuffer)/dt, which is
// below the lead's speed whenever the gap is inside the buffer. The returned
// acceleration is always (newV − V)/dt.
func (v Vehicle) Kinematics(predictions PredictionMap, lane int) (newV, newA float64) {
	return v.kinematics(predictions.Query(), lane)
}

func (v Vehicle) kinematics(q LaneQuery, lane int) (float64, float64) {
	lane = v.ClampLane(lane)
	dt := v.Step()
	maxDelta := v.MaxAcceleration * dt

	upper := math.Min(v.V+maxDelta, v.TargetSpeed)
	lower := math.Max(0, v.V-maxDelta)

	newV := upper
	if lead, ok := q.Ahead(lane, v.S, 0); ok {
		gap := lead.S - v.S
		newV = math.Min(newV, lead.V+(gap-v.FollowingBuffer)/dt)
	}
	if newV < lower {
		newV = lower
	}
	return newV, (newV - v.V) / dt
}
