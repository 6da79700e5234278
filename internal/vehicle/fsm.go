package vehicle

// SuccessorStates lists the states the machine may move to from the current
// state, in evaluation order. Keep-Lane always comes first. A lane change
// is only reachable from its prepare state and always returns to Keep-Lane
// after one step.
func (v Vehicle) SuccessorStates() []ManeuverState {
	canLeft := v.Lane > 0
	canRight := v.Lane < v.LanesAvailable-1

	states := []ManeuverState{KeepLane}
	switch v.State {
	case KeepLane:
		if canLeft {
			states = append(states, PrepareLaneChangeLeft)
		}
		if canRight {
			states = append(states, PrepareLaneChangeRight)
		}
	case PrepareLaneChangeLeft:
		states = append(states, PrepareLaneChangeLeft)
		if canLeft {
			states = append(states, LaneChangeLeft)
		}
	case PrepareLaneChangeRight:
		states = append(states, PrepareLaneChangeRight)
		if canRight {
			states = append(states, LaneChangeRight)
		}
	}
	return states
}
