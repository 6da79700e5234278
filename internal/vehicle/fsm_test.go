package vehicle

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSuccessorStates(t *testing.T) {
	tests := []struct {
		name  string
		state ManeuverState
		lane  int
		want  []ManeuverState
	}{
		{"bootstrap", ConstantSpeed, 1, []ManeuverState{KeepLane}},
		{"keep lane centre", KeepLane, 1, []ManeuverState{KeepLane, PrepareLaneChangeLeft, PrepareLaneChangeRight}},
		{"keep lane leftmost", KeepLane, 0, []ManeuverState{KeepLane, PrepareLaneChangeRight}},
		{"keep lane rightmost", KeepLane, 2, []ManeuverState{KeepLane, PrepareLaneChangeLeft}},
		{"prepare left centre", PrepareLaneChangeLeft, 1, []ManeuverState{KeepLane, PrepareLaneChangeLeft, LaneChangeLeft}},
		{"prepare left at boundary", PrepareLaneChangeLeft, 0, []ManeuverState{KeepLane, PrepareLaneChangeLeft}},
		{"prepare right centre", PrepareLaneChangeRight, 1, []ManeuverState{KeepLane, PrepareLaneChangeRight, LaneChangeRight}},
		{"prepare right at boundary", PrepareLaneChangeRight, 2, []ManeuverState{KeepLane, PrepareLaneChangeRight}},
		{"lane change left", LaneChangeLeft, 0, []ManeuverState{KeepLane}},
		{"lane change right", LaneChangeRight, 2, []ManeuverState{KeepLane}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := New(tt.lane, 0, 0, 0, 0)
			v.Configure(DefaultProfile())
			v.State = tt.state
			if diff := cmp.Diff(tt.want, v.SuccessorStates()); diff != "" {
				t.Errorf("SuccessorStates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSuccessorStatesRespectLaneBounds(t *testing.T) {
	for lanes := 1; lanes <= 4; lanes++ {
		for lane := 0; lane < lanes; lane++ {
			for _, st := range AllStates {
				v := New(lane, 0, 0, 0, 0)
				p := DefaultProfile()
				p.LanesAvailable = lanes
				v.Configure(p)
				v.State = st
				for _, next := range v.SuccessorStates() {
					target := lane + next.LaneDirection()
					if !v.LaneValid(target) {
						t.Errorf("lanes=%d lane=%d state=%s: successor %s targets lane %d", lanes, lane, st, next, target)
					}
				}
			}
		}
	}
}

func TestSingleLaneRoadOnlyKeepsLane(t *testing.T) {
	v := New(0, 0, 0, 0, 0)
	p := DefaultProfile()
	p.LanesAvailable = 1
	v.Configure(p)
	v.State = KeepLane

	if diff := cmp.Diff([]ManeuverState{KeepLane}, v.SuccessorStates()); diff != "" {
		t.Errorf("SuccessorStates() mismatch (-want +got):\n%s", diff)
	}
}
