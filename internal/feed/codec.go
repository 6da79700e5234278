package feed

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// DecisionToStruct converts d to its JSON form wrapped in a Struct.
func DecisionToStruct(d planner.Decision) (*structpb.Struct, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return s, nil
}

// StructToDecision reverses DecisionToStruct. The trajectory is not carried.
func StructToDecision(s *structpb.Struct) (planner.Decision, error) {
	var d planner.Decision
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return d, fmt.Errorf("failed to marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("failed to decode decision: %w", err)
	}
	return d, nil
}
