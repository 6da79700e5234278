// Package telemetry speaks the simulator's socket.io-over-websocket protocol.
// It decodes telemetry events into planner inputs, runs one planning cycle per
// event and answers with the control path.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/units"
)

// Socket.io framing: "4" is a message, "2" an event.
const eventPrefix = "42"

// ManualReply tells the simulator to keep manual control.
const ManualReply = `42["manual",{}]`

// TelemetryEvent is the event name carrying ego and sensor fusion data.
const TelemetryEvent = "telemetry"

var (
	// ErrNotEvent is returned for frames that are not socket.io events.
	ErrNotEvent = errors.New("telemetry: not a socket.io event")
	// ErrNoData is returned for events whose payload is null.
	ErrNoData = errors.New("telemetry: event carries no data")
	// ErrUnexpectedEvent is returned when an event other than telemetry
	// reaches DecodeTelemetry.
	ErrUnexpectedEvent = errors.New("telemetry: unexpected event")
)

// ExtractEvent returns the JSON array of a socket.io event frame, the text
// between the first '[' and the last ']'.
func ExtractEvent(msg string) (string, error) {
	if len(msg) <= len(eventPrefix) || !strings.HasPrefix(msg, eventPrefix) {
		return "", ErrNotEvent
	}
	start := strings.IndexByte(msg, '[')
	end := strings.LastIndexByte(msg, ']')
	if start < 0 || end <= start {
		return "", ErrNotEvent
	}
	payload := msg[start : end+1]

	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotEvent, err)
	}
	if len(parts) < 2 || bytes.Equal(bytes.TrimSpace(parts[1]), []byte("null")) {
		return "", ErrNoData
	}
	return payload, nil
}

// Observation is one sensor fusion row: [id, x, y, vx, vy, s, d].
type Observation struct {
	ID int
	X  float64
	Y  float64
	VX float64 // m/s
	VY float64 // m/s
	S  float64
	D  float64
}

// UnmarshalJSON decodes the positional array form.
func (o *Observation) UnmarshalJSON(b []byte) error {
	var row []float64
	if err := json.Unmarshal(b, &row); err != nil {
		return fmt.Errorf("sensor fusion row: %w", err)
	}
	if len(row) < 7 {
		return fmt.Errorf("sensor fusion row has %d fields, want 7", len(row))
	}
	*o = Observation{
		ID: int(row[0]),
		X:  row[1],
		Y:  row[2],
		VX: row[3],
		VY: row[4],
		S:  row[5],
		D:  row[6],
	}
	return nil
}

// MarshalJSON encodes the positional array form.
func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{float64(o.ID), o.X, o.Y, o.VX, o.VY, o.S, o.D})
}

// Speed is the magnitude of the observed velocity.
func (o Observation) Speed() float64 {
	return math.Hypot(o.VX, o.VY)
}

// Lane returns floor(d/laneWidth) clamped to [0, lanes).
func (o Observation) Lane(laneWidth float64, lanes int) int {
	if laneWidth <= 0 || lanes < 1 {
		return 0
	}
	lane := int(math.Floor(o.D / laneWidth))
	if lane < 0 {
		return 0
	}
	if lane >= lanes {
		return lanes - 1
	}
	return lane
}

// Telemetry is the simulator's per-tick report.
type Telemetry struct {
	X             float64       `json:"x"`
	Y             float64       `json:"y"`
	S             float64       `json:"s"`
	D             float64       `json:"d"`
	Yaw           float64       `json:"yaw"`   // degrees
	SpeedMPH      float64       `json:"speed"` // mph
	PreviousPathX []float64     `json:"previous_path_x"`
	PreviousPathY []float64     `json:"previous_path_y"`
	EndPathS      float64       `json:"end_path_s"`
	EndPathD      float64       `json:"end_path_d"`
	SensorFusion  []Observation `json:"sensor_fusion"`
}

// DecodeTelemetry parses an event array produced by ExtractEvent.
func DecodeTelemetry(payload string) (Telemetry, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return Telemetry{}, fmt.Errorf("decode event: %w", err)
	}
	if len(parts) < 2 {
		return Telemetry{}, ErrNoData
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Telemetry{}, fmt.Errorf("decode event name: %w", err)
	}
	if name != TelemetryEvent {
		return Telemetry{}, fmt.Errorf("%w: %q", ErrUnexpectedEvent, name)
	}
	var t Telemetry
	if err := json.Unmarshal(parts[1], &t); err != nil {
		return Telemetry{}, fmt.Errorf("decode telemetry: %w", err)
	}
	return t, nil
}

// SpeedMPS returns the ego speed in metres per second.
func (t Telemetry) SpeedMPS() float64 {
	return units.ToMPS(t.SpeedMPH, units.MPH)
}

// PreviousPath returns the part of the last control path the simulator has
// not consumed yet.
func (t Telemetry) PreviousPath() Path {
	n := min(len(t.PreviousPathX), len(t.PreviousPathY))
	return Path{X: t.PreviousPathX[:n], Y: t.PreviousPathY[:n]}
}

// Input converts the telemetry into a planner input.
func (t Telemetry) Input() planner.Input {
	obs := make([]planner.Observation, len(t.SensorFusion))
	for i, o := range t.SensorFusion {
		obs[i] = planner.Observation{ID: o.ID, S: o.S, D: o.D, VX: o.VX, VY: o.VY}
	}
	return planner.Input{
		S:            t.S,
		D:            t.D,
		Speed:        t.SpeedMPS(),
		Observations: obs,
	}
}

// Path is a sequence of map-frame waypoints for the simulator to follow.
type Path struct {
	X []float64 `json:"next_x"`
	Y []float64 `json:"next_y"`
}

// Len returns the number of waypoints.
func (p Path) Len() int { return min(len(p.X), len(p.Y)) }

// EncodeControl frames path as a control event.
func EncodeControl(path Path) (string, error) {
	if path.X == nil {
		path.X = []float64{}
	}
	if path.Y == nil {
		path.Y = []float64{}
	}
	body, err := json.Marshal(path)
	if err != nil {
		return "", fmt.Errorf("encode control: %w", err)
	}
	return `42["control",` + string(body) + `]`, nil
}
