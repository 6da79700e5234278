package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to kph", 10.0, KPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units default to mps", 10.0, "unknown", 10.0},
		{"planner target 22 m/s to mph", 22.0, MPH, 49.2126},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertSpeed(tt.speedMPS, tt.units)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("ConvertSpeed(%f, %s) = %f, want %f", tt.speedMPS, tt.units, result, tt.expected)
			}
		})
	}
}

func TestToMPS(t *testing.T) {
	tests := []struct {
		name     string
		speed    float64
		units    string
		expected float64
	}{
		{"simulator 50 mph", 50, MPH, 22.352},
		{"36 kmph", 36, KMPH, 10},
		{"mps passthrough", 7.5, MPS, 7.5},
		{"unknown passthrough", 7.5, "furlongs", 7.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToMPS(tt.speed, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ToMPS(%f, %s) = %f, want %f", tt.speed, tt.units, result, tt.expected)
			}
			if back := ConvertSpeed(result, tt.units); IsValid(tt.units) && math.Abs(back-tt.speed) > 1e-9 {
				t.Errorf("round trip through %s gave %f, want %f", tt.units, back, tt.speed)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mps", MPS, true},
		{"valid mph", MPH, true},
		{"valid kmph", KMPH, true},
		{"valid kph", KPH, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "MPH", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "mps, mph, kmph, kph" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
