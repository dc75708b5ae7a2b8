package units

import (
	"errors"
	"math"
	"testing"
)

// TestParse verifies that unit names parse case-insensitively across
// supported spellings and that unknown names return ErrUnknownUnit.
func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Unit
	}{
		{name: "canonical degF", in: "degF", want: DegF},
		{name: "canonical degC", in: "degC", want: DegC},
		{name: "short fahrenheit", in: "F", want: DegF},
		{name: "long celsius", in: "Celsius", want: DegC},
		{name: "kelvin", in: "kelvin", want: DegK},
		{name: "whitespace", in: " degC ", want: DegC},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	_, err := Parse("rankine")
	if !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("Parse(rankine) error = %v, want ErrUnknownUnit", err)
	}
}

// TestConvert verifies the linear conversions between supported units.
func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		from, to Unit
		want     float64
	}{
		{name: "C to F freezing", value: 0, from: DegC, to: DegF, want: 32},
		{name: "C to F boiling", value: 100, from: DegC, to: DegF, want: 212},
		{name: "C to F fifteen", value: 15, from: DegC, to: DegF, want: 59},
		{name: "F to C", value: 41, from: DegF, to: DegC, want: 5},
		{name: "identity", value: 12.5, from: DegF, to: DegF, want: 12.5},
		{name: "C to K", value: 0, from: DegC, to: DegK, want: 273.15},
		{name: "F to K", value: 32, from: DegF, to: DegK, want: 273.15},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Convert(tc.value, tc.from, tc.to)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Convert(%v, %s, %s) = %v, want %v", tc.value, tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestConvert_NaNPassesThrough(t *testing.T) {
	got := Convert(math.NaN(), DegC, DegF)
	if !math.IsNaN(got) {
		t.Fatalf("Convert(NaN) = %v, want NaN", got)
	}
}
