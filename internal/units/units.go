package units

import (
	"errors"
	"fmt"
	"strings"
)

// Unit identifies a temperature unit of measure.
type Unit string

const (
	DegC Unit = "degC"
	DegF Unit = "degF"
	DegK Unit = "degK"
)

// ErrUnknownUnit is returned when a unit name is not recognized.
var ErrUnknownUnit = errors.New("unknown temperature unit")

// Parse resolves a unit name to a Unit. Names are matched case-insensitively
// and common spellings ("F", "fahrenheit", "degF") are accepted.
func Parse(name string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "degc", "c", "celsius":
		return DegC, nil
	case "degf", "f", "fahrenheit":
		return DegF, nil
	case "degk", "k", "kelvin":
		return DegK, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
}

// Convert converts value from one unit to another. NaN values pass through
// unchanged, so missing readings stay missing after conversion.
func Convert(value float64, from, to Unit) float64 {
	if from == to {
		return value
	}
	return fromCelsius(toCelsius(value, from), to)
}

func toCelsius(value float64, from Unit) float64 {
	switch from {
	case DegF:
		return (value - 32) * 5 / 9
	case DegK:
		return value - 273.15
	default:
		return value
	}
}

func fromCelsius(value float64, to Unit) float64 {
	switch to {
	case DegF:
		return value*9/5 + 32
	case DegK:
		return value + 273.15
	default:
		return value
	}
}
