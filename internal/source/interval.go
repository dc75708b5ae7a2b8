package source

import (
	"context"
	"fmt"
	"time"

	"github.com/gridsight/weather-index/internal/units"
)

// Period is one consumption/billing period.
type Period struct {
	Start    time.Time
	Duration time.Duration
}

// PeriodsByFuel groups consumption periods by fuel or category, the shape
// billing data arrives in from the usage pipeline.
type PeriodsByFuel map[string][]Period

// ForFuel returns the periods recorded for a fuel, preserving their
// recorded order.
func (p PeriodsByFuel) ForFuel(fuel string) []Period {
	return p[fuel]
}

// IntervalQuery maps consumption periods to their average temperatures
// against a single weather source.
type IntervalQuery struct {
	Source *WeatherSource
}

// AverageTemperatures returns one average temperature per period, in the
// same order as the input. A period whose readings are all missing yields
// NaN at its position; a structurally invalid period fails the whole query
// immediately.
func (q IntervalQuery) AverageTemperatures(ctx context.Context, periods []Period, unit units.Unit) ([]float64, error) {
	out := make([]float64, len(periods))
	for i, p := range periods {
		if p.Duration <= 0 {
			return nil, fmt.Errorf("%w: period %d has duration %v", ErrInvalidInterval, i, p.Duration)
		}
		avg, err := q.Source.AverageOver(ctx, p.Start, p.Duration, unit)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i, err)
		}
		out[i] = avg
	}
	return out, nil
}
