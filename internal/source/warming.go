package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gridsight/weather-index/internal/observability"
)

// Prewarmer populates the series cache ahead of queries by fetching a year
// range for a set of weather sources. Sources warm concurrently; each
// source serializes its own merges.
type Prewarmer struct {
	logger *zap.Logger
}

// NewPrewarmer creates a Prewarmer using the given logger.
func NewPrewarmer(logger *zap.Logger) *Prewarmer {
	return &Prewarmer{logger: logger}
}

// Warm fetches years [first, last] for each source concurrently and reports
// an aggregated error when any source ended up with no data.
func (w *Prewarmer) Warm(ctx context.Context, sources []*WeatherSource, first, last int) error {
	start := time.Now()
	observability.PrewarmTotal.Inc()
	if w.logger != nil {
		w.logger.Info("prewarming series cache",
			zap.Int("sources", len(sources)), zap.Int("first_year", first), zap.Int("last_year", last))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(sources))
	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.EnsureYears(ctx, first, last, false); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", src.Station(), err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.PrewarmDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("prewarm complete",
			zap.Int("sources", len(sources)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.PrewarmErrorsTotal.Inc()
		return fmt.Errorf("prewarm: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done. Periodic runs keep the current year fresh as archives
// publish new days.
func (w *Prewarmer) WarmPeriodic(ctx context.Context, sources []*WeatherSource, first, last int, interval time.Duration) error {
	if err := w.Warm(ctx, sources, first, last); err != nil && w.logger != nil {
		w.logger.Warn("initial prewarm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			year := time.Now().UTC().Year()
			for _, src := range sources {
				if err := src.EnsureYears(ctx, year, year, true); err != nil && w.logger != nil {
					w.logger.Warn("periodic refresh failed", zap.String("station", src.Station()), zap.Error(err))
				}
			}
		}
	}
}
