// Package source implements the temperature indexing engine: a per-station
// weather source that lazily fetches missing years from a remote archive,
// merges them into a sparse fixed-frequency series, persists the series
// through a cache, and answers interval-average queries.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gridsight/weather-index/internal/cache"
	"github.com/gridsight/weather-index/internal/client"
	"github.com/gridsight/weather-index/internal/observability"
	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

var (
	// ErrStationNotFound means no candidate station id yielded any data
	// across the entire requested year range.
	ErrStationNotFound = errors.New("station not found in source archive")

	// ErrInvalidInterval means the caller passed a zero or negative
	// duration, or a malformed timestamp index.
	ErrInvalidInterval = errors.New("invalid query interval")
)

// State is the engine's lifecycle state, visible for logging and tests.
type State int

const (
	Uninitialized State = iota
	Populating
	Ready
)

func (s State) String() string {
	switch s {
	case Populating:
		return "populating"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Config holds the dependencies for a WeatherSource.
type Config struct {
	// Station is the caller-facing station code, used in cache keys and logs.
	Station string
	// Candidates are the full station ids to try in order. Defaults to
	// [Station] when empty.
	Candidates []string
	Client     client.RemoteDataClient
	Cache      cache.SeriesCache
	Logger     *zap.Logger
	// Clock drives the yesterday-freshness check. Defaults to the real clock.
	Clock clockwork.Clock
}

// WeatherSource answers average-temperature queries for one station,
// fetching missing years on demand. A fetched year is stored as a full
// grid of buckets with explicit missing markers for readings the archive
// lacked, so "attempted, no data" is distinguishable from "never attempted".
// Safe for concurrent use: merges and reads are serialized internally.
type WeatherSource struct {
	station    string
	candidates []string
	client     client.RemoteDataClient
	cache      cache.SeriesCache
	cacheKey   string
	logger     *zap.Logger
	clock      clockwork.Clock

	mu        sync.Mutex
	state     State
	data      *series.Series
	attempted map[int]bool // years fetched this session; not persisted
}

// New constructs a WeatherSource, restoring any cached series. If the
// restored series has an explicit missing value for yesterday, the current
// year is re-fetched once: the archive may simply not have published it yet.
func New(ctx context.Context, cfg Config) (*WeatherSource, error) {
	if cfg.Station == "" {
		return nil, fmt.Errorf("source: station is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("source: remote client is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewInMemoryCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	candidates := cfg.Candidates
	if len(candidates) == 0 {
		candidates = []string{cfg.Station}
	}

	s := &WeatherSource{
		station:    cfg.Station,
		candidates: candidates,
		client:     cfg.Client,
		cache:      cfg.Cache,
		cacheKey:   cache.Key(cfg.Station, cfg.Client.Kind(), cfg.Client.Resolution()),
		logger:     cfg.Logger.With(zap.String("station", cfg.Station), zap.String("source", cfg.Client.Kind())),
		clock:      cfg.Clock,
		data:       series.New(cfg.Client.Resolution(), cfg.Client.Unit()),
		attempted:  make(map[int]bool),
	}

	s.restoreFromCache(ctx)
	s.setState(Ready)

	if s.staleYesterday() {
		year := s.clock.Now().UTC().Year()
		s.logger.Info("yesterday's reading missing, re-fetching current year", zap.Int("year", year))
		if err := s.EnsureYears(ctx, year, year, true); err != nil && !errors.Is(err, ErrStationNotFound) {
			return nil, err
		}
	}
	return s, nil
}

// Station returns the caller-facing station code.
func (s *WeatherSource) Station() string { return s.station }

// Resolution returns the source's native frequency.
func (s *WeatherSource) Resolution() series.Frequency { return s.client.Resolution() }

// Kind returns the upstream source kind (gsod, isd, tmy3, ...).
func (s *WeatherSource) Kind() string { return s.client.Kind() }

// State returns the engine's current lifecycle state.
func (s *WeatherSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *WeatherSource) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

func (s *WeatherSource) restoreFromCache(ctx context.Context) {
	snap, ok, err := s.cache.Load(ctx, s.cacheKey)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("load").Inc()
		s.logger.Warn("series cache load failed", zap.Error(err))
		return
	}
	if !ok {
		observability.CacheHitsTotal.WithLabelValues("miss").Inc()
		return
	}
	if err := s.data.Restore(snap); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("load").Inc()
		s.logger.Warn("series cache entry unreadable, starting empty", zap.Error(err))
		s.data = series.New(s.client.Resolution(), s.client.Unit())
		return
	}
	observability.CacheHitsTotal.WithLabelValues("hit").Inc()
	s.logger.Debug("series restored from cache", zap.Int("points", s.data.Len()))
}

// staleYesterday reports whether yesterday's bucket exists but holds an
// explicit missing value, the signature of upstream publication lag.
func (s *WeatherSource) staleYesterday() bool {
	yesterday := s.clock.Now().UTC().AddDate(0, 0, -1)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.At(yesterday)
	return ok && p.Missing
}

// EnsureYears fetches every year in [first, last] that has not yet been
// attempted this session (or is already present from cache). force bypasses
// both checks and always re-queries the remote source. Per-year failures
// degrade to missing data; ErrStationNotFound is returned only when the
// entire requested range ended up with no data at all. Revisiting a year
// whose earlier attempt produced nothing fills it with missing markers, so
// from then on queries over it read null instead of erroring.
func (s *WeatherSource) EnsureYears(ctx context.Context, first, last int, force bool) error {
	if first > last {
		return fmt.Errorf("%w: year range %d..%d", ErrInvalidInterval, first, last)
	}
	for year := first; year <= last; year++ {
		s.mu.Lock()
		attempted := s.attempted[year]
		present := s.data.HasYear(year)
		s.attempted[year] = true
		s.mu.Unlock()
		if !force && present {
			continue
		}
		if !force && attempted {
			s.fillEmptyYear(ctx, year)
			continue
		}

		s.setState(Populating)
		s.populateYear(ctx, year)
	}
	s.setState(Ready)

	s.mu.Lock()
	defer s.mu.Unlock()
	for year := first; year <= last; year++ {
		if s.data.HasYear(year) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s, years %d..%d)", ErrStationNotFound, s.station, s.client.Kind(), first, last)
}

// populateYear tries each candidate station id in order and merges the
// first successful fetch. All fetch failures are logged and counted, never
// propagated: a bad network call must not abort a multi-year fetch.
func (s *WeatherSource) populateYear(ctx context.Context, year int) {
	kind := s.client.Kind()
	for i, candidate := range s.candidates {
		start := time.Now()
		points, err := s.client.FetchYear(ctx, candidate, year)
		observability.RemoteFetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err == nil && len(points) == 0 {
			err = client.ErrNoData
		}
		if err != nil {
			observability.RemoteFetchErrorsTotal.WithLabelValues(kind, string(client.CategorizeError(err))).Inc()
			if i < len(s.candidates)-1 {
				observability.CandidateFallbacksTotal.WithLabelValues(kind).Inc()
				s.logger.Info("candidate yielded no data, trying next",
					zap.String("candidate", candidate), zap.Int("year", year), zap.Error(err))
				continue
			}
			observability.RemoteFetchesTotal.WithLabelValues(kind, fetchResult(err)).Inc()
			s.logger.Warn("all candidates failed for year",
				zap.Int("year", year), zap.Int("candidates", len(s.candidates)), zap.Error(err))
			return
		}

		observability.RemoteFetchesTotal.WithLabelValues(kind, "success").Inc()
		s.mergeYear(ctx, year, candidate, points)
		return
	}
}

// mergeYear merges a fetched year into the series as a full grid: every
// bucket of the year exists afterwards, explicitly missing where the fetch
// had nothing. Points outside the year are dropped so they cannot mark a
// neighboring year as fetched. The cache is rewritten after the merge.
func (s *WeatherSource) mergeYear(ctx context.Context, year int, candidate string, points []series.Point) {
	yearStart := series.YearAnchor(year)
	yearEnd := series.YearAnchor(year + 1)

	merged := s.yearGrid(yearStart, yearEnd)
	for _, p := range points {
		if p.Time.Before(yearStart) || !p.Time.Before(yearEnd) {
			continue
		}
		merged = append(merged, p)
	}

	s.mu.Lock()
	s.data.Merge(merged)
	snap := s.data.Snapshot()
	n := s.data.Len()
	s.mu.Unlock()

	s.logger.Info("year merged",
		zap.Int("year", year),
		zap.String("candidate", candidate),
		zap.Int("raw_points", len(points)),
		zap.Int("series_points", n))

	if err := s.cache.Save(ctx, s.cacheKey, snap); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("save").Inc()
		s.logger.Warn("series cache save failed", zap.Error(err))
	}
}

// fillEmptyYear merges a full grid of missing markers for a year whose
// fetch already failed this session. This creates the year's anchor and is
// persisted, so later queries (and later sessions restoring the cache) see
// "attempted, no data" rather than retrying or erroring.
func (s *WeatherSource) fillEmptyYear(ctx context.Context, year int) {
	grid := s.yearGrid(series.YearAnchor(year), series.YearAnchor(year+1))

	s.mu.Lock()
	s.data.Merge(grid)
	snap := s.data.Snapshot()
	s.mu.Unlock()

	s.logger.Info("year marked empty after failed fetch", zap.Int("year", year))
	if err := s.cache.Save(ctx, s.cacheKey, snap); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("save").Inc()
		s.logger.Warn("series cache save failed", zap.Error(err))
	}
}

// yearGrid builds explicit missing markers for every native-frequency
// bucket in [start, end).
func (s *WeatherSource) yearGrid(start, end time.Time) []series.Point {
	step := s.client.Resolution().Step()
	grid := make([]series.Point, 0, int(end.Sub(start)/step))
	for t := start; t.Before(end); t = t.Add(step) {
		grid = append(grid, series.Point{Time: t, Missing: true})
	}
	return grid
}

func fetchResult(err error) string {
	if errors.Is(err, client.ErrNoData) {
		return "no_data"
	}
	return "error"
}

// AverageOver returns the arithmetic mean temperature over
// [start, start+duration) in the requested unit, at the source's native
// resolution. Years overlapped by the interval are fetched on demand.
// The result is NaN when every underlying reading is missing.
func (s *WeatherSource) AverageOver(ctx context.Context, start time.Time, duration time.Duration, unit units.Unit) (float64, error) {
	began := time.Now()
	if duration <= 0 {
		observability.QueriesTotal.WithLabelValues("average_over", "invalid").Inc()
		return math.NaN(), fmt.Errorf("%w: duration %v", ErrInvalidInterval, duration)
	}
	end := start.Add(duration)
	if err := s.EnsureYears(ctx, start.UTC().Year(), end.Add(-time.Nanosecond).UTC().Year(), false); err != nil {
		observability.QueriesTotal.WithLabelValues("average_over", "station_not_found").Inc()
		return math.NaN(), err
	}

	s.mu.Lock()
	mean := s.data.MeanBetween(start, end, unit)
	s.mu.Unlock()

	observability.QueriesTotal.WithLabelValues("average_over", "ok").Inc()
	observability.QueryDuration.WithLabelValues("average_over").Observe(time.Since(began).Seconds())
	return mean, nil
}

// IndexedTemperatures returns temperatures aligned to the given ordered
// timestamp index at the requested frequency, converted to unit. Missing
// readings and never-fetched buckets come back as NaN. The frequency must
// be the source's native resolution or coarser.
func (s *WeatherSource) IndexedTemperatures(ctx context.Context, index []time.Time, freq series.Frequency, unit units.Unit) ([]float64, error) {
	began := time.Now()
	if len(index) == 0 {
		observability.QueriesTotal.WithLabelValues("indexed", "invalid").Inc()
		return nil, fmt.Errorf("%w: empty index", ErrInvalidInterval)
	}
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			observability.QueriesTotal.WithLabelValues("indexed", "invalid").Inc()
			return nil, fmt.Errorf("%w: index not strictly ascending at position %d", ErrInvalidInterval, i)
		}
	}

	// Reject unsupported frequencies before any fetching: the contract is
	// an error, never partial data.
	s.mu.Lock()
	_, err := s.data.ResampleTo(freq)
	s.mu.Unlock()
	if err != nil {
		observability.QueriesTotal.WithLabelValues("indexed", "unsupported_frequency").Inc()
		return nil, err
	}

	first := index[0].UTC().Year()
	last := index[len(index)-1].UTC().Year()
	if err := s.EnsureYears(ctx, first, last, false); err != nil {
		observability.QueriesTotal.WithLabelValues("indexed", "station_not_found").Inc()
		return nil, err
	}

	s.mu.Lock()
	resampled, err := s.data.ResampleTo(freq)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(index))
	for i, t := range index {
		p, ok := resampled.At(t)
		if !ok || p.Missing {
			out[i] = math.NaN()
			continue
		}
		out[i] = units.Convert(p.Value, resampled.Unit(), unit)
	}

	observability.QueriesTotal.WithLabelValues("indexed", "ok").Inc()
	observability.QueryDuration.WithLabelValues("indexed").Observe(time.Since(began).Seconds())
	return out, nil
}
