package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsight/weather-index/internal/cache"
	"github.com/gridsight/weather-index/internal/client"
	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

type fetchCall struct {
	candidate string
	year      int
}

// fakeClient serves canned per-candidate, per-year points and records every
// fetch so tests can assert on remote call counts.
type fakeClient struct {
	kind  string
	res   series.Frequency
	unit  units.Unit
	data  map[string]map[int][]series.Point
	errs  map[string]error
	calls []fetchCall
}

func newDailyClient() *fakeClient {
	return &fakeClient{
		kind: "gsod",
		res:  series.Daily,
		unit: units.DegC,
		data: make(map[string]map[int][]series.Point),
		errs: make(map[string]error),
	}
}

func (f *fakeClient) set(candidate string, year int, points []series.Point) {
	if f.data[candidate] == nil {
		f.data[candidate] = make(map[int][]series.Point)
	}
	f.data[candidate][year] = points
}

func (f *fakeClient) FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error) {
	f.calls = append(f.calls, fetchCall{candidate: stationID, year: year})
	if err := f.errs[stationID]; err != nil {
		return nil, err
	}
	points, ok := f.data[stationID][year]
	if !ok {
		return nil, client.ErrNoData
	}
	return points, nil
}

func (f *fakeClient) Kind() string                 { return f.kind }
func (f *fakeClient) Resolution() series.Frequency { return f.res }
func (f *fakeClient) Unit() units.Unit             { return f.unit }

// spyCache counts loads and saves around an in-memory cache.
type spyCache struct {
	inner *cache.InMemoryCache
	loads int
	saves int
}

func newSpyCache() *spyCache {
	return &spyCache{inner: cache.NewInMemoryCache()}
}

func (c *spyCache) Load(ctx context.Context, key string) (series.Snapshot, bool, error) {
	c.loads++
	return c.inner.Load(ctx, key)
}

func (c *spyCache) Save(ctx context.Context, key string, snap series.Snapshot) error {
	c.saves++
	return c.inner.Save(ctx, key, snap)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// janPoints is the fixture from the billing-alignment scenario: Jan 1-3 2020
// daily readings 0C, 10C, missing.
func janPoints() []series.Point {
	return []series.Point{
		{Time: day(2020, time.January, 1), Value: 0},
		{Time: day(2020, time.January, 2), Value: 10},
		{Time: day(2020, time.January, 3), Missing: true},
	}
}

func newTestSource(t *testing.T, c client.RemoteDataClient, sc cache.SeriesCache) *WeatherSource {
	t.Helper()
	src, err := New(context.Background(), Config{
		Station: "725300",
		Client:  c,
		Cache:   sc,
		Clock:   clockwork.NewFakeClockAt(day(2021, time.June, 15)),
	})
	require.NoError(t, err)
	return src
}

func TestAverageOver_ConvertsAndExcludesMissing(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	// mean(0C, 10C) = 5C = 41F; the missing Jan 3 reading is excluded.
	avg, err := src.AverageOver(context.Background(), day(2020, time.January, 1), 72*time.Hour, units.DegF)
	require.NoError(t, err)
	assert.InDelta(t, 41.0, avg, 1e-9)

	avg, err = src.AverageOver(context.Background(), day(2020, time.January, 1), 48*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, avg, 1e-9)
}

func TestAverageOver_AllMissingIsNaN(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	// Jan 3 was fetched but missing; the rest of the year is grid-filled
	// missing markers. No crash, NaN result.
	avg, err := src.AverageOver(context.Background(), day(2020, time.January, 3), 24*time.Hour, units.DegF)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(avg))

	avg, err = src.AverageOver(context.Background(), day(2020, time.August, 1), 48*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(avg))
}

func TestAverageOver_InvalidDuration(t *testing.T) {
	fc := newDailyClient()
	src := newTestSource(t, fc, newSpyCache())

	_, err := src.AverageOver(context.Background(), day(2020, time.January, 1), 0, units.DegC)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.Empty(t, fc.calls, "invalid intervals must not trigger fetches")
}

func TestEnsureYears_FetchesEachYearOncePerSession(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2019, []series.Point{{Time: day(2019, time.January, 1), Value: 1}})
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	require.NoError(t, src.EnsureYears(context.Background(), 2019, 2020, false))
	require.NoError(t, src.EnsureYears(context.Background(), 2019, 2020, false))

	assert.Len(t, fc.calls, 2, "one fetch per year per session")
}

func TestEnsureYears_FailedYearNotRetriedWithinSession(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	// 2019 has no data; it is attempted once, then skipped.
	require.NoError(t, src.EnsureYears(context.Background(), 2019, 2020, false))
	require.NoError(t, src.EnsureYears(context.Background(), 2019, 2020, false))

	var fetches2019 int
	for _, call := range fc.calls {
		if call.year == 2019 {
			fetches2019++
		}
	}
	assert.Equal(t, 1, fetches2019)

	// Queries over the absent year return NaN, not an error, because the
	// range as a whole has data.
	avg, err := src.AverageOver(context.Background(), day(2019, time.March, 1), 24*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(avg))
}

func TestEnsureYears_EmptyYearBackfilledWithMissingMarkers(t *testing.T) {
	fc := newDailyClient() // no data for any year
	sc := newSpyCache()
	src := newTestSource(t, fc, sc)

	// The first attempt finds nothing anywhere in the range and surfaces it.
	err := src.EnsureYears(context.Background(), 2019, 2019, false)
	require.ErrorIs(t, err, ErrStationNotFound)
	require.Len(t, fc.calls, 1)

	// Revisiting the failed year fills it with missing markers instead of
	// refetching; queries over it now read null, not an error.
	require.NoError(t, src.EnsureYears(context.Background(), 2019, 2019, false))
	assert.Len(t, fc.calls, 1, "backfill must not refetch")

	avg, err := src.AverageOver(context.Background(), day(2019, time.March, 1), 24*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(avg))

	// The markers are persisted: a fresh source restoring the same cache
	// sees the year as attempted and makes zero remote calls.
	require.NotZero(t, sc.saves)
	fc2 := newDailyClient()
	src2 := newTestSource(t, fc2, sc)
	avg, err = src2.AverageOver(context.Background(), day(2019, time.March, 1), 24*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(avg))
	assert.Empty(t, fc2.calls, "persisted empty year requires no remote calls")
}

func TestEnsureYears_ForceRefetches(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	require.NoError(t, src.EnsureYears(context.Background(), 2020, 2020, false))
	require.NoError(t, src.EnsureYears(context.Background(), 2020, 2020, true))
	require.NoError(t, src.EnsureYears(context.Background(), 2020, 2020, true))

	assert.Len(t, fc.calls, 3, "force bypasses the attempted-year bound")
}

func TestEnsureYears_CandidateFallback(t *testing.T) {
	fc := newDailyClient()
	fc.errs["725300-94846"] = client.ErrRemoteUnavailable
	fc.set("725300-99999", 2020, janPoints())

	src, err := New(context.Background(), Config{
		Station:    "725300",
		Candidates: []string{"725300-94846", "725300-99999"},
		Client:     fc,
		Cache:      newSpyCache(),
		Clock:      clockwork.NewFakeClockAt(day(2021, time.June, 15)),
	})
	require.NoError(t, err)

	require.NoError(t, src.EnsureYears(context.Background(), 2020, 2020, false))
	require.Len(t, fc.calls, 2)
	assert.Equal(t, "725300-94846", fc.calls[0].candidate, "candidates are tried in order")
	assert.Equal(t, "725300-99999", fc.calls[1].candidate)

	avg, err := src.AverageOver(context.Background(), day(2020, time.January, 1), 48*time.Hour, units.DegC)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, avg, 1e-9, "first candidate that yields data wins")
}

func TestEnsureYears_StationNotFound(t *testing.T) {
	fc := newDailyClient() // no data for any candidate or year
	src := newTestSource(t, fc, newSpyCache())

	err := src.EnsureYears(context.Background(), 2019, 2020, false)
	assert.ErrorIs(t, err, ErrStationNotFound, "entire range empty surfaces StationNotFound")

	// A later query over a range with data succeeds; the failed source
	// corrupted nothing.
	fc.set("725300", 2021, []series.Point{{Time: day(2021, time.January, 1), Value: 3}})
	require.NoError(t, src.EnsureYears(context.Background(), 2021, 2021, false))
}

func TestAverageOver_CachedYearNeedsNoRemoteCalls(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	sc := newSpyCache()

	// First source populates the cache.
	src := newTestSource(t, fc, sc)
	_, err := src.AverageOver(context.Background(), day(2020, time.January, 1), 72*time.Hour, units.DegF)
	require.NoError(t, err)
	require.NotEmpty(t, fc.calls)

	// A fresh source in a new "session" restores from cache; the year
	// anchor is present so no remote call happens.
	fc2 := newDailyClient()
	src2 := newTestSource(t, fc2, sc)

	avg, err := src2.AverageOver(context.Background(), day(2020, time.January, 1), 72*time.Hour, units.DegF)
	require.NoError(t, err)
	assert.InDelta(t, 41.0, avg, 1e-9, "cached values are returned unchanged")
	assert.Empty(t, fc2.calls, "cached year requires zero remote calls")
}

func TestNew_StaleYesterdayForcesCurrentYearRefetch(t *testing.T) {
	now := day(2020, time.June, 15)

	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	sc := newSpyCache()

	// Seed the cache with a 2020 series whose June 14 bucket is an explicit
	// missing marker, as if the archive had not yet published it.
	seeded := series.New(series.Daily, units.DegC)
	seeded.Merge([]series.Point{
		{Time: day(2020, time.January, 1), Value: 0},
		{Time: day(2020, time.June, 14), Missing: true},
	})
	require.NoError(t, sc.Save(context.Background(), cache.Key("725300", "gsod", series.Daily), seeded.Snapshot()))

	src, err := New(context.Background(), Config{
		Station: "725300",
		Client:  fc,
		Cache:   sc,
		Clock:   clockwork.NewFakeClockAt(now),
	})
	require.NoError(t, err)
	require.Len(t, fc.calls, 1, "stale yesterday triggers one forced refetch")
	assert.Equal(t, 2020, fc.calls[0].year)
	assert.Equal(t, Ready, src.State())
}

func TestNew_FreshCacheSkipsRefetch(t *testing.T) {
	now := day(2020, time.June, 15)

	fc := newDailyClient()
	sc := newSpyCache()
	seeded := series.New(series.Daily, units.DegC)
	seeded.Merge([]series.Point{
		{Time: day(2020, time.January, 1), Value: 0},
		{Time: day(2020, time.June, 14), Value: 21.5},
	})
	require.NoError(t, sc.Save(context.Background(), cache.Key("725300", "gsod", series.Daily), seeded.Snapshot()))

	_, err := New(context.Background(), Config{
		Station: "725300",
		Client:  fc,
		Cache:   sc,
		Clock:   clockwork.NewFakeClockAt(now),
	})
	require.NoError(t, err)
	assert.Empty(t, fc.calls)
}

func TestIndexedTemperatures_Daily(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	index := []time.Time{
		day(2020, time.January, 1),
		day(2020, time.January, 2),
		day(2020, time.January, 3),
	}
	got, err := src.IndexedTemperatures(context.Background(), index, series.Daily, units.DegF)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 32.0, got[0], 1e-9)
	assert.InDelta(t, 50.0, got[1], 1e-9)
	assert.True(t, math.IsNaN(got[2]), "missing readings align as NaN")
}

func TestIndexedTemperatures_UnsupportedFrequency(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	// A daily source cannot serve hourly.
	_, err := src.IndexedTemperatures(context.Background(),
		[]time.Time{day(2020, time.January, 1)}, series.Hourly, units.DegC)
	assert.ErrorIs(t, err, series.ErrUnsupportedFrequency)
	assert.Empty(t, fc.calls, "unsupported frequency fails before fetching, never partial data")
}

func TestIndexedTemperatures_InvalidIndex(t *testing.T) {
	fc := newDailyClient()
	src := newTestSource(t, fc, newSpyCache())

	_, err := src.IndexedTemperatures(context.Background(), nil, series.Daily, units.DegC)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	backwards := []time.Time{day(2020, time.January, 2), day(2020, time.January, 1)}
	_, err = src.IndexedTemperatures(context.Background(), backwards, series.Daily, units.DegC)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestIndexedTemperatures_HourlySourceServesDaily(t *testing.T) {
	fc := &fakeClient{
		kind: "isd",
		res:  series.Hourly,
		unit: units.DegC,
		data: make(map[string]map[int][]series.Point),
		errs: make(map[string]error),
	}
	fc.set("725300", 2020, []series.Point{
		{Time: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), Value: 4},
		{Time: time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC), Value: 8},
	})
	src := newTestSource(t, fc, newSpyCache())

	got, err := src.IndexedTemperatures(context.Background(),
		[]time.Time{day(2020, time.January, 1)}, series.Daily, units.DegC)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 6.0, got[0], 1e-9, "hourly readings aggregate to the daily mean")
}

func TestIntervalQuery_PreservesInputOrder(t *testing.T) {
	fc := newDailyClient()
	fc.set("725300", 2020, janPoints())
	src := newTestSource(t, fc, newSpyCache())

	periods := []Period{
		{Start: day(2020, time.January, 2), Duration: 24 * time.Hour}, // 10C
		{Start: day(2020, time.January, 1), Duration: 24 * time.Hour}, // 0C
		{Start: day(2020, time.January, 1), Duration: 48 * time.Hour}, // 5C
	}
	got, err := IntervalQuery{Source: src}.AverageTemperatures(context.Background(), periods, units.DegC)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 10.0, got[0], 1e-9)
	assert.InDelta(t, 0.0, got[1], 1e-9)
	assert.InDelta(t, 5.0, got[2], 1e-9)
}

func TestIntervalQuery_InvalidPeriod(t *testing.T) {
	fc := newDailyClient()
	src := newTestSource(t, fc, newSpyCache())

	_, err := IntervalQuery{Source: src}.AverageTemperatures(context.Background(),
		[]Period{{Start: day(2020, time.January, 1), Duration: -time.Hour}}, units.DegC)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestPeriodsByFuel_ForFuel(t *testing.T) {
	periods := PeriodsByFuel{
		"electricity": {{Start: day(2020, time.January, 1), Duration: 24 * time.Hour}},
	}
	assert.Len(t, periods.ForFuel("electricity"), 1)
	assert.Empty(t, periods.ForFuel("natural_gas"))
}
