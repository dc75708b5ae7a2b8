package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gridsight/weather-index/internal/units"
)

// Frequency is a fixed bucket width for a temperature series.
type Frequency string

const (
	Daily  Frequency = "daily"
	Hourly Frequency = "hourly"
)

// ErrUnsupportedFrequency is returned when a caller requests a resampling
// frequency the series cannot serve (unknown, or finer than native).
var ErrUnsupportedFrequency = errors.New("unsupported resampling frequency")

// ParseFrequency resolves a frequency name. Only daily and hourly exist;
// anything else is ErrUnsupportedFrequency.
func ParseFrequency(name string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "daily":
		return Daily, nil
	case "hourly":
		return Hourly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, name)
	}
}

// Step returns the bucket width.
func (f Frequency) Step() time.Duration {
	if f == Daily {
		return 24 * time.Hour
	}
	return time.Hour
}

// Truncate aligns t to the start of its bucket in UTC.
func (f Frequency) Truncate(t time.Time) time.Time {
	u := t.UTC()
	if f == Daily {
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}

// layout returns the timestamp layout used for cache snapshots.
// Daily keys are YYYYMMDD, hourly keys YYYYMMDDHH, matching the upstream
// archive record keys.
func (f Frequency) layout() string {
	if f == Daily {
		return "20060102"
	}
	return "2006010215"
}

// Point is a single reading. Missing marks a bucket where a reading was
// attempted but no valid value exists (sentinel or absent upstream); Value
// is meaningless when Missing is true.
type Point struct {
	Time    time.Time
	Value   float64
	Missing bool
}

// YearAnchor returns the UTC start of the given year. A series containing
// this timestamp is treated as having attempted that year.
func YearAnchor(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Series is a sparse per-station temperature series at a fixed native
// frequency, stored in a fixed unit. It grows monotonically via Merge and
// never shrinks. Not safe for concurrent use; callers serialize access.
type Series struct {
	freq   Frequency
	unit   units.Unit
	points map[int64]Point // keyed by bucket start, unix seconds UTC
}

// New creates an empty series with the given native frequency and unit.
func New(freq Frequency, unit units.Unit) *Series {
	return &Series{
		freq:   freq,
		unit:   unit,
		points: make(map[int64]Point),
	}
}

func (s *Series) Frequency() Frequency { return s.freq }
func (s *Series) Unit() units.Unit     { return s.unit }
func (s *Series) Len() int             { return len(s.points) }

// Merge buckets the incoming points to the native frequency and inserts
// them, overwriting any existing entry at the same bucket. Raw points
// landing in the same bucket are averaged (missing ones excluded; a bucket
// whose points are all missing stays an explicit missing entry). Merging
// the same data twice leaves the series unchanged.
func (s *Series) Merge(points []Point) {
	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*bucket)
	for _, p := range points {
		key := s.freq.Truncate(p.Time).Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if !p.Missing && !math.IsNaN(p.Value) {
			b.sum += p.Value
			b.n++
		}
	}
	for key, b := range buckets {
		t := time.Unix(key, 0).UTC()
		if b.n == 0 {
			s.points[key] = Point{Time: t, Missing: true}
			continue
		}
		s.points[key] = Point{Time: t, Value: b.sum / float64(b.n)}
	}
}

// At returns the point at the bucket containing t, if present.
func (s *Series) At(t time.Time) (Point, bool) {
	p, ok := s.points[s.freq.Truncate(t).Unix()]
	return p, ok
}

// HasYear reports whether the series contains the year's anchor timestamp.
// This is a presence sentinel, not a completeness check: a year counts as
// fetched as soon as its Jan 1 bucket exists.
func (s *Series) HasYear(year int) bool {
	_, ok := s.points[YearAnchor(year).Unix()]
	return ok
}

// Points returns all points sorted by timestamp ascending.
func (s *Series) Points() []Point {
	out := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// ResampleTo produces a new series at the requested frequency, which must be
// equal to or coarser than the native one. Coarser buckets hold the mean of
// their non-missing points; a bucket with only missing points stays missing.
func (s *Series) ResampleTo(freq Frequency) (*Series, error) {
	switch freq {
	case s.freq:
		out := New(s.freq, s.unit)
		for k, p := range s.points {
			out.points[k] = p
		}
		return out, nil
	case Daily:
		// hourly -> daily
		out := New(Daily, s.unit)
		out.Merge(s.Points())
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot resample %s series to %q", ErrUnsupportedFrequency, s.freq, freq)
	}
}

// MeanBetween returns the arithmetic mean of the non-missing points in
// [start, end), converted to unit. Returns NaN when no usable points exist,
// including when the interval is empty.
func (s *Series) MeanBetween(start, end time.Time, unit units.Unit) float64 {
	var sum float64
	var n int
	step := s.freq.Step()
	for t := s.freq.Truncate(start); t.Before(end); t = t.Add(step) {
		p, ok := s.points[t.Unix()]
		if !ok || p.Missing {
			continue
		}
		sum += units.Convert(p.Value, s.unit, unit)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Snapshot is the durable serialized form of a series: formatted bucket
// timestamp to value, nil for missing readings.
type Snapshot map[string]*float64

// Snapshot serializes the series for caching.
func (s *Series) Snapshot() Snapshot {
	out := make(Snapshot, len(s.points))
	layout := s.freq.layout()
	for _, p := range s.points {
		if p.Missing {
			out[p.Time.Format(layout)] = nil
			continue
		}
		v := p.Value
		out[p.Time.Format(layout)] = &v
	}
	return out
}

// Restore replaces the series contents from a snapshot previously produced
// by Snapshot at the same frequency.
func (s *Series) Restore(snap Snapshot) error {
	layout := s.freq.layout()
	points := make(map[int64]Point, len(snap))
	for key, v := range snap {
		t, err := time.ParseInLocation(layout, key, time.UTC)
		if err != nil {
			return fmt.Errorf("restore series: bad timestamp %q: %w", key, err)
		}
		if v == nil {
			points[t.Unix()] = Point{Time: t, Missing: true}
			continue
		}
		points[t.Unix()] = Point{Time: t, Value: *v}
	}
	s.points = points
	return nil
}
