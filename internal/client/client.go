package client

import (
	"context"
	"errors"

	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

// RemoteDataClient fetches one calendar year of raw temperature observations
// for a station from an upstream source. Implementations parse the source's
// wire format into points at the source's native resolution and unit; points
// with sentinel or unreadable values come back with Missing set.
type RemoteDataClient interface {
	// FetchYear returns the raw points for the station and year.
	// It returns ErrNoData (possibly wrapped) when the station/year has no
	// archive upstream, and ErrRemoteUnavailable for transport failures.
	FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error)

	// Kind is a stable short name for the source (gsod, isd, tmy3, ...),
	// used in cache keys, logs and metrics.
	Kind() string

	// Resolution is the finest frequency the source provides.
	Resolution() series.Frequency

	// Unit is the unit raw points are expressed in.
	Unit() units.Unit
}

var (
	// ErrNoData means the upstream has no archive for this station and year.
	ErrNoData = errors.New("no data for station and year")

	// ErrRemoteUnavailable means the upstream could not be reached or the
	// transfer failed. Callers treat it the same as ErrNoData.
	ErrRemoteUnavailable = errors.New("remote source unavailable")

	// ErrBadPayload means the upstream responded with data that could not
	// be parsed.
	ErrBadPayload = errors.New("malformed upstream payload")
)
