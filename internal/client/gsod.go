package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

// gsodMissing is the GSOD sentinel for a missing mean temperature.
const gsodMissing = 9999.9

// GSODClient fetches daily mean temperatures from the NOAA Global Summary
// of the Day archive: /pub/data/gsod/{year}/{station}-{year}.op.gz.
// Readings are degrees Fahrenheit at daily resolution.
type GSODClient struct {
	fetcher *ftpFetcher
}

// NewGSODClient creates a GSODClient against addr (DefaultNOAAAddr if empty).
func NewGSODClient(addr string, timeout time.Duration) *GSODClient {
	return &GSODClient{fetcher: newFTPFetcher(addr, timeout)}
}

func (c *GSODClient) Kind() string                 { return "gsod" }
func (c *GSODClient) Resolution() series.Frequency { return series.Daily }
func (c *GSODClient) Unit() units.Unit             { return units.DegF }

// FetchYear downloads and parses the station's yearly archive file.
func (c *GSODClient) FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error) {
	path := fmt.Sprintf("/pub/data/gsod/%d/%s-%d.op.gz", year, stationID, year)
	data, err := c.fetcher.fetchGzip(ctx, path)
	if err != nil {
		return nil, err
	}
	return parseGSOD(string(data))
}

// parseGSOD parses a GSOD .op file. The first line is a column header; each
// data line is whitespace-separated with the date (YYYYMMDD) in column 2 and
// the mean temperature in column 3.
func parseGSOD(data string) ([]series.Point, error) {
	lines := strings.Split(data, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: gsod file too short", ErrBadPayload)
	}
	var points []series.Point
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) < 4 {
			return nil, fmt.Errorf("%w: gsod line %q", ErrBadPayload, line)
		}
		t, err := time.ParseInLocation("20060102", cols[2], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: gsod date %q: %v", ErrBadPayload, cols[2], err)
		}
		temp, err := strconv.ParseFloat(cols[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: gsod temperature %q: %v", ErrBadPayload, cols[3], err)
		}
		if temp >= gsodMissing {
			points = append(points, series.Point{Time: t, Missing: true})
			continue
		}
		points = append(points, series.Point{Time: t, Value: temp})
	}
	return points, nil
}
