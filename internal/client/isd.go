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

// isdMissing is the ISD sentinel for a missing air temperature reading.
const isdMissing = "+9999"

// ISDClient fetches hourly observations from the NOAA Integrated Surface
// Data archive: /pub/data/noaa/{year}/{station}-{year}.gz. Records are
// fixed-width; air temperature sits at columns 87:92 in tenths of a degree
// Celsius.
type ISDClient struct {
	fetcher *ftpFetcher
}

// NewISDClient creates an ISDClient against addr (DefaultNOAAAddr if empty).
func NewISDClient(addr string, timeout time.Duration) *ISDClient {
	return &ISDClient{fetcher: newFTPFetcher(addr, timeout)}
}

func (c *ISDClient) Kind() string                 { return "isd" }
func (c *ISDClient) Resolution() series.Frequency { return series.Hourly }
func (c *ISDClient) Unit() units.Unit             { return units.DegC }

// FetchYear downloads and parses the station's yearly archive file.
func (c *ISDClient) FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error) {
	path := fmt.Sprintf("/pub/data/noaa/%d/%s-%d.gz", year, stationID, year)
	data, err := c.fetcher.fetchGzip(ctx, path)
	if err != nil {
		return nil, err
	}
	return parseISD(string(data))
}

// parseISD parses fixed-width ISD records. Observation time is columns
// 15:25 (YYYYMMDDHH plus minutes, which Merge buckets away); temperature is
// columns 87:92, "+9999" when missing.
func parseISD(data string) ([]series.Point, error) {
	var points []series.Point
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 93 {
			return nil, fmt.Errorf("%w: isd record too short (%d chars)", ErrBadPayload, len(line))
		}
		t, err := time.ParseInLocation("2006010215", line[15:25], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: isd timestamp %q: %v", ErrBadPayload, line[15:25], err)
		}
		raw := line[87:92]
		if raw == isdMissing {
			points = append(points, series.Point{Time: t, Missing: true})
			continue
		}
		tenths, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: isd temperature %q: %v", ErrBadPayload, raw, err)
		}
		points = append(points, series.Point{Time: t, Value: tenths / 10})
	}
	return points, nil
}
