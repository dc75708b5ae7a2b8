package client

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

// tmy3DryBulbColumn is the dry-bulb temperature column in a TMY3 data row.
const tmy3DryBulbColumn = 31

// TMY3Client reads typical-meteorological-year files ({station}TY.csv) from
// a local directory. TMY3 data is synthesized normal-year data: rows carry
// month/day/hour only, so FetchYear projects them onto the requested
// calendar year. Readings are degrees Celsius at hourly resolution.
type TMY3Client struct {
	dir string
}

// NewTMY3Client creates a TMY3Client reading from dir.
func NewTMY3Client(dir string) *TMY3Client {
	return &TMY3Client{dir: dir}
}

func (c *TMY3Client) Kind() string                 { return "tmy3" }
func (c *TMY3Client) Resolution() series.Frequency { return series.Hourly }
func (c *TMY3Client) Unit() units.Unit             { return units.DegC }

// FetchYear reads the station's normal-year file and stamps each row with
// the requested year.
func (c *TMY3Client) FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	path := filepath.Join(c.dir, stationID+"TY.csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, path)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrRemoteUnavailable, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Line 1 is station metadata, line 2 the column header.
	for i := 0; i < 2; i++ {
		if _, err := r.Read(); err != nil {
			return nil, fmt.Errorf("%w: tmy3 header %s: %v", ErrBadPayload, path, err)
		}
	}

	var points []series.Point
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: tmy3 row %s: %v", ErrBadPayload, path, err)
		}
		if len(row) <= tmy3DryBulbColumn {
			return nil, fmt.Errorf("%w: tmy3 row has %d columns", ErrBadPayload, len(row))
		}
		t, err := parseTMY3Timestamp(row[0], row[1], year)
		if err != nil {
			return nil, err
		}
		temp, err := strconv.ParseFloat(row[tmy3DryBulbColumn], 64)
		if err != nil {
			points = append(points, series.Point{Time: t, Missing: true})
			continue
		}
		points = append(points, series.Point{Time: t, Value: temp})
	}
	return points, nil
}

// parseTMY3Timestamp combines a MM/DD/YYYY date and HH:MM time into a UTC
// timestamp in the projected year. TMY3 hours run 01:00 to 24:00; hour 24
// rolls over to midnight of the next day via time.Date normalization.
func parseTMY3Timestamp(date, clock string, year int) (time.Time, error) {
	if len(date) < 5 || len(clock) < 2 {
		return time.Time{}, fmt.Errorf("%w: tmy3 timestamp %q %q", ErrBadPayload, date, clock)
	}
	month, err1 := strconv.Atoi(date[0:2])
	day, err2 := strconv.Atoi(date[3:5])
	hour, err3 := strconv.Atoi(clock[0:2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("%w: tmy3 timestamp %q %q", ErrBadPayload, date, clock)
	}
	return time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC), nil
}
