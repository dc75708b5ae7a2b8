package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/units"
)

// wundergroundWindowDays is the API's maximum history range per request.
const wundergroundWindowDays = 32

// DefaultWundergroundURL is the Weather Underground history API base URL.
const DefaultWundergroundURL = "http://api.wunderground.com/api"

// WundergroundClient fetches daily mean temperatures from the Weather
// Underground history API, keyed by ZIP code rather than station id.
// Readings are degrees Fahrenheit at daily resolution. Requests run behind
// retries with exponential backoff and a circuit breaker so a flapping
// upstream fails fast instead of stalling multi-year fetches.
type WundergroundClient struct {
	apiKey         string
	baseURL        string
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	retryAttempts  int
	retryBaseDelay time.Duration
}

// NewWundergroundClient creates a WundergroundClient. baseURL defaults to
// DefaultWundergroundURL when empty.
func NewWundergroundClient(apiKey, baseURL string, timeout time.Duration) (*WundergroundClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("wunderground: API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultWundergroundURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "wunderground",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
	})
	return &WundergroundClient{
		apiKey:         apiKey,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: timeout},
		breaker:        breaker,
		retryAttempts:  3,
		retryBaseDelay: 200 * time.Millisecond,
	}, nil
}

func (c *WundergroundClient) Kind() string                 { return "wunderground" }
func (c *WundergroundClient) Resolution() series.Frequency { return series.Daily }
func (c *WundergroundClient) Unit() units.Unit             { return units.DegF }

type wundergroundResponse struct {
	History struct {
		DailySummary []struct {
			Date struct {
				Year string `json:"year"`
				Mon  string `json:"mon"`
				Mday string `json:"mday"`
			} `json:"date"`
			MeanTempI string `json:"meantempi"`
		} `json:"dailysummary"`
	} `json:"history"`
}

// FetchYear walks the year in 32-day windows, one history request each.
func (c *WundergroundClient) FetchYear(ctx context.Context, stationID string, year int) ([]series.Point, error) {
	start := series.YearAnchor(year)
	end := series.YearAnchor(year + 1)

	var points []series.Point
	for cur := start; cur.Before(end); cur = cur.AddDate(0, 0, wundergroundWindowDays) {
		windowEnd := cur.AddDate(0, 0, wundergroundWindowDays-1)
		if !windowEnd.Before(end) {
			windowEnd = end.AddDate(0, 0, -1)
		}
		window, err := c.fetchWindow(ctx, stationID, cur, windowEnd)
		if err != nil {
			return nil, err
		}
		points = append(points, window...)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: wunderground %s %d", ErrNoData, stationID, year)
	}
	return points, nil
}

func (c *WundergroundClient) fetchWindow(ctx context.Context, zipcode string, start, end time.Time) ([]series.Point, error) {
	url := fmt.Sprintf("%s/%s/history_%s%s/q/%s.json",
		c.baseURL, c.apiKey,
		start.Format("20060102"), end.Format("20060102"), zipcode)

	body, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp wundergroundResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: wunderground response: %v", ErrBadPayload, err)
	}

	var points []series.Point
	for _, day := range resp.History.DailySummary {
		t, err := time.ParseInLocation("20060102", day.Date.Year+pad2(day.Date.Mon)+pad2(day.Date.Mday), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: wunderground date: %v", ErrBadPayload, err)
		}
		temp, err := strconv.ParseFloat(day.MeanTempI, 64)
		if err != nil {
			points = append(points, series.Point{Time: t, Missing: true})
			continue
		}
		points = append(points, series.Point{Time: t, Value: temp})
	}
	return points, nil
}

// getWithRetry performs a GET through the circuit breaker, retrying
// transient failures with exponential backoff.
func (c *WundergroundClient) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := c.retryBaseDelay
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

func (c *WundergroundClient) get(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
