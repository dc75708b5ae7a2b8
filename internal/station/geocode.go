package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrZIPNotFound is returned when no lat/long centroid is known for a ZIP code.
var ErrZIPNotFound = errors.New("no known lat/long centroid for ZIP code")

// DefaultZiplocateURL is the Ziplocate API base URL.
const DefaultZiplocateURL = "http://ziplocate.us/api/v1"

// DefaultNRELURL is the NREL solar data query API base URL.
const DefaultNRELURL = "http://developer.nrel.gov/api/solar/data_query/v1.json"

// ZiplocateClient looks up the population-weighted lat/long centroid for a
// US ZIP code.
type ZiplocateClient struct {
	baseURL string
	client  *http.Client
}

// NewZiplocateClient creates a ZiplocateClient. baseURL defaults to
// DefaultZiplocateURL when empty.
func NewZiplocateClient(baseURL string, timeout time.Duration) *ZiplocateClient {
	if baseURL == "" {
		baseURL = DefaultZiplocateURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ZiplocateClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Locate returns the centroid for the ZIP code.
func (c *ZiplocateClient) Locate(ctx context.Context, zipcode string) (lat, lng float64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, zipcode), nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("ziplocate %s: %w", zipcode, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, 0, fmt.Errorf("%w: %s", ErrZIPNotFound, zipcode)
	default:
		return 0, 0, fmt.Errorf("ziplocate %s: status %d", zipcode, resp.StatusCode)
	}
	var out struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("ziplocate %s: decode: %w", zipcode, err)
	}
	return out.Lat, out.Lng, nil
}

// NRELClient finds the closest TMY3 weather station for a coordinate using
// the National Renewable Energy Lab data query API. Requires a (freely
// available) API key.
type NRELClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNRELClient creates an NRELClient. baseURL defaults to DefaultNRELURL
// when empty.
func NewNRELClient(apiKey, baseURL string, timeout time.Duration) *NRELClient {
	if baseURL == "" {
		baseURL = DefaultNRELURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NRELClient{apiKey: apiKey, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// TMY3Station returns the closest TMY3 station id for the coordinate.
// The API prefixes ids with a two-character dataset tag, which is stripped.
func (c *NRELClient) TMY3Station(ctx context.Context, lat, lng float64) (string, error) {
	url := fmt.Sprintf("%s?api_key=%s&lat=%f&lon=%f", c.baseURL, c.apiKey, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nrel station query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("nrel station query: status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Outputs struct {
			TMY3 struct {
				ID string `json:"id"`
			} `json:"tmy3"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("nrel station query: decode: %w", err)
	}
	id := out.Outputs.TMY3.ID
	if len(id) <= 2 {
		return "", fmt.Errorf("nrel station query: no tmy3 station for %f,%f", lat, lng)
	}
	return id[2:], nil
}

// StationFromZIP resolves a ZIP code to the closest TMY3 station id by
// composing the Ziplocate and NREL lookups.
func StationFromZIP(ctx context.Context, zip *ZiplocateClient, nrel *NRELClient, zipcode string) (string, error) {
	lat, lng, err := zip.Locate(ctx, zipcode)
	if err != nil {
		return "", err
	}
	return nrel.TMY3Station(ctx, lat, lng)
}
