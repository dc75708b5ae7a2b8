// Package http exposes the temperature query engine over HTTP: interval
// averages, indexed temperature series, ZIP-to-station resolution, health
// and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gridsight/weather-index/internal/lifecycle"
	"github.com/gridsight/weather-index/internal/observability"
	"github.com/gridsight/weather-index/internal/series"
	"github.com/gridsight/weather-index/internal/source"
	"github.com/gridsight/weather-index/internal/station"
	"github.com/gridsight/weather-index/internal/units"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *source.Registry
	zip      *station.ZiplocateClient
	nrel     *station.NRELClient
	logger   *zap.Logger
	// CachePing, when set, is called to check cache reachability. Used when
	// backend is memcached.
	cachePing func() error
}

// NewHandler returns a new Handler. zip and nrel may be nil, which disables
// the ZIP resolution endpoint. cachePing may be nil.
func NewHandler(registry *source.Registry, zip *station.ZiplocateClient, nrel *station.NRELClient, logger *zap.Logger, cachePing func() error) *Handler {
	return &Handler{
		registry:  registry,
		zip:       zip,
		nrel:      nrel,
		logger:    logger,
		cachePing: cachePing,
	}
}

// NewRouter builds the service router with the standard middleware chain.
// Query routes get rate limiting and a request timeout; health and metrics
// stay outside both so they keep answering under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/stations/{station}/average", h.GetAverage).Methods("GET")
	api.HandleFunc("/stations/{station}/temperatures", h.PostTemperatures).Methods("POST")
	api.HandleFunc("/zipcodes/{zipcode}/station", h.GetStationForZIP).Methods("GET")
	return router
}

// averageResponse is the body for GET .../average. Average is null when
// every underlying reading was missing.
type averageResponse struct {
	Station  string   `json:"station"`
	Source   string   `json:"source"`
	Start    string   `json:"start"`
	Duration string   `json:"duration"`
	Unit     string   `json:"unit"`
	Average  *float64 `json:"average"`
}

// GetAverage handles GET /v1/stations/{station}/average.
// Query params: start (RFC3339, required), duration (Go duration, required),
// unit (default degC), source (default from config).
func (h *Handler) GetAverage(w http.ResponseWriter, r *http.Request) {
	stationCode := strings.TrimSpace(mux.Vars(r)["station"])
	if stationCode == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", "station is required")
		return
	}

	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", "start must be an RFC3339 timestamp")
		return
	}
	duration, err := time.ParseDuration(q.Get("duration"))
	if err != nil || duration <= 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", "duration must be a positive Go duration, e.g. 72h")
		return
	}
	unit, err := parseUnitParam(q.Get("unit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_UNIT", err.Error())
		return
	}

	src, err := h.registry.Source(r.Context(), stationCode, q.Get("source"))
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	avg, err := src.AverageOver(r.Context(), start, duration, unit)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, averageResponse{
		Station:  stationCode,
		Source:   src.Kind(),
		Start:    start.UTC().Format(time.RFC3339),
		Duration: duration.String(),
		Unit:     string(unit),
		Average:  nullable(avg),
	})
}

// temperaturesRequest is the body for POST .../temperatures.
type temperaturesRequest struct {
	Frequency string   `json:"frequency"`
	Index     []string `json:"index"`
	Unit      string   `json:"unit"`
	Source    string   `json:"source"`
}

type temperaturesResponse struct {
	Station      string     `json:"station"`
	Source       string     `json:"source"`
	Frequency    string     `json:"frequency"`
	Unit         string     `json:"unit"`
	Temperatures []*float64 `json:"temperatures"`
}

// PostTemperatures handles POST /v1/stations/{station}/temperatures.
// The body carries an ordered RFC3339 timestamp index at a declared
// frequency; the response array is aligned to it, null where missing.
func (h *Handler) PostTemperatures(w http.ResponseWriter, r *http.Request) {
	stationCode := strings.TrimSpace(mux.Vars(r)["station"])
	if stationCode == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", "station is required")
		return
	}

	var body temperaturesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	freq, err := series.ParseFrequency(body.Frequency)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_FREQUENCY", err.Error())
		return
	}
	unit, err := parseUnitParam(body.Unit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_UNIT", err.Error())
		return
	}
	if len(body.Index) == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", "index must not be empty")
		return
	}
	index := make([]time.Time, len(body.Index))
	for i, s := range body.Index {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", "index["+s+"] is not an RFC3339 timestamp")
			return
		}
		index[i] = t
	}

	src, err := h.registry.Source(r.Context(), stationCode, body.Source)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	values, err := src.IndexedTemperatures(r.Context(), index, freq, unit)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}

	temps := make([]*float64, len(values))
	for i, v := range values {
		temps[i] = nullable(v)
	}
	writeJSON(w, http.StatusOK, temperaturesResponse{
		Station:      stationCode,
		Source:       src.Kind(),
		Frequency:    string(freq),
		Unit:         string(unit),
		Temperatures: temps,
	})
}

// GetStationForZIP handles GET /v1/zipcodes/{zipcode}/station. Resolves a US
// ZIP code to its closest TMY3 station id. Returns 503 when geocoding is not
// configured (no NREL API key).
func (h *Handler) GetStationForZIP(w http.ResponseWriter, r *http.Request) {
	zipcode := strings.TrimSpace(mux.Vars(r)["zipcode"])
	if zipcode == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ZIPCODE", "zipcode is required")
		return
	}
	if h.zip == nil || h.nrel == nil {
		writeError(w, r, http.StatusServiceUnavailable, "GEOCODING_DISABLED", "ZIP resolution requires an NREL API key")
		return
	}

	id, err := station.StationFromZIP(r.Context(), h.zip, h.nrel, zipcode)
	if err != nil {
		if errors.Is(err, station.ErrZIPNotFound) {
			writeError(w, r, http.StatusNotFound, "ZIP_NOT_FOUND", "no station known for ZIP code "+zipcode)
			return
		}
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"zipcode": zipcode,
		"station": id,
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	checks := make(map[string]string)
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    status,
		"service":   "weather-index",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// parseUnitParam resolves a unit name, defaulting to degC when empty.
func parseUnitParam(name string) (units.Unit, error) {
	if strings.TrimSpace(name) == "" {
		return units.DegC, nil
	}
	return units.Parse(name)
}

// nullable maps NaN to nil for JSON encoding; encoding/json rejects NaN.
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeQueryError maps engine errors to HTTP codes. Structurally invalid
// requests are 400, an exhausted station 404; anything else means the
// remote archives are unreachable.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, source.ErrInvalidInterval):
		writeError(w, r, http.StatusBadRequest, "INVALID_INTERVAL", err.Error())
	case errors.Is(err, series.ErrUnsupportedFrequency):
		writeError(w, r, http.StatusBadRequest, "UNSUPPORTED_FREQUENCY", err.Error())
	case errors.Is(err, source.ErrUnknownSource):
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_SOURCE", err.Error())
	case errors.Is(err, source.ErrStationNotFound):
		writeError(w, r, http.StatusNotFound, "STATION_NOT_FOUND", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "query exceeded the request time budget")
	default:
		writeUpstreamError(w, r, err)
	}
}

// writeUpstreamError writes a 503 for upstream failures and logs the
// underlying error at DEBUG level if a logger is in the request context.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to reach upstream archive")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
