package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, source, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /v1/stations/{station}/average).
	HTTPRequestsTotal.WithLabelValues("GET", "/v1/stations/{station}/average", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/v1/stations/{station}/average").Observe(0.01)
	RemoteFetchesTotal.WithLabelValues("gsod", "success").Inc()
	RemoteFetchesTotal.WithLabelValues("isd", "no_data").Inc()
	RemoteFetchErrorsTotal.WithLabelValues("gsod", "unavailable").Inc()
	RemoteFetchDuration.WithLabelValues("gsod").Observe(1.2)
	CandidateFallbacksTotal.WithLabelValues("isd").Inc()
	CacheHitsTotal.WithLabelValues("hit").Inc()
	CacheHitsTotal.WithLabelValues("miss").Inc()
	CacheErrorsTotal.WithLabelValues("save").Inc()
	QueriesTotal.WithLabelValues("average_over", "ok").Inc()
	QueryDuration.WithLabelValues("average_over").Observe(0.02)
	RateLimitDeniedTotal.Inc()
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "remoteFetchesTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
