package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Remote year fetches by source and result (success, no_data, error).
	// Watch for: error vs success ratio per archive.
	RemoteFetchesTotal *prometheus.CounterVec

	// Remote fetch errors by source and category. Watch for: sustained
	// unavailable = archive host down.
	RemoteFetchErrorsTotal *prometheus.CounterVec

	// Remote fetch latency per year file. Watch for: p95 > 30s on FTP sources.
	RemoteFetchDuration *prometheus.HistogramVec

	// Station-id candidates skipped before one yielded data. Watch for:
	// growth = stale station index.
	CandidateFallbacksTotal *prometheus.CounterVec

	// Series cache hits on source construction, by backend result.
	CacheHitsTotal *prometheus.CounterVec

	// Cache load/save failures by operation. The engine degrades to remote
	// fetches when these fire.
	CacheErrorsTotal *prometheus.CounterVec

	// Interval-average and indexed-series query rate by operation and status.
	QueriesTotal *prometheus.CounterVec

	// Query latency including any lazy year fetches it triggered.
	QueryDuration *prometheus.HistogramVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache prewarm runs and failures.
	PrewarmTotal           prometheus.Counter
	PrewarmErrorsTotal     prometheus.Counter
	PrewarmDurationSeconds prometheus.Histogram
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RemoteFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remoteFetchesTotal",
			Help: "Remote year fetches by source and result",
		},
		[]string{"source", "result"},
	)
	RemoteFetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remoteFetchErrorsTotal",
			Help: "Remote fetch errors by source and category",
		},
		[]string{"source", "category"},
	)
	RemoteFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remoteFetchDurationSeconds",
			Help:    "Remote year fetch latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)
	CandidateFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationCandidateFallbacksTotal",
			Help: "Station-id candidates that yielded no data before a later candidate was tried",
		},
		[]string{"source"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesCacheHitsTotal",
			Help: "Series cache hits and misses on load",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesCacheErrorsTotal",
			Help: "Series cache failures by operation (load, save)",
		},
		[]string{"operation"},
	)
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temperatureQueriesTotal",
			Help: "Temperature queries by operation and status",
		},
		[]string{"operation", "status"},
	)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temperatureQueryDurationSeconds",
			Help:    "Temperature query latency in seconds, including lazy fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the rate limiter",
		},
	)
	PrewarmTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachePrewarmTotal",
			Help: "Cache prewarm runs",
		},
	)
	PrewarmErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachePrewarmErrorsTotal",
			Help: "Cache prewarm runs that had at least one failure",
		},
	)
	PrewarmDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cachePrewarmDurationSeconds",
			Help:    "Cache prewarm duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,
		RemoteFetchesTotal,
		RemoteFetchErrorsTotal,
		RemoteFetchDuration,
		CandidateFallbacksTotal,
		CacheHitsTotal,
		CacheErrorsTotal,
		QueriesTotal,
		QueryDuration,
		RateLimitDeniedTotal,
		PrewarmTotal,
		PrewarmErrorsTotal,
		PrewarmDurationSeconds,
	)
}

// MetricsHandler returns the HTTP handler serving the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
