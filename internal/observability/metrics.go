package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// weatherstack call rate by status label (success, client_error, server_error, error).
	WeatherAPICallsTotal *prometheus.CounterVec

	// weatherstack latency. Watch for: p99 near the client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Cache gateway lookups by result (hit, miss).
	CacheLookupsTotal *prometheus.CounterVec

	// Cache backend errors by operation (get, set, exists) and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache backend latency by operation and result.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for the same key. Each one means a duplicate upstream call
	// unless coalescing is enabled.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Callers that shared another caller's upstream fetch.
	RequestCoalescingHitsTotal prometheus.Counter

	// Cache warming runs, failures, and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Forecast lookups, total and per zip code (allow-list; others go to "other").
	ForecastQueriesTotal          prometheus.Counter
	ForecastQueriesByZipcodeTotal *prometheus.CounterVec

	// Bodies that failed to parse as JSON.
	MalformedResponsesTotal prometheus.Counter

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	trackedZipcodesMu sync.RWMutex
	trackedZipcodes   map[string]struct{}

	trafficGaugesOnce sync.Once
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weatherstack API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "weatherstack API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Cache gateway lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache backend operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another in-progress miss for the same key",
		},
		[]string{"zipcode"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Cache misses served by another caller's in-flight upstream fetch",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed zip code",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	ForecastQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastQueriesTotal",
			Help: "Total number of forecast lookups",
		},
	)
	ForecastQueriesByZipcodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastQueriesByZipcodeTotal",
			Help: "Forecast lookups by zip code (allow-list; others use zipcode=other)",
		},
		[]string{"zipcode"},
	)
	MalformedResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "malformedResponsesTotal",
			Help: "Upstream or cached bodies that were not valid JSON",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration,
		CacheLookupsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, RequestCoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		ForecastQueriesTotal, ForecastQueriesByZipcodeTotal,
		MalformedResponsesTotal,
		RateLimitDeniedTotal,
	)
}

// WindowCounter reports outcome counts over a sliding window. Implemented by traffic.Tracker.
type WindowCounter interface {
	RequestCount(window time.Duration) int
	DenialCount(window time.Duration) int
}

// RegisterTrafficGauges registers load and rejects gauges for the rate-limited path.
// Only the first call registers; later calls are no-ops.
func RegisterTrafficGauges(counter WindowCounter, window time.Duration) {
	trafficGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window",
				},
				func() float64 { return float64(counter.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window",
				},
				func() float64 { return float64(counter.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedZipcodes sets the allow-list for per-zip-code metrics.
func SetTrackedZipcodes(zipcodes []string) {
	trackedZipcodesMu.Lock()
	defer trackedZipcodesMu.Unlock()
	trackedZipcodes = make(map[string]struct{}, len(zipcodes))
	for _, z := range zipcodes {
		trackedZipcodes[strings.TrimSpace(z)] = struct{}{}
	}
}

// ZipcodeLabel returns zipcode if it is on the allow-list, otherwise "other".
// Keeps label cardinality bounded.
func ZipcodeLabel(zipcode string) string {
	z := strings.TrimSpace(zipcode)
	trackedZipcodesMu.RLock()
	_, ok := trackedZipcodes[z]
	trackedZipcodesMu.RUnlock()
	if ok {
		return z
	}
	return "other"
}

// RecordForecastQuery records a forecast lookup for the given zip code.
func RecordForecastQuery(zipcode string) {
	ForecastQueriesTotal.Inc()
	ForecastQueriesByZipcodeTotal.WithLabelValues(ZipcodeLabel(zipcode)).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
