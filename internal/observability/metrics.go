package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/commute-dashboard/internal/overload"
)

// Upstream labels for the upstream* metrics.
const (
	UpstreamTransit   = "transit"
	UpstreamNWS       = "nws"
	UpstreamAqi       = "aqi"
	UpstreamPurpleAir = "purpleair"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream feed call rate by upstream and status. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per request. Watch for: p95 > 2s (feed degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Failed upstream fetches by error category. There are no retries; the next poll is the retry.
	UpstreamErrorsTotal *prometheus.CounterVec

	// Snapshot cache hits by cache type.
	CacheHitsTotal *prometheus.CounterVec

	// Snapshot cache errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Reads answered from a snapshot past its TTL because the refresh failed.
	StaleServesTotal *prometheus.CounterVec

	// Loads that joined an in-flight fetch for the same key instead of starting one.
	CoalescedRequestsTotal *prometheus.CounterVec

	// Dashboard reads per feed. Watch for: traffic volume, rate() for QPS.
	DashboardQueriesTotal *prometheus.CounterVec

	// Per-location reads (allow-list; others go to "other").
	DashboardQueriesByLocationTotal *prometheus.CounterVec

	// Poll cycles by feed and outcome (success, failure).
	PollRunsTotal *prometheus.CounterVec

	// Poll ticks that did not fetch, by reason (hidden, too_soon).
	PollSuppressedTotal *prometheus.CounterVec

	// Alerts in the current processed snapshot, by severity.
	AlertsCurrent *prometheus.GaugeVec

	// Alert snapshot publishes to Kafka.
	AlertPublishTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
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
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream feed calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream feed latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Failed upstream fetches by error category",
		},
		[]string{"upstream", "category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of snapshot cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Snapshot cache errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	StaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Reads served from a stale snapshot after a failed refresh",
		},
		[]string{"feed"},
	)
	CoalescedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Loads that waited on an in-flight fetch for the same key",
		},
		[]string{"feed"},
	)
	DashboardQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboardQueriesTotal",
			Help: "Total number of dashboard reads per feed",
		},
		[]string{"feed"},
	)
	DashboardQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboardQueriesByLocationTotal",
			Help: "Dashboard reads by feed and location (allow-list; others use location=other)",
		},
		[]string{"feed", "location"},
	)
	PollRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollRunsTotal",
			Help: "Poll cycles by feed and outcome",
		},
		[]string{"feed", "outcome"},
	)
	PollSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollSuppressedTotal",
			Help: "Poll ticks skipped, by reason",
		},
		[]string{"feed", "reason"},
	)
	AlertsCurrent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alertsCurrent",
			Help: "Alerts in the current processed snapshot, by severity",
		},
		[]string{"severity"},
	)
	AlertPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertPublishTotal",
			Help: "Alert snapshot publishes by status",
		},
		[]string{"status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal, StaleServesTotal, CoalescedRequestsTotal,
		DashboardQueriesTotal, DashboardQueriesByLocationTotal,
		PollRunsTotal, PollSuppressedTotal,
		AlertsCurrent, AlertPublishTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(overload.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(overload.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordDashboardQuery records a read of feed. location may be empty for the alerts feed.
func RecordDashboardQuery(feed, location string) {
	DashboardQueriesTotal.WithLabelValues(feed).Inc()
	if location == "" {
		return
	}
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if !ok {
		loc = "other"
	}
	DashboardQueriesByLocationTotal.WithLabelValues(feed, loc).Inc()
}

// RecordUpstreamCall records one upstream request outcome and latency.
func RecordUpstreamCall(upstream, status string, start time.Time) {
	UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
	UpstreamDuration.WithLabelValues(upstream, status).Observe(time.Since(start).Seconds())
}

// SetAlertCounts replaces the per-severity alert gauge.
func SetAlertCounts(counts map[string]int) {
	AlertsCurrent.Reset()
	for sev, n := range counts {
		AlertsCurrent.WithLabelValues(sev).Set(float64(n))
	}
}

func normalizeLocationForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
