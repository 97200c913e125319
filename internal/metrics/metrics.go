package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	sourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "gateway",
			Name:      "source_requests_total",
			Help:      "Upstream market requests by source, operation and outcome.",
		},
		[]string{"source", "operation", "outcome"},
	)

	sourceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketfeed",
			Subsystem: "gateway",
			Name:      "source_request_duration_seconds",
			Help:      "Duration of upstream market requests.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10), // 25ms to ~13s
		},
		[]string{"source"},
	)

	breakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "gateway",
			Name:      "breaker_trips_total",
			Help:      "Times a source was deactivated.",
		},
		[]string{"source", "critical"},
	)

	failovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "gateway",
			Name:      "failovers_total",
			Help:      "Switches of the active source.",
		},
		[]string{"from", "to", "reason"},
	)

	newsSourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "news",
			Name:      "source_fetches_total",
			Help:      "News source fetches by outcome.",
		},
		[]string{"source", "outcome"},
	)

	newsCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "news",
			Name:      "cache_lookups_total",
			Help:      "News cache lookups by result (hit, refresh, stale, fallback).",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		sourceRequests,
		sourceDuration,
		breakerTrips,
		failovers,
		newsSourceFetches,
		newsCache,
		httpRequests,
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSourceRequest records one upstream market request.
func RecordSourceRequest(source, operation, outcome string, duration time.Duration) {
	sourceRequests.WithLabelValues(source, operation, outcome).Inc()
	sourceDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordBreakerTrip records a source deactivation.
func RecordBreakerTrip(source string, critical bool) {
	breakerTrips.WithLabelValues(source, strconv.FormatBool(critical)).Inc()
}

// RecordFailover records a change of the active source.
func RecordFailover(from, to, reason string) {
	failovers.WithLabelValues(from, to, reason).Inc()
}

// RecordNewsFetch records one news source fetch.
func RecordNewsFetch(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	newsSourceFetches.WithLabelValues(source, outcome).Inc()
}

// RecordNewsCache records how a news lookup was served.
func RecordNewsCache(result string) {
	newsCache.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one handled inbound request.
func RecordHTTPRequest(method, path string, status int) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
