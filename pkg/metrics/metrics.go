package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tree metrics
	TreesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acorn_trees_total",
			Help: "Total number of Trees planted in the Grove",
		},
	)

	// Nuts{Stashed,Tossed}Total, SquabblesResolvedTotal, and SmushesPerformedTotal
	// are gauges, not counters: Tree.Counters() already reports a cumulative
	// total, so the collector sets rather than increments these on each poll.
	NutsStashedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_nuts_stashed_total",
			Help: "Total number of Stash operations by Tree type",
		},
		[]string{"type"},
	)

	NutsTossedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_nuts_tossed_total",
			Help: "Total number of Toss operations by Tree type",
		},
		[]string{"type"},
	)

	SquabblesResolvedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_squabbles_resolved_total",
			Help: "Total number of conflicting writes resolved by a Judge, by Tree type",
		},
		[]string{"type"},
	)

	SmushesPerformedTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_smushes_performed_total",
			Help: "Total number of Stash calls that a Judge kept the current value for, by Tree type",
		},
		[]string{"type"},
	)

	NutCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_nut_count",
			Help: "Current number of live Nuts per Tree type",
		},
		[]string{"type"},
	)

	// Tangle metrics
	TanglesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acorn_tangles_total",
			Help: "Total number of active Tangles",
		},
	)

	TangleStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acorn_tangle_status",
			Help: "Tangle status (1 = connected, 0.5 = reconnecting, 0 = dead) by peer URL",
		},
		[]string{"peer"},
	)

	// Canopy discovery metrics
	DiscoveredNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "acorn_discovered_nodes_total",
			Help: "Total number of peers currently known to Canopy discovery",
		},
	)

	// HTTP surface metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorn_http_requests_total",
			Help: "Total number of Grove HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acorn_http_request_duration_seconds",
			Help:    "Grove HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Near-far cache metrics
	NearCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorn_near_cache_hits_total",
			Help: "Total number of near-far cache reads served from the near cache",
		},
	)

	NearCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorn_near_cache_misses_total",
			Help: "Total number of near-far cache reads that fell through to the backing trunk",
		},
	)

	// Tiered trunk metrics
	TieredArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorn_tiered_archived_total",
			Help: "Total number of hot-to-cold archive migrations performed by tiered trunks",
		},
	)

	TieredRestoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorn_tiered_restored_total",
			Help: "Total number of cold-to-hot restore-on-read promotions performed by tiered trunks",
		},
	)
)

func init() {
	prometheus.MustRegister(TreesTotal)
	prometheus.MustRegister(NutsStashedTotal)
	prometheus.MustRegister(NutsTossedTotal)
	prometheus.MustRegister(SquabblesResolvedTotal)
	prometheus.MustRegister(SmushesPerformedTotal)
	prometheus.MustRegister(NutCount)
	prometheus.MustRegister(TanglesTotal)
	prometheus.MustRegister(TangleStatus)
	prometheus.MustRegister(DiscoveredNodesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(NearCacheHitsTotal)
	prometheus.MustRegister(NearCacheMissesTotal)
	prometheus.MustRegister(TieredArchivedTotal)
	prometheus.MustRegister(TieredRestoredTotal)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
