package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geocode_backfill"

// Metrics holds the Prometheus counters, histograms, and gauges for one
// backfill process. Each instance owns its registry so a batch job can push
// exactly its own series, and tests never collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	RowsSelected        prometheus.Gauge
	RowsUpdated         prometheus.Counter
	CacheEntriesWritten prometheus.Counter
	RunDuration         prometheus.Histogram
	RunFailures         prometheus.Counter
	LastSuccessfulRun   prometheus.Gauge
	UpdatesPublished    prometheus.Counter
	PublishErrors       prometheus.Counter

	// Geocoding metrics.
	CacheLookups       *prometheus.CounterVec // labels: result={hit,negative,miss}
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,empty,error}
	GeocodeAPIDuration prometheus.Histogram
	QueryCache         *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates all backfill metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RowsSelected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_selected",
			Help:      "Rows selected for geocoding in the last run.",
		}),
		RowsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_updated_total",
			Help:      "Address rows whose coordinates were written.",
		}),
		CacheEntriesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_entries_written_total",
			Help:      "Geocode cache entries upserted, positive and negative.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete backfill run from selection to commit.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		RunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Runs that rolled back.",
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed run.",
		}),
		UpdatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_published_total",
			Help:      "Coordinate updates published after commit.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed post-commit publish attempts.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Fingerprint cache lookups by result.",
		}, []string{"result"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Per-run query cache lookups by result.",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(
		m.RowsSelected,
		m.RowsUpdated,
		m.CacheEntriesWritten,
		m.RunDuration,
		m.RunFailures,
		m.LastSuccessfulRun,
		m.UpdatesPublished,
		m.PublishErrors,
		m.CacheLookups,
		m.GeocodeRequests,
		m.GeocodeAPIDuration,
		m.QueryCache,
	)

	return m
}
