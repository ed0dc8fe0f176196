// Package metrics holds the Prometheus collectors shared by the analytics
// clients, the report builder and the snapshot job.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trahn",
			Subsystem: "analytics",
			Name:      "upstream_query_duration_seconds",
			Help:      "Duration of queries against the analytics backends",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "query"},
	)

	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trahn",
			Subsystem: "analytics",
			Name:      "upstream_failures_total",
			Help:      "Failed queries against the analytics backends",
		},
		[]string{"backend", "query"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trahn",
			Subsystem: "analytics",
			Name:      "cache_lookups_total",
			Help:      "Query cache lookups by result",
		},
		[]string{"result"},
	)

	SectionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trahn",
			Subsystem: "report",
			Name:      "section_failures_total",
			Help:      "Report sections that failed to build",
		},
		[]string{"section"},
	)

	SnapshotLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trahn",
			Subsystem: "snapshot",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last snapshot written",
		},
	)

	FlaggedTraders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trahn",
			Subsystem: "report",
			Name:      "flagged_traders",
			Help:      "Traders at or above the flagged risk score in the last leaderboard",
		},
	)
)

// ObserveQuery records one upstream call.
func ObserveQuery(backend, query string, start time.Time, err error) {
	UpstreamDuration.WithLabelValues(backend, query).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamFailures.WithLabelValues(backend, query).Inc()
	}
}
