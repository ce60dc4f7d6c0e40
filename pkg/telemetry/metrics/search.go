package metrics

import (
	"time"

	"mercator-hq/archivist/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics tracks archive search.
type SearchMetrics struct {
	searchesTotal   *prometheus.CounterVec
	searchDuration  prometheus.Histogram
	archivesScanned prometheus.Counter
	matchesTotal    prometheus.Counter
}

// NewSearchMetrics creates and registers search metrics with the provided registry.
func NewSearchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SearchMetrics {
	sm := &SearchMetrics{
		searchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "searches_total",
				Help:      "Total number of archive searches by status",
			},
			[]string{"status"},
		),

		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "search_duration_seconds",
				Help:      "Duration of archive searches in seconds",
				Buckets:   cfg.SearchDurationBuckets,
			},
		),

		archivesScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "search_archives_scanned_total",
				Help:      "Total number of archive files read by search",
			},
		),

		matchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "search_matches_total",
				Help:      "Total number of archived rows matched by search",
			},
		),
	}

	registry.MustRegister(
		sm.searchesTotal,
		sm.searchDuration,
		sm.archivesScanned,
		sm.matchesTotal,
	)

	return sm
}

// RecordSearch records a search.
func (sm *SearchMetrics) RecordSearch(status string, duration time.Duration, archives int, matches int64) {
	sm.searchesTotal.WithLabelValues(status).Inc()
	sm.searchDuration.Observe(duration.Seconds())
	sm.archivesScanned.Add(float64(archives))
	sm.matchesTotal.Add(float64(matches))
}
