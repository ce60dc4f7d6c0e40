package metrics

import (
	"mercator-hq/archivist/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GrowthMetrics tracks table size samples and auto-archive passes.
type GrowthMetrics struct {
	tableRows      *prometheus.GaugeVec
	tableBytes     *prometheus.GaugeVec
	needsArchive   *prometheus.GaugeVec
	autoRunsTables *prometheus.CounterVec
	autoRunsTotal  prometheus.Counter
}

// NewGrowthMetrics creates and registers growth metrics with the provided registry.
func NewGrowthMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GrowthMetrics {
	gm := &GrowthMetrics{
		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "table_rows",
				Help:      "Row count of a source table at the last growth sample",
			},
			[]string{"table"},
		),

		tableBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "table_size_bytes",
				Help:      "Estimated size of a source table at the last growth sample",
			},
			[]string{"table"},
		),

		// 1 = needs archiving, 0 = within thresholds
		needsArchive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "table_needs_archive",
				Help:      "Whether a source table exceeds its growth or age thresholds",
			},
			[]string{"table"},
		),

		autoRunsTables: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auto_archive_tables_total",
				Help:      "Total number of tables handled by auto-archive passes by result",
			},
			[]string{"result"},
		),

		autoRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auto_archive_runs_total",
				Help:      "Total number of auto-archive passes",
			},
		),
	}

	registry.MustRegister(
		gm.tableRows,
		gm.tableBytes,
		gm.needsArchive,
		gm.autoRunsTables,
		gm.autoRunsTotal,
	)

	return gm
}

// SetTable publishes a table sample.
func (gm *GrowthMetrics) SetTable(table string, rows, bytes int64, needsArchive bool) {
	gm.tableRows.WithLabelValues(table).Set(float64(rows))
	gm.tableBytes.WithLabelValues(table).Set(float64(bytes))

	value := 0.0
	if needsArchive {
		value = 1.0
	}
	gm.needsArchive.WithLabelValues(table).Set(value)
}

// RecordAutoRun records one auto-archive pass.
func (gm *GrowthMetrics) RecordAutoRun(archived, skipped, failed int) {
	gm.autoRunsTotal.Inc()
	gm.autoRunsTables.WithLabelValues("archived").Add(float64(archived))
	gm.autoRunsTables.WithLabelValues("skipped").Add(float64(skipped))
	gm.autoRunsTables.WithLabelValues("failed").Add(float64(failed))
}
