package metrics

import (
	"time"

	"mercator-hq/archivist/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ArchiveMetrics tracks archive runs, verification and source deletion.
//
// Metrics:
//   - archivist_engine_archive_runs_total: Runs by table and outcome
//   - archivist_engine_archive_run_duration_seconds: Run duration histogram
//   - archivist_engine_archived_records_total: Rows written to archive files
//   - archivist_engine_archived_bytes_total: Compressed bytes written
//   - archivist_engine_deleted_rows_total: Source rows deleted after verification
//   - archivist_engine_verifications_total: Verification results
type ArchiveMetrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	recordsTotal       *prometheus.CounterVec
	bytesTotal         *prometheus.CounterVec
	deletedTotal       *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
}

// NewArchiveMetrics creates and registers archive metrics with the provided registry.
func NewArchiveMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ArchiveMetrics {
	am := &ArchiveMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archive_runs_total",
				Help:      "Total number of archive runs by outcome",
			},
			[]string{"table", "outcome"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archive_run_duration_seconds",
				Help:      "Duration of archive runs in seconds",
				Buckets:   cfg.RunDurationBuckets,
			},
			[]string{"table"},
		),

		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archived_records_total",
				Help:      "Total number of rows written to archive files",
			},
			[]string{"table"},
		),

		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "archived_bytes_total",
				Help:      "Total compressed bytes written to archive files",
			},
			[]string{"table"},
		),

		deletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "deleted_rows_total",
				Help:      "Total number of source rows deleted after verification",
			},
			[]string{"table"},
		),

		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "verifications_total",
				Help:      "Total number of archive verifications by result",
			},
			[]string{"table", "result"},
		),
	}

	registry.MustRegister(
		am.runsTotal,
		am.runDuration,
		am.recordsTotal,
		am.bytesTotal,
		am.deletedTotal,
		am.verificationsTotal,
	)

	return am
}

// RecordRun records a completed archive run.
func (am *ArchiveMetrics) RecordRun(table, outcome string, duration time.Duration, records, bytes int64) {
	am.runsTotal.WithLabelValues(table, outcome).Inc()
	am.runDuration.WithLabelValues(table).Observe(duration.Seconds())
	if records > 0 {
		am.recordsTotal.WithLabelValues(table).Add(float64(records))
	}
	if bytes > 0 {
		am.bytesTotal.WithLabelValues(table).Add(float64(bytes))
	}
}

// RecordDeleted records deleted source rows.
func (am *ArchiveMetrics) RecordDeleted(table string, rows int64) {
	am.deletedTotal.WithLabelValues(table).Add(float64(rows))
}

// RecordVerification records a verification result.
func (am *ArchiveMetrics) RecordVerification(table string, verified bool) {
	result := "verified"
	if !verified {
		result = "failed"
	}
	am.verificationsTotal.WithLabelValues(table, result).Inc()
}
