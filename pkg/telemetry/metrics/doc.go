// Package metrics provides Prometheus metrics collection for Archivist.
//
// # Metrics Categories
//
//   - Archive Metrics: Run outcomes and duration, rows and bytes archived,
//     rows deleted, verification results
//   - Search Metrics: Search count, duration, archives scanned, matches
//   - Growth Metrics: Per-table row count and size samples, whether a table
//     needs archiving, auto-archive passes
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordArchiveRun("audit_logs", "archived", 42*time.Second, 250000, 18<<20)
//	collector.RecordDeletedRows("audit_logs", 250000)
//	collector.SetTableGrowth("audit_logs", 1200000, 2<<30, true)
//
// A nil *Collector is valid and records nothing.
//
// # Prometheus Endpoint
//
// Metrics are exposed by Handler in the standard exposition format:
//
//	# HELP archivist_engine_archive_runs_total Total number of archive runs by outcome
//	# TYPE archivist_engine_archive_runs_total counter
//	archivist_engine_archive_runs_total{outcome="archived",table="audit_logs"} 3
//
// # Cardinality Management
//
// The table label is bounded by a CardinalityLimiter. Tables seen after the
// limit is reached are reported as "other".
package metrics
