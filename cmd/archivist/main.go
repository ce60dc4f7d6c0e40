// Archivist moves aged rows out of live database tables into compressed,
// checksummed archive files, and deletes the source rows only after the file
// has been verified.
//
// Usage:
//
//	# Archive audit_logs rows older than the table's retention policy
//	archivist archive run --table audit_logs
//
//	# Archive rows older than an explicit cutoff
//	archivist archive run --table sessions --cutoff 2025-01-01
//
//	# Search verified archives
//	archivist search --table audit_logs --user 42 --start 2024-01-01 --format csv
//
//	# Archive every table over its growth thresholds with auto_archive enabled
//	archivist auto
//
//	# Run the scheduler with metrics and health endpoints
//	archivist serve --config /etc/archivist/config.yaml
package main

func main() {
	Execute()
}
