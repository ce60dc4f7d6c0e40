// Package growth samples source table sizes and decides which tables need
// archiving.
//
// A table is due when it has a retention policy and any of the following
// holds: its row count or size exceeds the configured threshold, it has
// never been archived, or its last verified archive is older than the
// policy's archive_after_days.
package growth
