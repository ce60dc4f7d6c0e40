// Package archive defines the data model of the archiving engine: catalog
// records, growth snapshots, retention policies, search queries and the
// interfaces through which the engine reaches its collaborators.
//
// # Architecture
//
// The engine is split into small packages, each depending only on the types
// defined here:
//
//  1. catalog   - Durable manifest of archive files, per-table locks, snapshots
//  2. source    - Live table access (paged select/delete, size estimates)
//  3. codec     - JSON-lines + gzip archive format and checksums
//  4. writer    - Extract, write, register, verify, delete
//  5. verifier  - Recomputes checksum and record count of an archive file
//  6. search    - Streams verified archives to answer filtered queries
//  7. growth    - Samples table size and decides when archiving is due
//  8. retention - Auto-archive loop and its cron schedule
//  9. engine    - Service facade used by the CLI and automation
//
// # Archive Lifecycle
//
//	ArchiveTable(table, cutoff)
//	     ↓
//	Acquire table lock (catalog)
//	     ↓
//	Extract rows page by page (timestamp < cutoff)
//	     ↓
//	Write JSON lines → gzip → temp file → fsync → rename
//	     ↓
//	Register record (pending)
//	     ↓
//	Verify checksum + record count ── mismatch ──→ failed (rows untouched)
//	     ↓
//	Mark verified, delete source rows page by page
//	     ↓
//	Release lock
//
// Source rows are deleted if and only if the archive record is verified.
// A record is never created for a run that fails before its file is durable.
//
// # Thread Safety
//
// Catalog implementations are safe for concurrent use. Exclusivity between
// concurrent runs on the same table is enforced by catalog lock records,
// not by in-process mutexes, so it holds across processes sharing a catalog.
package archive
