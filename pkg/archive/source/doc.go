// Package source provides the live table access consumed by the archive
// writer and growth probe: paged selects and deletes keyed by a cursor
// column, and row count and size estimates.
//
// SQLSource works over any database/sql handle and opens SQLite databases
// with modernc.org/sqlite. MemorySource keeps rows in memory and supports
// fault injection for tests.
package source
