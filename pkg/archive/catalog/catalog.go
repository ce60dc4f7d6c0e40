// Package catalog provides durable storage for archive records, per-table
// lock records and growth snapshots.
//
// Two backends are available: SQLite for production, with schema managed by
// embedded goose migrations, and an in-memory backend for tests.
package catalog

import (
	"fmt"

	"mercator-hq/archivist/pkg/archive"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the catalog backend named by backend.
func Open(backend string, sqliteConfig *SQLiteConfig) (archive.Catalog, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteCatalog(sqliteConfig)
	case BackendMemory:
		return NewMemoryCatalog(), nil
	default:
		return nil, fmt.Errorf("unsupported catalog backend: %s", backend)
	}
}
