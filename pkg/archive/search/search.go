// Package search answers filtered queries over archived rows.
//
// Candidate archives are narrowed using catalog metadata: only verified
// records whose archived period overlaps the query's date range are opened.
// Files are streamed one row at a time, most recent archive first, and no
// further files are opened once the limit is reached. Pending and failed
// archives are never read.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/codec"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Config contains search limits.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Engine runs searches against the catalog and archive files.
type Engine struct {
	catalog archive.Catalog
	config  Config
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a search engine. collector may be nil.
func New(catalog archive.Catalog, cfg Config, collector *metrics.Collector) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}

	return &Engine{
		catalog: catalog,
		config:  cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "archive.search"),
		now:     time.Now,
	}
}

// Search returns rows matching every filter set in q.
//
// TotalCount counts the matches found in the files actually opened, which
// may exceed len(Records) when the last file held more matches than the
// limit allowed. It is not a count over all archives.
func (e *Engine) Search(ctx context.Context, q *archive.SearchQuery) (*archive.SearchResult, error) {
	start := e.now()

	if q == nil {
		q = &archive.SearchQuery{}
	}
	if err := Validate(q, e.config.MaxLimit); err != nil {
		e.metrics.RecordSearch("invalid", e.now().Sub(start), 0, 0)
		return nil, err
	}

	limit := q.Limit
	if limit == 0 {
		limit = e.config.DefaultLimit
	}

	candidates, err := e.catalog.List(ctx, &archive.RecordFilter{
		Table:        q.Table,
		Statuses:     []archive.Status{archive.StatusVerified},
		OverlapStart: q.StartDate,
		OverlapEnd:   q.EndDate,
	})
	if err != nil {
		e.metrics.RecordSearch("error", e.now().Sub(start), 0, 0)
		return nil, fmt.Errorf("failed to list candidate archives: %w", err)
	}

	result := &archive.SearchResult{
		Records:          []archive.Row{},
		ArchivesSearched: []string{},
	}

	for _, record := range candidates {
		if len(result.Records) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			e.metrics.RecordSearch("error", e.now().Sub(start), len(result.ArchivesSearched), result.TotalCount)
			return nil, err
		}
		// The catalog is the source of truth, but guard anyway.
		if !record.Searchable() {
			continue
		}

		if err := e.scan(record, q, limit, result); err != nil {
			e.logger.WarnContext(ctx, "Skipping unreadable archive",
				"archive_uuid", record.UUID,
				"table", record.Table,
				"path", record.FilePath,
				"error", err,
			)
			continue
		}
	}

	result.SearchTime = e.now().Sub(start)
	e.metrics.RecordSearch("success", result.SearchTime, len(result.ArchivesSearched), result.TotalCount)

	e.logger.DebugContext(ctx, "Search completed",
		"candidates", len(candidates),
		"archives_searched", len(result.ArchivesSearched),
		"matches", result.TotalCount,
		"returned", len(result.Records),
	)

	return result, nil
}

// scan streams one archive file, appending matches to result until limit
// records are collected. Matches past the limit are still counted.
func (e *Engine) scan(record *archive.ArchiveRecord, q *archive.SearchQuery, limit int, result *archive.SearchResult) error {
	reader, closer, err := codec.OpenFile(record.FilePath)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer reader.Close()

	result.ArchivesSearched = append(result.ArchivesSearched, record.UUID)

	tsColumn := record.Spec().TimestampColumn
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if !Matches(row, q, tsColumn) {
			continue
		}
		result.TotalCount++
		if len(result.Records) < limit {
			result.Records = append(result.Records, row)
		}
	}
}

// filterColumns maps query fields to the row columns they compare against.
var filterColumns = []struct {
	column string
	value  func(q *archive.SearchQuery) string
}{
	{"user_uuid", func(q *archive.SearchQuery) string { return q.UserUUID }},
	{"endpoint", func(q *archive.SearchQuery) string { return q.Endpoint }},
	{"action", func(q *archive.SearchQuery) string { return q.Action }},
	{"ip_address", func(q *archive.SearchQuery) string { return q.IPAddress }},
}

// Matches reports whether row satisfies every filter in q. tsColumn is the
// row column compared against the date range; a row whose timestamp cannot
// be parsed never matches a date filter.
func Matches(row archive.Row, q *archive.SearchQuery, tsColumn string) bool {
	for _, f := range filterColumns {
		want := f.value(q)
		if want == "" {
			continue
		}
		if stringValue(row[f.column]) != want {
			return false
		}
	}

	if q.StartDate == nil && q.EndDate == nil {
		return true
	}

	ts, ok := archive.ParseTime(row[tsColumn])
	if !ok {
		return false
	}
	if q.StartDate != nil && ts.Before(*q.StartDate) {
		return false
	}
	if q.EndDate != nil && ts.After(*q.EndDate) {
		return false
	}
	return true
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
