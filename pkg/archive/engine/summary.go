package engine

import (
	"context"
	"sort"
	"time"

	"mercator-hq/archivist/pkg/archive"
)

// TableSummary aggregates the archives of one table.
type TableSummary struct {
	Table    string `json:"table"`
	Archives int    `json:"archives"`
	Pending  int    `json:"pending"`
	Verified int    `json:"verified"`
	Failed   int    `json:"failed"`

	// Records and Bytes count verified archives only.
	Records int64 `json:"records"`
	Bytes   int64 `json:"bytes"`

	// IncompleteDeletions counts verified archives whose source deletion
	// has not finished.
	IncompleteDeletions int `json:"incomplete_deletions"`

	LastArchive *time.Time `json:"last_archive,omitempty"`
}

// Summary aggregates the whole catalog.
type Summary struct {
	Tables   []TableSummary `json:"tables"`
	Archives int            `json:"archives"`
	Records  int64          `json:"records"`
	Bytes    int64          `json:"bytes"`
}

// GetArchiveSummary returns per-table archive counts and totals.
func (s *Service) GetArchiveSummary(ctx context.Context) (*Summary, error) {
	records, err := s.catalog.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	byTable := make(map[string]*TableSummary)
	for _, r := range records {
		ts, ok := byTable[r.Table]
		if !ok {
			ts = &TableSummary{Table: r.Table}
			byTable[r.Table] = ts
		}

		ts.Archives++
		switch r.Status {
		case archive.StatusPending:
			ts.Pending++
		case archive.StatusFailed:
			ts.Failed++
		case archive.StatusVerified:
			ts.Verified++
			ts.Records += r.RecordCount
			ts.Bytes += r.FileSizeBytes
			if !r.DeletionComplete {
				ts.IncompleteDeletions++
			}
			if ts.LastArchive == nil || r.CreatedAt.After(*ts.LastArchive) {
				created := r.CreatedAt
				ts.LastArchive = &created
			}
		}
	}

	summary := &Summary{Tables: make([]TableSummary, 0, len(byTable))}
	for _, ts := range byTable {
		summary.Tables = append(summary.Tables, *ts)
		summary.Archives += ts.Archives
		summary.Records += ts.Records
		summary.Bytes += ts.Bytes
	}
	sort.Slice(summary.Tables, func(i, j int) bool { return summary.Tables[i].Table < summary.Tables[j].Table })

	return summary, nil
}
