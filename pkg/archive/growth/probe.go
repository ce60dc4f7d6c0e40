package growth

import (
	"context"
	"time"

	"mercator-hq/archivist/pkg/archive"
)

// Probe samples the current size of a source table. It is a pure read and
// never takes catalog locks.
type Probe struct {
	source  archive.TableSource
	catalog archive.Catalog
	now     func() time.Time
}

// NewProbe creates a probe over source. The catalog supplies the date of the
// last verified archive.
func NewProbe(source archive.TableSource, catalog archive.Catalog) *Probe {
	return &Probe{
		source:  source,
		catalog: catalog,
		now:     time.Now,
	}
}

// Sample returns the row count, size estimate and last archive date of
// table. An inaccessible table yields an error that matches
// archive.ErrStorageUnavailable; callers treat it as "stats unknown".
func (p *Probe) Sample(ctx context.Context, table string) (*archive.TableGrowthSnapshot, error) {
	stats, err := p.source.Stats(ctx, table)
	if err != nil {
		return nil, err
	}

	last, err := p.LastArchiveDate(ctx, table)
	if err != nil {
		return nil, err
	}

	return &archive.TableGrowthSnapshot{
		Table:           table,
		RowCount:        stats.RowCount,
		SizeBytes:       stats.SizeBytes,
		LastArchiveDate: last,
		SampledAt:       p.now().UTC(),
	}, nil
}

// LastArchiveDate returns when the most recent verified archive of table was
// created, or nil if the table has never been archived.
func (p *Probe) LastArchiveDate(ctx context.Context, table string) (*time.Time, error) {
	records, err := p.catalog.List(ctx, &archive.RecordFilter{
		Table:    table,
		Statuses: []archive.Status{archive.StatusVerified},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	created := records[0].CreatedAt
	return &created, nil
}
