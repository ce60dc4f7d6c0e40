package growth

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Thresholds flag a table for archiving by size. Zero disables a dimension.
type Thresholds struct {
	MaxRows  int64
	MaxBytes int64
}

// Tracker records table growth snapshots and decides which tables are due
// for archiving.
type Tracker struct {
	probe      *Probe
	catalog    archive.Catalog
	policies   archive.PolicySource
	thresholds Thresholds
	metrics    *metrics.Collector
	logger     *slog.Logger
	now        func() time.Time
}

// NewTracker creates a tracker. metrics may be nil.
func NewTracker(probe *Probe, catalog archive.Catalog, policies archive.PolicySource, thresholds Thresholds, collector *metrics.Collector) *Tracker {
	return &Tracker{
		probe:      probe,
		catalog:    catalog,
		policies:   policies,
		thresholds: thresholds,
		metrics:    collector,
		logger:     slog.Default().With("component", "archive.growth"),
		now:        time.Now,
	}
}

// Thresholds returns the configured size thresholds.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// Track samples table, persists the snapshot and returns it.
func (t *Tracker) Track(ctx context.Context, table string) (*archive.TableGrowthSnapshot, error) {
	if err := archive.ValidateIdentifier(table); err != nil {
		return nil, archive.NewSourceError(table, "stats", err)
	}

	snapshot, err := t.probe.Sample(ctx, table)
	if err != nil {
		return nil, err
	}

	if err := t.catalog.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	policy, hasPolicy := t.policies.Policy(table)
	t.metrics.SetTableGrowth(table, snapshot.RowCount, snapshot.SizeBytes,
		hasPolicy && t.NeedsArchive(snapshot, policy))

	t.logger.Debug("Table growth tracked",
		"table", table,
		"row_count", snapshot.RowCount,
		"size_bytes", snapshot.SizeBytes,
	)

	return snapshot, nil
}

// NeedsArchive reports whether a snapshot crosses a size threshold or is
// older than the policy allows since its last archive. A table that has
// never been archived always needs one.
func (t *Tracker) NeedsArchive(snapshot *archive.TableGrowthSnapshot, policy archive.RetentionPolicy) bool {
	if t.thresholds.MaxRows > 0 && snapshot.RowCount > t.thresholds.MaxRows {
		return true
	}
	if t.thresholds.MaxBytes > 0 && snapshot.SizeBytes > t.thresholds.MaxBytes {
		return true
	}
	if snapshot.LastArchiveDate == nil {
		return true
	}
	return snapshot.LastArchiveDate.Before(policy.Cutoff(t.now()))
}

// ListTablesNeedingArchival samples every table with a policy or a prior
// snapshot and returns those due, sorted by name. Tables without a policy
// are never returned. Tables whose stats are unavailable are skipped.
func (t *Tracker) ListTablesNeedingArchival(ctx context.Context) ([]string, error) {
	known, err := t.catalog.SnapshotTables(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]struct{})
	for _, table := range t.policies.Tables() {
		candidates[table] = struct{}{}
	}
	for _, table := range known {
		candidates[table] = struct{}{}
	}

	var due []string
	for table := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		policy, ok := t.policies.Policy(table)
		if !ok {
			continue
		}

		snapshot, err := t.Track(ctx, table)
		if err != nil {
			if errors.Is(err, archive.ErrStorageUnavailable) {
				t.logger.Warn("Skipping table with unknown stats", "table", table, "error", err)
				continue
			}
			return nil, err
		}

		if t.NeedsArchive(snapshot, policy) {
			due = append(due, table)
		}
	}

	sort.Strings(due)
	return due, nil
}
