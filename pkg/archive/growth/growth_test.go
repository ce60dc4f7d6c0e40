package growth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/catalog"
	"mercator-hq/archivist/pkg/archive/source"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, src *source.MemorySource, table string, n int) {
	t.Helper()
	rows := make([]archive.Row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, archive.Row{"id": int64(i), "created_at": now.AddDate(0, 0, -i)})
	}
	require.NoError(t, src.Insert(table, rows...))
}

func newTracker(src archive.TableSource, cat archive.Catalog, policies archive.PolicyMap, th Thresholds) *Tracker {
	tr := NewTracker(NewProbe(src, cat), cat, policies, th, nil)
	tr.now = func() time.Time { return now }
	tr.probe.now = tr.now
	return tr
}

func verifiedRecord(table string, created time.Time) *archive.ArchiveRecord {
	return &archive.ArchiveRecord{
		UUID:       table + "-" + created.Format("20060102"),
		Table:      table,
		CutoffDate: created,
		CreatedAt:  created,
		Status:     archive.StatusVerified,
	}
}

func TestProbe_Sample(t *testing.T) {
	ctx := context.Background()
	src := source.NewMemorySource()
	cat := catalog.NewMemoryCatalog()
	seed(t, src, "audit_logs", 10)

	probe := NewProbe(src, cat)

	snap, err := probe.Sample(ctx, "audit_logs")
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.RowCount)
	assert.Equal(t, int64(10*source.DefaultRowSize), snap.SizeBytes)
	assert.Nil(t, snap.LastArchiveDate)

	// Pending archives do not count as the last archive.
	pending := verifiedRecord("audit_logs", now.AddDate(0, 0, -1))
	pending.Status = archive.StatusPending
	require.NoError(t, cat.Create(ctx, pending))

	older := now.AddDate(0, 0, -20)
	require.NoError(t, cat.Create(ctx, verifiedRecord("audit_logs", older)))

	snap, err = probe.Sample(ctx, "audit_logs")
	require.NoError(t, err)
	require.NotNil(t, snap.LastArchiveDate)
	assert.True(t, snap.LastArchiveDate.Equal(older))
}

func TestProbe_SampleMissingTable(t *testing.T) {
	probe := NewProbe(source.NewMemorySource(), catalog.NewMemoryCatalog())

	_, err := probe.Sample(context.Background(), "missing")
	assert.ErrorIs(t, err, archive.ErrStorageUnavailable)
}

func TestTracker_Track(t *testing.T) {
	ctx := context.Background()
	src := source.NewMemorySource()
	cat := catalog.NewMemoryCatalog()
	seed(t, src, "sessions", 3)

	tr := newTracker(src, cat, archive.PolicyMap{}, Thresholds{})

	snap, err := tr.Track(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, now, snap.SampledAt)

	latest, err := cat.LatestSnapshot(ctx, "sessions")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(3), latest.RowCount)

	_, err = tr.Track(ctx, "bad name")
	assert.ErrorIs(t, err, archive.ErrStorageUnavailable)
}

func TestTracker_NeedsArchive(t *testing.T) {
	recent := now.AddDate(0, 0, -5)
	stale := now.AddDate(0, 0, -40)
	policy := archive.RetentionPolicy{Table: "t", ArchiveAfterDays: 30}

	tests := []struct {
		name       string
		thresholds Thresholds
		snapshot   archive.TableGrowthSnapshot
		want       bool
	}{
		{
			name:     "never archived",
			snapshot: archive.TableGrowthSnapshot{RowCount: 1},
			want:     true,
		},
		{
			name:     "recently archived and small",
			snapshot: archive.TableGrowthSnapshot{RowCount: 1, LastArchiveDate: &recent},
			want:     false,
		},
		{
			name:     "last archive older than policy",
			snapshot: archive.TableGrowthSnapshot{RowCount: 1, LastArchiveDate: &stale},
			want:     true,
		},
		{
			name:       "too many rows",
			thresholds: Thresholds{MaxRows: 100},
			snapshot:   archive.TableGrowthSnapshot{RowCount: 101, LastArchiveDate: &recent},
			want:       true,
		},
		{
			name:       "row count at threshold",
			thresholds: Thresholds{MaxRows: 100},
			snapshot:   archive.TableGrowthSnapshot{RowCount: 100, LastArchiveDate: &recent},
			want:       false,
		},
		{
			name:       "too large",
			thresholds: Thresholds{MaxBytes: 1 << 20},
			snapshot:   archive.TableGrowthSnapshot{SizeBytes: 2 << 20, LastArchiveDate: &recent},
			want:       true,
		},
		{
			name:       "zero thresholds disable size checks",
			thresholds: Thresholds{},
			snapshot:   archive.TableGrowthSnapshot{RowCount: 1 << 40, SizeBytes: 1 << 50, LastArchiveDate: &recent},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(source.NewMemorySource(), catalog.NewMemoryCatalog(), archive.PolicyMap{}, tt.thresholds)
			assert.Equal(t, tt.want, tr.NeedsArchive(&tt.snapshot, policy))
		})
	}
}

func TestTracker_ListTablesNeedingArchival(t *testing.T) {
	ctx := context.Background()
	src := source.NewMemorySource()
	cat := catalog.NewMemoryCatalog()

	seed(t, src, "audit_logs", 50) // over the row threshold
	seed(t, src, "sessions", 5)    // archived recently
	seed(t, src, "events", 5)      // never archived
	seed(t, src, "unmanaged", 500) // no policy

	require.NoError(t, cat.Create(ctx, verifiedRecord("audit_logs", now.AddDate(0, 0, -1))))
	require.NoError(t, cat.Create(ctx, verifiedRecord("sessions", now.AddDate(0, 0, -1))))

	// A snapshot of an unmanaged table must not flag it.
	require.NoError(t, cat.SaveSnapshot(ctx, &archive.TableGrowthSnapshot{Table: "unmanaged", RowCount: 500, SampledAt: now}))

	policies := archive.PolicyMap{
		"audit_logs": {ArchiveAfterDays: 30},
		"sessions":   {ArchiveAfterDays: 30},
		"events":     {ArchiveAfterDays: 30},
		"dropped":    {ArchiveAfterDays: 30}, // table no longer exists
	}

	tr := newTracker(src, cat, policies, Thresholds{MaxRows: 20})

	due, err := tr.ListTablesNeedingArchival(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_logs", "events"}, due)

	// Every evaluated table with stats got a fresh snapshot.
	tables, err := cat.SnapshotTables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"audit_logs", "events", "sessions", "unmanaged"}, tables)
}

func TestTracker_ListTablesNeedingArchival_Cancelled(t *testing.T) {
	src := source.NewMemorySource()
	seed(t, src, "audit_logs", 1)
	tr := newTracker(src, catalog.NewMemoryCatalog(), archive.PolicyMap{"audit_logs": {ArchiveAfterDays: 1}}, Thresholds{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.ListTablesNeedingArchival(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
