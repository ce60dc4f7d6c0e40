package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/catalog"
	"mercator-hq/archivist/pkg/archive/source"
	"mercator-hq/archivist/pkg/archive/verifier"
)

// gatedSource blocks the first armed SelectPage or DeletePage call until the
// gate is opened, so a test can hold a run in the middle of its work.
type gatedSource struct {
	*source.MemorySource

	op      string
	armed   atomic.Bool
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func newGatedSource(src *source.MemorySource, op string) *gatedSource {
	return &gatedSource{
		MemorySource: src,
		op:           op,
		entered:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
}

func (g *gatedSource) wait(op string) {
	if op != g.op || !g.armed.Load() {
		return
	}
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
}

func (g *gatedSource) SelectPage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) ([]archive.Row, archive.Cursor, error) {
	g.wait("select")
	return g.MemorySource.SelectPage(ctx, spec, pred, after, pageSize)
}

func (g *gatedSource) DeletePage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) (int64, archive.Cursor, error) {
	g.wait("delete")
	return g.MemorySource.DeletePage(ctx, spec, pred, after, pageSize)
}

// partialArchive runs an archive of 30 rows whose deletion stops after 10.
func partialArchive(t *testing.T, f *fixture) *archive.ArchiveResult {
	t.Helper()

	f.seed(t, "audit_logs", 1, 30, 30)
	f.source.InjectFault("audit_logs", "delete", 2, errors.New("connection reset"))

	result, err := f.writer.ArchiveTable(context.Background(), "audit_logs", cutoff)
	require.ErrorIs(t, err, archive.ErrPartialDeletion)
	require.Equal(t, int64(10), result.DeletedCount)

	f.source.ClearFaults()
	return result
}

func TestResumeDeletion_ConcurrentResumeRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	result := partialArchive(t, f)

	gated := newGatedSource(f.source, "delete")
	f.writer.source = gated
	gated.armed.Store(true)

	type outcome struct {
		result *archive.ArchiveResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := f.writer.ResumeDeletion(ctx, result.ArchiveUUID)
		done <- outcome{r, err}
	}()

	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first resume never reached deletion")
	}

	second, err := f.writer.ResumeDeletion(ctx, result.ArchiveUUID)
	assert.ErrorIs(t, err, archive.ErrArchiveInProgress)
	assert.False(t, second.Success)

	run, err := f.writer.ArchiveTable(ctx, "audit_logs", cutoff)
	assert.ErrorIs(t, err, archive.ErrArchiveInProgress)
	assert.False(t, run.Success)

	// The first resume still holds the lock.
	lock, err := f.catalog.CurrentLock(ctx, "audit_logs")
	require.NoError(t, err)
	require.NotNil(t, lock)

	close(gated.gate)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, int64(30), first.result.DeletedCount)
	assert.Equal(t, 0, f.source.Count("audit_logs"))

	record, err := f.catalog.Get(ctx, result.ArchiveUUID)
	require.NoError(t, err)
	assert.True(t, record.DeletionComplete)
	assert.Equal(t, int64(30), record.DeletedCount)
}

func TestResumeDeletion_TamperedArchiveStaysVerified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	result := partialArchive(t, f)

	file, err := os.OpenFile(result.FilePath, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = file.Write([]byte{0})
	require.NoError(t, err)
	require.NoError(t, file.Close())

	ok, err := f.writer.verifier.Verify(ctx, result.ArchiveUUID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, archive.ErrVerificationFailed)

	// Rows already deleted stay covered by a verified record.
	record, err := f.catalog.Get(ctx, result.ArchiveUUID)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusVerified, record.Status)
	assert.Equal(t, int64(10), record.DeletedCount)

	resumed, err := f.writer.ResumeDeletion(ctx, result.ArchiveUUID)
	require.NoError(t, err)
	assert.Equal(t, archive.OutcomeArchived, resumed.Outcome)
	assert.Equal(t, int64(30), resumed.DeletedCount)
	assert.Equal(t, 0, f.source.Count("audit_logs"))
}

func TestArchiveTable_ConcurrentRunsSQLiteCatalog(t *testing.T) {
	ctx := context.Background()

	cat, err := catalog.NewSQLiteCatalog(&catalog.SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	src := source.NewMemorySource()
	f := &fixture{source: src}
	f.seed(t, "audit_logs", 1, 40, 30)

	gated := newGatedSource(src, "select")
	gated.armed.Store(true)
	w := New(Config{Directory: t.TempDir(), PageSize: 10}, cat, gated, verifier.New(cat, nil), Options{})

	type outcome struct {
		result *archive.ArchiveResult
		err    error
	}
	results := make(chan outcome, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := w.ArchiveTable(ctx, "audit_logs", cutoff)
			results <- outcome{r, err}
		}()
	}

	// The run holding the lock is parked at the gate, so the first result
	// to arrive is the rejected one.
	var rejected outcome
	select {
	case rejected = <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("no run was rejected")
	}
	close(gated.gate)
	wg.Wait()
	accepted := <-results

	assert.ErrorIs(t, rejected.err, archive.ErrArchiveInProgress)
	assert.False(t, rejected.result.Success)

	require.NoError(t, accepted.err)
	assert.True(t, accepted.result.Success)
	assert.Equal(t, int64(30), accepted.result.RecordCount)
	assert.Equal(t, int64(30), accepted.result.DeletedCount)
	assert.Equal(t, 10, src.Count("audit_logs"))

	records, err := cat.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	lock, err := cat.CurrentLock(ctx, "audit_logs")
	require.NoError(t, err)
	assert.Nil(t, lock)
}
