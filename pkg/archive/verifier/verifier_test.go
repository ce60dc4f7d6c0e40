package verifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/catalog"
	"mercator-hq/archivist/pkg/archive/codec"
)

// registerArchive writes n rows to a file and registers it as pending.
func registerArchive(t *testing.T, cat archive.Catalog, n int) *archive.ArchiveRecord {
	t.Helper()

	path := filepath.Join(t.TempDir(), "audit_logs", "audit_logs_test"+codec.Extension)
	info, err := codec.WriteFile(path, -1, func(w *codec.Writer) error {
		for i := 1; i <= n; i++ {
			if err := w.Write(archive.Row{"id": i, "action": "login"}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	record := &archive.ArchiveRecord{
		UUID:          "0f8fad5b-d9cb-469f-a165-70867728950e",
		Table:         "audit_logs",
		CutoffDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:     time.Now().UTC(),
		RecordCount:   info.RecordCount,
		FileSizeBytes: info.SizeBytes,
		FilePath:      info.Path,
		Checksum:      info.Checksum,
		CursorHigh:    archive.Cursor(n),
		Status:        archive.StatusPending,
	}
	require.NoError(t, cat.Create(context.Background(), record))
	return record
}

func TestVerify_IntactArchive(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog()
	record := registerArchive(t, cat, 25)

	v := New(cat, nil)
	ok, err := v.Verify(ctx, record.UUID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := cat.Get(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusPending, got.Status, "verifier must not promote records")
}

func TestVerify_TamperedFile(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog()
	record := registerArchive(t, cat, 10)

	f, err := os.OpenFile(record.FilePath, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("garbage"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v := New(cat, nil)
	ok, err := v.Verify(ctx, record.UUID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := cat.Get(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "checksum mismatch")

	// Verifying again reports the same result and leaves the record failed.
	ok, err = v.Verify(ctx, record.UUID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_TamperedVerifiedArchive(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog()
	record := registerArchive(t, cat, 10)
	require.NoError(t, cat.SetStatus(ctx, record.UUID, archive.StatusVerified, ""))

	f, err := os.OpenFile(record.FilePath, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v := New(cat, nil)
	ok, err := v.Verify(ctx, record.UUID)
	assert.False(t, ok)
	var verr *archive.VerificationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Error(), "checksum mismatch")

	got, err := cat.Get(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusVerified, got.Status, "verified records are never demoted")
	assert.Empty(t, got.Error)
}

func TestVerify_Idempotent(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemoryCatalog()
	record := registerArchive(t, cat, 5)
	require.NoError(t, cat.SetStatus(ctx, record.UUID, archive.StatusVerified, ""))

	v := New(cat, nil)
	for i := 0; i < 3; i++ {
		ok, err := v.Verify(ctx, record.UUID)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, err := cat.Get(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, archive.StatusVerified, got.Status)
}

func TestVerify_MissingRecord(t *testing.T) {
	v := New(catalog.NewMemoryCatalog(), nil)
	_, err := v.Verify(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, archive.ErrArchiveNotFound), "got %v", err)
}

func TestCheck(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	base := registerArchive(t, cat, 8)

	tests := []struct {
		name   string
		mutate func(r *archive.ArchiveRecord)
		reason string
	}{
		{"intact", func(r *archive.ArchiveRecord) {}, ""},
		{"missing file", func(r *archive.ArchiveRecord) { r.FilePath += ".gone" }, "unreadable"},
		{"wrong checksum", func(r *archive.ArchiveRecord) { r.Checksum = "00" }, "checksum mismatch"},
		{"wrong size", func(r *archive.ArchiveRecord) { r.FileSizeBytes++ }, "size mismatch"},
		{"wrong count", func(r *archive.ArchiveRecord) { r.RecordCount = 9 }, "record count mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *base
			tt.mutate(&r)

			err := Check(&r)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, archive.ErrVerificationFailed)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
