// Package verifier confirms that archive files match their catalog entries.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/codec"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Verifier re-reads archive files and compares checksum, size and record
// count against the catalog. It never promotes a record to verified; the
// writer does that after a successful check.
type Verifier struct {
	catalog archive.Catalog
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a verifier. collector may be nil.
func New(catalog archive.Catalog, collector *metrics.Collector) *Verifier {
	return &Verifier{
		catalog: catalog,
		metrics: collector,
		logger:  slog.Default().With("component", "archive.verifier"),
	}
}

// Verify checks the archive with the given UUID. A mismatch on a pending
// record marks it failed and returns false with a nil error. Verified
// records are final: a mismatch is reported as a *archive.VerificationError
// and the catalog is left as is. Other errors mean a missing record or an
// unreachable catalog.
func (v *Verifier) Verify(ctx context.Context, uuid string) (bool, error) {
	record, err := v.catalog.Get(ctx, uuid)
	if err != nil {
		return false, err
	}
	return v.VerifyRecord(ctx, record)
}

// VerifyRecord is Verify for a record the caller already holds.
func (v *Verifier) VerifyRecord(ctx context.Context, record *archive.ArchiveRecord) (bool, error) {
	ctx = logging.WithArchiveUUID(logging.WithTable(ctx, record.Table), record.UUID)

	if err := Check(record); err != nil {
		v.metrics.RecordVerification(record.Table, false)

		if record.Status == archive.StatusVerified {
			v.logger.ErrorContext(ctx, "Verified archive no longer matches its catalog record",
				"path", record.FilePath,
				"deleted", record.DeletedCount,
				"error", err,
			)
			return false, err
		}

		v.logger.WarnContext(ctx, "Archive verification failed",
			"path", record.FilePath,
			"error", err,
		)
		if record.Status == archive.StatusPending {
			if err := v.catalog.SetStatus(ctx, record.UUID, archive.StatusFailed, err.Error()); err != nil {
				return false, fmt.Errorf("failed to mark archive %s failed: %w", record.UUID, err)
			}
		}
		return false, nil
	}

	v.metrics.RecordVerification(record.Table, true)
	v.logger.DebugContext(ctx, "Archive verified", "records", record.RecordCount)
	return true, nil
}

// Check compares the archive file with record without touching the catalog.
// It returns a *archive.VerificationError describing the first mismatch.
func Check(record *archive.ArchiveRecord) error {
	checksum, size, err := codec.ChecksumFile(record.FilePath)
	if err != nil {
		return archive.NewVerificationError(record.UUID, "archive file unreadable", err)
	}
	if checksum != record.Checksum {
		return archive.NewVerificationError(record.UUID,
			fmt.Sprintf("checksum mismatch: expected %s, got %s", record.Checksum, checksum), nil)
	}
	if size != record.FileSizeBytes {
		return archive.NewVerificationError(record.UUID,
			fmt.Sprintf("size mismatch: expected %d bytes, got %d", record.FileSizeBytes, size), nil)
	}

	file, err := os.Open(record.FilePath)
	if err != nil {
		return archive.NewVerificationError(record.UUID, "archive file unreadable", err)
	}
	defer file.Close()

	count, err := codec.CountRecords(file)
	if err != nil {
		return archive.NewVerificationError(record.UUID,
			fmt.Sprintf("corrupt record after %d records", count), err)
	}

	if count != record.RecordCount {
		return archive.NewVerificationError(record.UUID,
			fmt.Sprintf("record count mismatch: expected %d, got %d", record.RecordCount, count), nil)
	}

	return nil
}
