package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/archive/codec"
	"mercator-hq/archivist/pkg/archive/verifier"
	"mercator-hq/archivist/pkg/telemetry/logging"
	"mercator-hq/archivist/pkg/telemetry/metrics"
)

// Config contains archive run settings.
type Config struct {
	// Directory is the root of archive files. Each table gets a
	// subdirectory.
	Directory string

	// PageSize is the number of rows selected or deleted per page.
	PageSize int

	// CompressionLevel is the gzip level (-1 for default).
	CompressionLevel int

	// PagesPerSecond throttles extraction and deletion (0 = unlimited).
	PagesPerSecond float64

	// LockStaleAfter allows taking over a lock older than this (0 = never).
	LockStaleAfter time.Duration
}

// Mirror copies a verified archive file offsite.
type Mirror interface {
	Upload(ctx context.Context, record *archive.ArchiveRecord) error
}

// Options carries optional collaborators.
type Options struct {
	// Specs resolves the columns of a table. Nil uses the default columns.
	Specs func(table string) archive.TableSpec

	// Mirror receives verified archives. Upload failures are logged and do
	// not fail the run.
	Mirror Mirror

	// Metrics may be nil.
	Metrics *metrics.Collector
}

// Writer runs archive runs: extract, write, register, verify, delete.
type Writer struct {
	config   Config
	catalog  archive.Catalog
	source   archive.TableSource
	verifier *verifier.Verifier
	specs    func(table string) archive.TableSpec
	mirror   Mirror
	metrics  *metrics.Collector
	owner    string
	logger   *slog.Logger
	now      func() time.Time

	// beforeVerify runs between registration and verification.
	beforeVerify func(record *archive.ArchiveRecord)
}

// New creates a writer.
func New(cfg Config, catalog archive.Catalog, source archive.TableSource, v *verifier.Verifier, opts Options) *Writer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = -1
	}

	specs := opts.Specs
	if specs == nil {
		specs = func(table string) archive.TableSpec {
			return archive.TableSpec{Name: table}.WithDefaults()
		}
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Writer{
		config:   cfg,
		catalog:  catalog,
		source:   source,
		verifier: v,
		specs:    specs,
		mirror:   opts.Mirror,
		metrics:  opts.Metrics,
		owner:    fmt.Sprintf("%s:%d", host, os.Getpid()),
		logger:   slog.Default().With("component", "archive.writer"),
		now:      time.Now,
	}
}

// limiter returns a page limiter for one run, or nil when unthrottled.
func (w *Writer) limiter() *rate.Limiter {
	if w.config.PagesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(w.config.PagesPerSecond), 1)
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// filePath returns where the archive with id is written.
func (w *Writer) filePath(table, id string, cutoff time.Time) string {
	name := fmt.Sprintf("%s_%s_%s%s", table, cutoff.UTC().Format("20060102T150405Z"), id, codec.Extension)
	return filepath.Join(w.config.Directory, table, name)
}

// ArchiveTable archives every row of table with timestamp before cutoff.
//
// The returned result is never nil. The error is the result's Err: a run
// that found nothing to archive succeeds with OutcomeNoop, and a run that
// wrote a file that failed verification returns OutcomeUnverified with an
// error matching archive.ErrVerificationFailed.
//
// Cancelling ctx stops the run between pages while extracting. Once the
// archive is registered the run finishes verification and deletion.
func (w *Writer) ArchiveTable(ctx context.Context, table string, cutoff time.Time) (*archive.ArchiveResult, error) {
	start := w.now()
	runID := uuid.NewString()
	ctx = logging.WithTable(logging.WithRunID(ctx, runID), table)

	result := &archive.ArchiveResult{Table: table, Outcome: archive.OutcomeNoop}
	defer func() {
		result.Duration = w.now().Sub(start)
		w.metrics.RecordArchiveRun(table, string(result.Outcome), result.Duration, result.RecordCount, result.FileSizeBytes)
		if result.Err != nil {
			w.logger.ErrorContext(ctx, "Archive run failed",
				"outcome", result.Outcome,
				"error", result.Err,
			)
		}
	}()

	spec := w.specs(table)
	spec.Name = table
	spec = spec.WithDefaults()
	if err := validateSpec(spec); err != nil {
		result.Fail(archive.OutcomeNoop, archive.NewRunError(table, "extract", archive.NewSourceError(table, "select", err)))
		return result, result.Err
	}

	owner := w.owner + "/" + runID
	if _, err := w.catalog.AcquireLock(ctx, table, owner, w.config.LockStaleAfter); err != nil {
		result.Fail(archive.OutcomeNoop, archive.NewRunError(table, "lock", err))
		return result, result.Err
	}
	defer func() {
		// Release even if the caller cancelled.
		if err := w.catalog.ReleaseLock(context.WithoutCancel(ctx), table, owner); err != nil {
			w.logger.WarnContext(ctx, "Failed to release archive lock", "error", err)
		}
	}()

	w.logger.InfoContext(ctx, "Archive run started", "cutoff", cutoff.UTC())

	// Finish earlier runs first so their rows are not exported twice.
	if err := w.resumeIncomplete(ctx, table); err != nil {
		result.Fail(archive.OutcomePartialDeletion, archive.NewRunError(table, "delete", err))
		return result, result.Err
	}

	limiter := w.limiter()
	id := uuid.NewString()
	path := w.filePath(table, id, cutoff)
	ctx = logging.WithArchiveUUID(ctx, id)

	var (
		periodStart *time.Time
		cursorHigh  archive.Cursor
	)
	extractPred := archive.Predicate{Before: cutoff}

	info, err := codec.WriteFile(path, w.config.CompressionLevel, func(cw *codec.Writer) error {
		var after archive.Cursor
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := wait(ctx, limiter); err != nil {
				return err
			}

			rows, last, err := w.source.SelectPage(ctx, spec, extractPred, after, w.config.PageSize)
			if err != nil {
				return err
			}

			for _, row := range rows {
				if ts, ok := archive.ParseTime(row[spec.TimestampColumn]); ok {
					if periodStart == nil || ts.Before(*periodStart) {
						t := ts.UTC()
						periodStart = &t
					}
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}

			if len(rows) > 0 {
				cursorHigh = last
				after = last
			}
			if len(rows) < w.config.PageSize {
				return nil
			}
		}
	})
	if err != nil {
		phase := "write"
		if errors.Is(err, archive.ErrStorageUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			phase = "extract"
		}
		result.Fail(archive.OutcomeNoop, archive.NewRunError(table, phase, err))
		return result, result.Err
	}

	if info.RecordCount == 0 {
		if err := os.Remove(info.Path); err != nil {
			w.logger.WarnContext(ctx, "Failed to remove empty archive file", "path", info.Path, "error", err)
		}
		result.Success = true
		w.logger.InfoContext(ctx, "No rows eligible for archiving")
		return result, nil
	}

	// Past this point the run completes regardless of cancellation.
	ctx = context.WithoutCancel(ctx)

	record := &archive.ArchiveRecord{
		UUID:            id,
		Table:           table,
		CutoffDate:      cutoff.UTC(),
		TimestampColumn: spec.TimestampColumn,
		CursorColumn:    spec.CursorColumn,
		CreatedAt:       start.UTC(),
		RecordCount:     info.RecordCount,
		FileSizeBytes:   info.SizeBytes,
		FilePath:        info.Path,
		Checksum:        info.Checksum,
		PeriodStart:     periodStart,
		CursorHigh:      cursorHigh,
		Status:          archive.StatusPending,
	}

	result.ArchiveUUID = id
	result.RecordCount = info.RecordCount
	result.FileSizeBytes = info.SizeBytes
	result.FilePath = info.Path

	if err := w.catalog.Create(ctx, record); err != nil {
		if rmErr := os.Remove(info.Path); rmErr != nil {
			w.logger.WarnContext(ctx, "Failed to remove unregistered archive file", "path", info.Path, "error", rmErr)
		}
		result.ArchiveUUID = ""
		result.FilePath = ""
		result.Fail(archive.OutcomeNoop, archive.NewRunError(table, "register", err))
		return result, result.Err
	}

	w.logger.InfoContext(ctx, "Archive file registered",
		"path", info.Path,
		"records", info.RecordCount,
		"size_bytes", info.SizeBytes,
	)

	if w.beforeVerify != nil {
		w.beforeVerify(record)
	}

	ok, err := w.verifier.VerifyRecord(ctx, record)
	if err != nil {
		result.Fail(archive.OutcomeUnverified, archive.NewRunError(table, "verify", err))
		return result, result.Err
	}
	if !ok {
		reason := "archive file does not match catalog entry"
		if failed, getErr := w.catalog.Get(ctx, id); getErr == nil && failed.Error != "" {
			reason = failed.Error
		}
		result.Fail(archive.OutcomeUnverified,
			archive.NewRunError(table, "verify", archive.NewVerificationError(id, reason, nil)))
		return result, result.Err
	}

	if err := w.catalog.SetStatus(ctx, id, archive.StatusVerified, ""); err != nil {
		result.Fail(archive.OutcomeUnverified, archive.NewRunError(table, "verify", err))
		return result, result.Err
	}
	record.Status = archive.StatusVerified

	if w.mirror != nil {
		if err := w.mirror.Upload(ctx, record); err != nil {
			w.logger.WarnContext(ctx, "Failed to mirror archive", "error", err)
		}
	}

	deleted, err := w.deleteRows(ctx, record, limiter)
	result.DeletedCount = deleted
	if err != nil {
		result.Fail(archive.OutcomePartialDeletion, archive.NewRunError(table, "delete", err))
		return result, result.Err
	}

	result.Success = true
	result.Outcome = archive.OutcomeArchived

	w.logger.InfoContext(ctx, "Archive run completed",
		"records", result.RecordCount,
		"deleted", deleted,
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)

	return result, nil
}

// ResumeDeletion continues the source deletion of a verified archive from
// its last checkpoint. It takes the table's archive lock.
func (w *Writer) ResumeDeletion(ctx context.Context, id string) (*archive.ArchiveResult, error) {
	start := w.now()

	record, err := w.catalog.Get(ctx, id)
	if err != nil {
		return &archive.ArchiveResult{ArchiveUUID: id, Outcome: archive.OutcomeNoop, Err: err, Error: err.Error()}, err
	}

	ctx = logging.WithArchiveUUID(logging.WithTable(ctx, record.Table), id)

	result := &archive.ArchiveResult{
		Table:         record.Table,
		ArchiveUUID:   id,
		RecordCount:   record.RecordCount,
		FileSizeBytes: record.FileSizeBytes,
		FilePath:      record.FilePath,
		DeletedCount:  record.DeletedCount,
		Outcome:       archive.OutcomePartialDeletion,
	}
	defer func() { result.Duration = w.now().Sub(start) }()

	if record.Status != archive.StatusVerified {
		result.Fail(archive.OutcomeUnverified, archive.NewRunError(record.Table, "delete",
			fmt.Errorf("%w: archive %s is %s", archive.ErrInvalidTransition, id, record.Status)))
		return result, result.Err
	}
	if record.DeletionComplete {
		result.Success = true
		result.Outcome = archive.OutcomeArchived
		return result, nil
	}

	owner := w.owner + "/resume-" + uuid.NewString()
	if _, err := w.catalog.AcquireLock(ctx, record.Table, owner, w.config.LockStaleAfter); err != nil {
		result.Fail(archive.OutcomePartialDeletion, archive.NewRunError(record.Table, "lock", err))
		return result, result.Err
	}
	defer func() {
		if err := w.catalog.ReleaseLock(context.WithoutCancel(ctx), record.Table, owner); err != nil {
			w.logger.WarnContext(ctx, "Failed to release archive lock", "error", err)
		}
	}()

	deleted, err := w.deleteRows(context.WithoutCancel(ctx), record, w.limiter())
	result.DeletedCount = deleted
	if err != nil {
		result.Fail(archive.OutcomePartialDeletion, archive.NewRunError(record.Table, "delete", err))
		return result, result.Err
	}

	result.Success = true
	result.Outcome = archive.OutcomeArchived
	w.logger.InfoContext(ctx, "Archive deletion resumed and completed", "deleted", deleted)
	return result, nil
}

// resumeIncomplete finishes deletions of verified archives of table left
// unfinished by earlier runs. The caller holds the table lock.
func (w *Writer) resumeIncomplete(ctx context.Context, table string) error {
	pending, err := w.catalog.List(ctx, &archive.RecordFilter{
		Table:              table,
		Statuses:           []archive.Status{archive.StatusVerified},
		DeletionIncomplete: true,
	})
	if err != nil {
		return err
	}

	for _, record := range pending {
		w.logger.InfoContext(ctx, "Resuming incomplete deletion",
			"archive_uuid", record.UUID,
			"deleted", record.DeletedCount,
		)
		if _, err := w.deleteRows(context.WithoutCancel(ctx), record, w.limiter()); err != nil {
			return err
		}
	}
	return nil
}

// deleteRows deletes the archived row set of record page by page,
// checkpointing progress after each page. It returns the total deleted so
// far, including earlier attempts.
func (w *Writer) deleteRows(ctx context.Context, record *archive.ArchiveRecord, limiter *rate.Limiter) (int64, error) {
	spec := record.Spec()
	pred := record.Predicate()
	after := record.DeleteCursor
	deleted := record.DeletedCount

	fail := func(cause error) (int64, error) {
		return deleted, &archive.DeletionError{
			UUID:    record.UUID,
			Table:   record.Table,
			Deleted: deleted,
			Cursor:  after,
			Cause:   cause,
		}
	}

	for {
		if err := wait(ctx, limiter); err != nil {
			return fail(err)
		}

		n, next, err := w.source.DeletePage(ctx, spec, pred, after, w.config.PageSize)
		if err != nil {
			return fail(err)
		}
		if n == 0 && next == after {
			break
		}

		deleted += n
		after = next
		w.metrics.RecordDeletedRows(record.Table, n)

		if err := w.catalog.UpdateDeletion(ctx, record.UUID, archive.DeletionProgress{
			DeletedCount: deleted,
			Cursor:       after,
		}); err != nil {
			return fail(err)
		}
	}

	if err := w.catalog.UpdateDeletion(ctx, record.UUID, archive.DeletionProgress{
		DeletedCount: deleted,
		Cursor:       after,
		Complete:     true,
	}); err != nil {
		return fail(err)
	}

	record.DeletedCount = deleted
	record.DeleteCursor = after
	record.DeletionComplete = true
	return deleted, nil
}

func validateSpec(spec archive.TableSpec) error {
	for _, name := range []string{spec.Name, spec.TimestampColumn, spec.CursorColumn} {
		if err := archive.ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}
