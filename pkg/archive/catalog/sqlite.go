package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/archivist/pkg/archive"
)

const backendSQLite = "sqlite"

// SQLiteConfig contains configuration for the SQLite catalog backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 4
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode for concurrent readers.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite catalog configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/catalog.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteCatalog implements archive.Catalog on a SQLite database.
type SQLiteCatalog struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteCatalog opens the catalog database and applies migrations.
func NewSQLiteCatalog(config *SQLiteConfig) (*SQLiteCatalog, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "archive.catalog.sqlite")

	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, archive.NewStorageError(backendSQLite, "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", buildDSN(config))
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "open", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, archive.NewStorageError(backendSQLite, "ping", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, archive.NewStorageError(backendSQLite, "migrate", err)
	}

	logger.Info("SQLite catalog initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", maxOpen,
	)

	return &SQLiteCatalog{
		db:     db,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// buildDSN constructs a SQLite DSN. Transactions take the write lock at
// BEGIN so concurrent writers queue on busy_timeout instead of failing on
// upgrade.
func buildDSN(config *SQLiteConfig) string {
	params := url.Values{}
	if config.WALMode {
		params.Set("_journal_mode", "WAL")
	}
	busy := config.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	params.Set("_busy_timeout", fmt.Sprintf("%d", busy.Milliseconds()))
	params.Set("_synchronous", "NORMAL")
	params.Set("_txlock", "immediate")

	return config.Path + "?" + params.Encode()
}

const recordColumns = `uuid, table_name, cutoff_date, timestamp_column, cursor_column, created_at,
	record_count, file_size_bytes, file_path, checksum, period_start, cursor_high,
	status, verified_at, error, deleted_count, delete_cursor, deletion_complete`

// Create registers a new record.
func (c *SQLiteCatalog) Create(ctx context.Context, record *archive.ArchiveRecord) error {
	query := `INSERT INTO archives (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var errVal any
	if record.Error != "" {
		errVal = record.Error
	}

	_, err := c.db.ExecContext(ctx, query,
		record.UUID, record.Table, toNanos(record.CutoffDate), record.TimestampColumn, record.CursorColumn,
		toNanos(record.CreatedAt),
		record.RecordCount, record.FileSizeBytes, record.FilePath, record.Checksum,
		nullNanos(record.PeriodStart), int64(record.CursorHigh),
		string(record.Status), nullNanos(record.VerifiedAt), errVal,
		record.DeletedCount, int64(record.DeleteCursor), record.DeletionComplete,
	)
	if err != nil {
		return archive.NewStorageError(backendSQLite, "create", err)
	}

	return nil
}

// Get returns the record with the given UUID.
func (c *SQLiteCatalog) Get(ctx context.Context, uuid string) (*archive.ArchiveRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM archives WHERE uuid = ?`, uuid)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", archive.ErrArchiveNotFound, uuid)
	}
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "get", err)
	}
	return record, nil
}

// List returns records matching the filter, most recent first.
func (c *SQLiteCatalog) List(ctx context.Context, filter *archive.RecordFilter) ([]*archive.ArchiveRecord, error) {
	if filter == nil {
		filter = &archive.RecordFilter{}
	}

	whereClause, args := buildWhereClause(filter)

	query := `SELECT ` + recordColumns + ` FROM archives`
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "list", err)
	}
	defer rows.Close()

	records := []*archive.ArchiveRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, archive.NewStorageError(backendSQLite, "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError(backendSQLite, "list", err)
	}

	return records, nil
}

// buildWhereClause builds a WHERE clause from the record filter.
func buildWhereClause(filter *archive.RecordFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Table != "" {
		conditions = append(conditions, "table_name = ?")
		args = append(args, filter.Table)
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.OverlapStart != nil {
		conditions = append(conditions, "cutoff_date > ?")
		args = append(args, toNanos(*filter.OverlapStart))
	}

	if filter.OverlapEnd != nil {
		conditions = append(conditions, "(period_start IS NULL OR period_start <= ?)")
		args = append(args, toNanos(*filter.OverlapEnd))
	}

	if filter.DeletionIncomplete {
		conditions = append(conditions, "deletion_complete = 0")
	}

	return strings.Join(conditions, " AND "), args
}

// SetStatus moves a record to a new status with a compare-and-swap so that
// concurrent transitions cannot both succeed.
func (c *SQLiteCatalog) SetStatus(ctx context.Context, uuid string, status archive.Status, reason string) error {
	current, err := c.Get(ctx, uuid)
	if err != nil {
		return err
	}

	if !current.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", archive.ErrInvalidTransition, current.Status, status)
	}

	var verifiedAt, errVal any
	switch status {
	case archive.StatusVerified:
		verifiedAt = toNanos(c.now())
	case archive.StatusFailed:
		errVal = reason
		verifiedAt = nullNanos(current.VerifiedAt)
	}

	result, err := c.db.ExecContext(ctx,
		`UPDATE archives SET status = ?, verified_at = ?, error = ? WHERE uuid = ? AND status = ?`,
		string(status), verifiedAt, errVal, uuid, string(current.Status),
	)
	if err != nil {
		return archive.NewStorageError(backendSQLite, "set_status", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return archive.NewStorageError(backendSQLite, "set_status", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s changed concurrently", archive.ErrInvalidTransition, uuid)
	}

	return nil
}

// UpdateDeletion checkpoints source deletion progress.
func (c *SQLiteCatalog) UpdateDeletion(ctx context.Context, uuid string, progress archive.DeletionProgress) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE archives SET deleted_count = ?, delete_cursor = ?, deletion_complete = ? WHERE uuid = ?`,
		progress.DeletedCount, int64(progress.Cursor), progress.Complete, uuid,
	)
	if err != nil {
		return archive.NewStorageError(backendSQLite, "update_deletion", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return archive.NewStorageError(backendSQLite, "update_deletion", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", archive.ErrArchiveNotFound, uuid)
	}

	return nil
}

// AcquireLock takes the per-table lock with a single upsert. The update arm
// only fires for the same owner or a stale holder, so exactly one of several
// concurrent callers can win.
func (c *SQLiteCatalog) AcquireLock(ctx context.Context, table, owner string, staleAfter time.Duration) (*archive.Lock, error) {
	now := c.now()

	staleBefore := int64(0)
	if staleAfter > 0 {
		staleBefore = toNanos(now.Add(-staleAfter))
	}

	result, err := c.db.ExecContext(ctx, `
		INSERT INTO archive_locks (table_name, owner, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at
		WHERE archive_locks.owner = excluded.owner OR archive_locks.acquired_at < ?`,
		table, owner, toNanos(now), staleBefore,
	)
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "acquire_lock", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "acquire_lock", err)
	}

	if n == 0 {
		held, err := c.CurrentLock(ctx, table)
		if err != nil {
			return nil, err
		}
		if held == nil {
			// Released between the upsert and the read; report as busy and let
			// the caller retry on its next run.
			held = &archive.Lock{Table: table, AcquiredAt: now}
		}
		return nil, archive.NewLockError(held)
	}

	return &archive.Lock{Table: table, Owner: owner, AcquiredAt: fromNanos(toNanos(now))}, nil
}

// ReleaseLock drops the lock if owner still holds it.
func (c *SQLiteCatalog) ReleaseLock(ctx context.Context, table, owner string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM archive_locks WHERE table_name = ? AND owner = ?`, table, owner)
	if err != nil {
		return archive.NewStorageError(backendSQLite, "release_lock", err)
	}
	return nil
}

// CurrentLock returns the lock on table, or nil if none is held.
func (c *SQLiteCatalog) CurrentLock(ctx context.Context, table string) (*archive.Lock, error) {
	var owner string
	var acquiredAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT owner, acquired_at FROM archive_locks WHERE table_name = ?`, table,
	).Scan(&owner, &acquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "current_lock", err)
	}
	return &archive.Lock{Table: table, Owner: owner, AcquiredAt: fromNanos(acquiredAt)}, nil
}

// SaveSnapshot persists a growth snapshot.
func (c *SQLiteCatalog) SaveSnapshot(ctx context.Context, snapshot *archive.TableGrowthSnapshot) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO growth_snapshots (table_name, row_count, size_bytes, last_archive_date, sampled_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snapshot.Table, snapshot.RowCount, snapshot.SizeBytes,
		nullNanos(snapshot.LastArchiveDate), toNanos(snapshot.SampledAt),
	)
	if err != nil {
		return archive.NewStorageError(backendSQLite, "save_snapshot", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for table, or nil.
func (c *SQLiteCatalog) LatestSnapshot(ctx context.Context, table string) (*archive.TableGrowthSnapshot, error) {
	var s archive.TableGrowthSnapshot
	var lastArchive sql.NullInt64
	var sampledAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT table_name, row_count, size_bytes, last_archive_date, sampled_at
		 FROM growth_snapshots WHERE table_name = ?
		 ORDER BY sampled_at DESC, id DESC LIMIT 1`, table,
	).Scan(&s.Table, &s.RowCount, &s.SizeBytes, &lastArchive, &sampledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "latest_snapshot", err)
	}

	s.LastArchiveDate = timeFromNull(lastArchive)
	s.SampledAt = fromNanos(sampledAt)
	return &s, nil
}

// SnapshotTables lists every table with at least one snapshot.
func (c *SQLiteCatalog) SnapshotTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT table_name FROM growth_snapshots ORDER BY table_name`)
	if err != nil {
		return nil, archive.NewStorageError(backendSQLite, "snapshot_tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, archive.NewStorageError(backendSQLite, "scan", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError(backendSQLite, "snapshot_tables", err)
	}
	return tables, nil
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	c.logger.Info("closing SQLite catalog")
	if err := c.db.Close(); err != nil {
		return archive.NewStorageError(backendSQLite, "close", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*archive.ArchiveRecord, error) {
	var r archive.ArchiveRecord
	var cutoff, createdAt, cursorHigh, deleteCursor int64
	var periodStart, verifiedAt sql.NullInt64
	var status string
	var errVal sql.NullString

	err := s.Scan(
		&r.UUID, &r.Table, &cutoff, &r.TimestampColumn, &r.CursorColumn, &createdAt,
		&r.RecordCount, &r.FileSizeBytes, &r.FilePath, &r.Checksum, &periodStart, &cursorHigh,
		&status, &verifiedAt, &errVal, &r.DeletedCount, &deleteCursor, &r.DeletionComplete,
	)
	if err != nil {
		return nil, err
	}

	r.CutoffDate = fromNanos(cutoff)
	r.CreatedAt = fromNanos(createdAt)
	r.PeriodStart = timeFromNull(periodStart)
	r.CursorHigh = archive.Cursor(cursorHigh)
	r.Status = archive.Status(status)
	r.VerifiedAt = timeFromNull(verifiedAt)
	r.Error = errVal.String
	r.DeleteCursor = archive.Cursor(deleteCursor)

	return &r, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
