package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/archivist/pkg/archive"
)

// TimeFormatUnix stores timestamps as integer unix seconds.
const TimeFormatUnix = "unix"

// DefaultTimeFormat matches SQLite's CURRENT_TIMESTAMP text encoding.
const DefaultTimeFormat = "2006-01-02 15:04:05"

func quote(name string) string {
	return `"` + name + `"`
}

// SQLiteConfig configures a live SQLite database source.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns bounds the connection pool.
	// Default: 4
	MaxOpenConns int

	// TimeFormat is the encoding of timestamp columns: a Go time layout for
	// text columns, or "unix" for integer seconds.
	// Default: "2006-01-02 15:04:05" (UTC)
	TimeFormat string
}

// SQLSource implements archive.TableSource over database/sql.
type SQLSource struct {
	db         *sql.DB
	timeFormat string
	ownsDB     bool
	logger     *slog.Logger
}

// NewSQLSource wraps an existing database handle. The caller keeps ownership
// of db.
func NewSQLSource(db *sql.DB, timeFormat string) *SQLSource {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &SQLSource{
		db:         db,
		timeFormat: timeFormat,
		logger:     slog.Default().With("component", "archive.source.sql"),
	}
}

// OpenSQLite opens a SQLite database as a table source.
func OpenSQLite(cfg SQLiteConfig) (*SQLSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}

	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_txlock", "immediate")

	db, err := sql.Open("sqlite", cfg.Path+"?"+params.Encode())
	if err != nil {
		return nil, archive.NewSourceError("", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, archive.NewSourceError("", "open", err)
	}

	s := NewSQLSource(db, cfg.TimeFormat)
	s.ownsDB = true

	s.logger.Info("SQLite source opened", "path", cfg.Path, "time_format", s.timeFormat)
	return s, nil
}

// DB returns the underlying database handle.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Close closes the database if it was opened by OpenSQLite.
func (s *SQLSource) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// encodeTime converts a cutoff into the column's storage encoding so the
// comparison is done by SQLite on like-typed values.
func (s *SQLSource) encodeTime(t time.Time) any {
	if s.timeFormat == TimeFormatUnix {
		return t.Unix()
	}
	return t.UTC().Format(s.timeFormat)
}

// predicateClause renders pred plus the paging lower bound.
func (s *SQLSource) predicateClause(spec archive.TableSpec, pred archive.Predicate, after archive.Cursor) (string, []any) {
	conditions := []string{
		quote(spec.TimestampColumn) + " < ?",
		quote(spec.CursorColumn) + " > ?",
	}
	args := []any{s.encodeTime(pred.Before), int64(after)}

	if pred.MaxCursor > 0 {
		conditions = append(conditions, quote(spec.CursorColumn)+" <= ?")
		args = append(args, int64(pred.MaxCursor))
	}

	return strings.Join(conditions, " AND "), args
}

func validateSpec(spec archive.TableSpec) error {
	for _, name := range []string{spec.Name, spec.TimestampColumn, spec.CursorColumn} {
		if err := archive.ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// SelectPage returns up to pageSize matching rows after the given cursor.
func (s *SQLSource) SelectPage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) ([]archive.Row, archive.Cursor, error) {
	spec = spec.WithDefaults()
	if err := validateSpec(spec); err != nil {
		return nil, after, archive.NewSourceError(spec.Name, "select", err)
	}

	where, args := s.predicateClause(spec, pred, after)
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s LIMIT ?",
		quote(spec.Name), where, quote(spec.CursorColumn))
	args = append(args, pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, after, archive.NewSourceError(spec.Name, "select", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, after, archive.NewSourceError(spec.Name, "select", err)
	}

	page := make([]archive.Row, 0, pageSize)
	last := after
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, after, archive.NewSourceError(spec.Name, "scan", err)
		}

		row := make(archive.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				// The driver may reuse the buffer.
				values[i] = string(b)
			}
			row[col] = values[i]
		}

		c, ok := archive.ParseCursor(row[spec.CursorColumn])
		if !ok {
			return nil, after, archive.NewSourceError(spec.Name, "select",
				fmt.Errorf("column %s is not an integer cursor: %v", spec.CursorColumn, row[spec.CursorColumn]))
		}
		last = c
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, after, archive.NewSourceError(spec.Name, "select", err)
	}

	return page, last, nil
}

// DeletePage deletes up to pageSize matching rows after the given cursor in
// one transaction. The page boundary is resolved first so the delete covers
// exactly one cursor range.
func (s *SQLSource) DeletePage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) (int64, archive.Cursor, error) {
	spec = spec.WithDefaults()
	if err := validateSpec(spec); err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}
	defer tx.Rollback()

	where, args := s.predicateClause(spec, pred, after)

	var upper sql.NullInt64
	boundQuery := fmt.Sprintf("SELECT MAX(%s) FROM (SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ?)",
		quote(spec.CursorColumn), quote(spec.CursorColumn), quote(spec.Name), where, quote(spec.CursorColumn))
	if err := tx.QueryRowContext(ctx, boundQuery, append(args, pageSize)...).Scan(&upper); err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}
	if !upper.Valid {
		return 0, after, nil
	}

	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s AND %s <= ?",
		quote(spec.Name), where, quote(spec.CursorColumn))
	result, err := tx.ExecContext(ctx, deleteQuery, append(args, upper.Int64)...)
	if err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, after, archive.NewSourceError(spec.Name, "delete", err)
	}

	return n, archive.Cursor(upper.Int64), nil
}

// Stats returns the row count and an on-disk size estimate. The size comes
// from the dbstat virtual table when available, otherwise from the whole
// database file.
func (s *SQLSource) Stats(ctx context.Context, table string) (archive.TableStats, error) {
	if err := archive.ValidateIdentifier(table); err != nil {
		return archive.TableStats{}, archive.NewSourceError(table, "stats", err)
	}

	var stats archive.TableStats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(table)).Scan(&stats.RowCount); err != nil {
		return archive.TableStats{}, archive.NewSourceError(table, "stats", err)
	}

	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT SUM(pgsize) FROM dbstat WHERE name = ?", table).Scan(&size)
	if err == nil && size.Valid {
		stats.SizeBytes = size.Int64
		return stats, nil
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return archive.TableStats{}, archive.NewSourceError(table, "stats", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return archive.TableStats{}, archive.NewSourceError(table, "stats", err)
	}
	stats.SizeBytes = pageCount * pageSize

	return stats, nil
}

// Tables lists user tables in the database.
func (s *SQLSource) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, archive.NewSourceError("", "tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, archive.NewSourceError("", "tables", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
