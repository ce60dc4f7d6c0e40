package archive

import (
	"context"
	"sort"
	"time"
)

// Status is the lifecycle state of an archive file in the catalog.
type Status string

const (
	// StatusPending means the file is written and registered but not yet
	// confirmed. Source rows have not been deleted.
	StatusPending Status = "pending"

	// StatusVerified means the file integrity was confirmed. Source rows are
	// deleted (or being deleted) only for verified archives.
	StatusVerified Status = "verified"

	// StatusFailed means verification found a mismatch. The file is kept for
	// inspection.
	StatusFailed Status = "failed"
)

// CanTransition reports whether a record in status s may move to next.
// Only pending records change status; verified and failed are final.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusVerified || next == StatusFailed)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusVerified || s == StatusFailed
}

// Cursor is the value of a table's stable paging column (typically an
// auto-increment primary key). Paging starts after cursor 0.
type Cursor int64

// Row is a single decoded table row keyed by column name.
type Row map[string]any

// Default column names used when a table has no explicit TableSpec.
const (
	DefaultTimestampColumn = "created_at"
	DefaultCursorColumn    = "id"
)

// TableSpec describes how a source table is paged and aged.
type TableSpec struct {
	// Name is the source table name.
	Name string `yaml:"name" json:"name"`

	// TimestampColumn holds the row age compared against the cutoff date.
	TimestampColumn string `yaml:"timestamp_column" json:"timestamp_column"`

	// CursorColumn is the stable, monotonically increasing paging key.
	CursorColumn string `yaml:"cursor_column" json:"cursor_column"`
}

// WithDefaults returns a copy of the spec with empty columns defaulted.
func (s TableSpec) WithDefaults() TableSpec {
	if s.TimestampColumn == "" {
		s.TimestampColumn = DefaultTimestampColumn
	}
	if s.CursorColumn == "" {
		s.CursorColumn = DefaultCursorColumn
	}
	return s
}

// Predicate selects the rows of one archive run. Extraction and deletion use
// the same predicate so both operate on an identical row set.
type Predicate struct {
	// Before is the exclusive cutoff: rows with timestamp < Before match.
	Before time.Time

	// MaxCursor bounds the predicate to rows already extracted.
	// Zero means unbounded.
	MaxCursor Cursor
}

// Matches reports whether a row with the given timestamp and cursor
// satisfies the predicate.
func (p Predicate) Matches(ts time.Time, c Cursor) bool {
	if !ts.Before(p.Before) {
		return false
	}
	if p.MaxCursor > 0 && c > p.MaxCursor {
		return false
	}
	return true
}

// ArchiveRecord is the catalog entry for one archive file.
type ArchiveRecord struct {
	// Identity
	UUID  string `json:"uuid"`
	Table string `json:"table"`

	// Run parameters
	CutoffDate      time.Time `json:"cutoff_date"`      // Exclusive upper bound
	TimestampColumn string    `json:"timestamp_column"` // Column compared against CutoffDate
	CursorColumn    string    `json:"cursor_column"`    // Paging column
	CreatedAt       time.Time `json:"created_at"`       // When the run started

	// File
	RecordCount   int64  `json:"record_count"`
	FileSizeBytes int64  `json:"file_size_bytes"`
	FilePath      string `json:"file_path"`
	Checksum      string `json:"checksum"` // SHA-256 of the compressed file

	// Extent of the archived rows
	PeriodStart *time.Time `json:"period_start,omitempty"` // Oldest archived row timestamp
	CursorHigh  Cursor     `json:"cursor_high"`            // Highest cursor extracted

	// Status
	Status     Status     `json:"status"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Error      string     `json:"error,omitempty"`

	// Source deletion progress
	DeletedCount     int64  `json:"deleted_count"`
	DeleteCursor     Cursor `json:"delete_cursor"`
	DeletionComplete bool   `json:"deletion_complete"`
}

// Predicate returns the row predicate this archive was extracted with.
func (r *ArchiveRecord) Predicate() Predicate {
	return Predicate{Before: r.CutoffDate, MaxCursor: r.CursorHigh}
}

// Spec returns the table spec the archive was extracted with.
func (r *ArchiveRecord) Spec() TableSpec {
	return TableSpec{
		Name:            r.Table,
		TimestampColumn: r.TimestampColumn,
		CursorColumn:    r.CursorColumn,
	}.WithDefaults()
}

// Searchable reports whether the archive may be read by search.
func (r *ArchiveRecord) Searchable() bool {
	return r.Status == StatusVerified
}

// ShortID returns the first 8 characters of the UUID for display.
// Uniqueness is only guaranteed on the full UUID.
func (r *ArchiveRecord) ShortID() string {
	if len(r.UUID) <= 8 {
		return r.UUID
	}
	return r.UUID[:8]
}

// Overlaps reports whether the archived period [PeriodStart, CutoffDate)
// intersects the closed range [start, end]. Nil bounds are open.
func (r *ArchiveRecord) Overlaps(start, end *time.Time) bool {
	if start != nil && !r.CutoffDate.After(*start) {
		return false
	}
	if end != nil && r.PeriodStart != nil && r.PeriodStart.After(*end) {
		return false
	}
	return true
}

// Lock is the catalog-backed marker for an archive run in progress.
type Lock struct {
	Table      string    `json:"table"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// TableStats is a point-in-time size estimate of a source table.
type TableStats struct {
	RowCount  int64 `json:"row_count"`
	SizeBytes int64 `json:"size_bytes"`
}

// TableGrowthSnapshot is one sample of a table's size. The latest snapshot
// per table supersedes all earlier ones.
type TableGrowthSnapshot struct {
	Table           string     `json:"table"`
	RowCount        int64      `json:"row_count"`
	SizeBytes       int64      `json:"size_bytes"`
	LastArchiveDate *time.Time `json:"last_archive_date,omitempty"`
	SampledAt       time.Time  `json:"sampled_at"`
}

// RetentionPolicy controls whether and when a table is archived.
type RetentionPolicy struct {
	Table            string `yaml:"-" json:"table"`
	ArchiveAfterDays int    `yaml:"archive_after_days" json:"archive_after_days"`
	AutoArchive      bool   `yaml:"auto_archive" json:"auto_archive"`
}

// Cutoff returns the cutoff date for a run started at now.
func (p RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.ArchiveAfterDays)
}

// SearchQuery filters archived rows. All set filters must match.
type SearchQuery struct {
	Table     string     `json:"table,omitempty"`
	UserUUID  string     `json:"user_uuid,omitempty"`
	Endpoint  string     `json:"endpoint,omitempty"`
	Action    string     `json:"action,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"` // Inclusive
	EndDate   *time.Time `json:"end_date,omitempty"`   // Inclusive
	Limit     int        `json:"limit,omitempty"`
}

// SearchResult is the outcome of a search over verified archives.
type SearchResult struct {
	Records          []Row         `json:"records"`
	TotalCount       int64         `json:"total_count"` // Matches found within the scan performed
	SearchTime       time.Duration `json:"search_time"`
	ArchivesSearched []string      `json:"archives_searched"`
}

// Outcome classifies an archive run for callers that must not inspect
// internals to decide what happened.
type Outcome string

const (
	// OutcomeNoop means nothing was written and nothing was deleted.
	OutcomeNoop Outcome = "noop"

	// OutcomeUnverified means an archive file exists but failed verification.
	// Source rows are untouched.
	OutcomeUnverified Outcome = "unverified"

	// OutcomePartialDeletion means the archive is verified but source deletion
	// did not finish. It is safe to resume.
	OutcomePartialDeletion Outcome = "partial_deletion"

	// OutcomeArchived means the archive is verified and source rows deleted.
	OutcomeArchived Outcome = "archived"
)

// ArchiveResult reports the outcome of one archive run.
type ArchiveResult struct {
	Success       bool          `json:"success"`
	Outcome       Outcome       `json:"outcome"`
	Table         string        `json:"table"`
	ArchiveUUID   string        `json:"archive_uuid,omitempty"`
	RecordCount   int64         `json:"record_count"`
	FileSizeBytes int64         `json:"file_size_bytes"`
	FilePath      string        `json:"file_path,omitempty"`
	DeletedCount  int64         `json:"deleted_count"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
	Error         string        `json:"error,omitempty"`
}

// Fail records err on the result and marks it unsuccessful.
func (r *ArchiveResult) Fail(outcome Outcome, err error) *ArchiveResult {
	r.Success = false
	r.Outcome = outcome
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// RecordFilter selects catalog entries. Results are always ordered most
// recent first.
type RecordFilter struct {
	Table    string
	Statuses []Status

	// OverlapStart and OverlapEnd keep records whose archived period
	// intersects [OverlapStart, OverlapEnd].
	OverlapStart *time.Time
	OverlapEnd   *time.Time

	// DeletionIncomplete keeps only records whose source deletion has not
	// finished.
	DeletionIncomplete bool

	Limit int
}

// DeletionProgress is the checkpoint of a source deletion.
type DeletionProgress struct {
	DeletedCount int64
	Cursor       Cursor
	Complete     bool
}

// Catalog is the durable manifest of archive files, lock records and growth
// snapshots. Implementations must be safe for concurrent use across
// processes that share the same backing store.
type Catalog interface {
	// Create registers a new record. The UUID must be unique.
	Create(ctx context.Context, record *ArchiveRecord) error

	// Get returns the record with the given UUID or ErrArchiveNotFound.
	Get(ctx context.Context, uuid string) (*ArchiveRecord, error)

	// List returns records matching the filter, most recent first.
	List(ctx context.Context, filter *RecordFilter) ([]*ArchiveRecord, error)

	// SetStatus moves a record to a new status. Invalid transitions return
	// ErrInvalidTransition.
	SetStatus(ctx context.Context, uuid string, status Status, reason string) error

	// UpdateDeletion checkpoints source deletion progress.
	UpdateDeletion(ctx context.Context, uuid string, progress DeletionProgress) error

	// AcquireLock takes the per-table archive lock for owner. A lock held by
	// another owner yields ErrArchiveInProgress unless it is older than
	// staleAfter (zero disables takeover).
	AcquireLock(ctx context.Context, table, owner string, staleAfter time.Duration) (*Lock, error)

	// ReleaseLock drops the lock if owner still holds it.
	ReleaseLock(ctx context.Context, table, owner string) error

	// CurrentLock returns the lock on table, or nil if none is held.
	CurrentLock(ctx context.Context, table string) (*Lock, error)

	// SaveSnapshot persists a growth snapshot.
	SaveSnapshot(ctx context.Context, snapshot *TableGrowthSnapshot) error

	// LatestSnapshot returns the newest snapshot for table, or nil.
	LatestSnapshot(ctx context.Context, table string) (*TableGrowthSnapshot, error)

	// SnapshotTables lists every table with at least one snapshot.
	SnapshotTables(ctx context.Context) ([]string, error)

	// Close releases resources held by the catalog.
	Close() error
}

// TableSource is the live table access layer consumed by the engine.
type TableSource interface {
	// SelectPage returns up to pageSize rows matching pred with cursor
	// greater than after, ordered by cursor, and the cursor of the last row.
	SelectPage(ctx context.Context, spec TableSpec, pred Predicate, after Cursor, pageSize int) ([]Row, Cursor, error)

	// DeletePage deletes up to pageSize rows matching pred with cursor
	// greater than after, in cursor order. Deleting rows that are already
	// gone is not an error; it returns zero.
	DeletePage(ctx context.Context, spec TableSpec, pred Predicate, after Cursor, pageSize int) (int64, Cursor, error)

	// Stats returns the current row count and size estimate of table.
	Stats(ctx context.Context, table string) (TableStats, error)
}

// PolicySource supplies retention policies by table name.
type PolicySource interface {
	// Policy returns the policy for table and whether one is configured.
	Policy(table string) (RetentionPolicy, bool)

	// Tables lists every table with a configured policy.
	Tables() []string
}

// PolicyMap is a static PolicySource.
type PolicyMap map[string]RetentionPolicy

// Policy implements PolicySource.
func (m PolicyMap) Policy(table string) (RetentionPolicy, bool) {
	p, ok := m[table]
	if ok {
		p.Table = table
	}
	return p, ok
}

// Tables implements PolicySource.
func (m PolicyMap) Tables() []string {
	tables := make([]string, 0, len(m))
	for t := range m {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
