package archive

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Structured errors below unwrap to these so callers can
// classify failures with errors.Is.
var (
	// ErrStorageUnavailable means the source table or its connection could
	// not be accessed. Transient; nothing was committed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrArchiveInProgress means another run holds the table's archive lock.
	ErrArchiveInProgress = errors.New("archive in progress")

	// ErrVerificationFailed means an archive file did not match its catalog
	// entry. Source data is preserved.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrPartialDeletion means a verified archive's source rows were not all
	// deleted. Deletion is idempotent and safe to resume.
	ErrPartialDeletion = errors.New("partial deletion")

	// ErrArchiveNotFound means no catalog entry has the requested UUID.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrInvalidTransition means a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidQuery means search parameters were rejected.
	ErrInvalidQuery = errors.New("invalid query")
)

// StorageError represents an error from the catalog backend.
type StorageError struct {
	Backend   string // Catalog backend type ("sqlite", "memory")
	Operation string // Operation that failed ("create", "list", "lock", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// SourceError represents a failure of the live table access layer.
// It always matches ErrStorageUnavailable.
type SourceError struct {
	Table     string // Source table
	Operation string // "select", "delete", "stats"
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source error [table=%s, operation=%s]: %v", e.Table, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrStorageUnavailable.
func (e *SourceError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// NewSourceError creates a new SourceError.
func NewSourceError(table, operation string, cause error) *SourceError {
	return &SourceError{
		Table:     table,
		Operation: operation,
		Cause:     cause,
	}
}

// LockError reports that a table is already being archived.
// It always matches ErrArchiveInProgress.
type LockError struct {
	Table      string
	Owner      string
	AcquiredAt time.Time
}

// Error implements the error interface.
func (e *LockError) Error() string {
	return fmt.Sprintf("archive in progress [table=%s, owner=%s, since=%s]",
		e.Table, e.Owner, e.AcquiredAt.Format(time.RFC3339))
}

// Is reports whether target is ErrArchiveInProgress.
func (e *LockError) Is(target error) bool {
	return target == ErrArchiveInProgress
}

// NewLockError creates a LockError from the lock currently held.
func NewLockError(held *Lock) *LockError {
	return &LockError{
		Table:      held.Table,
		Owner:      held.Owner,
		AcquiredAt: held.AcquiredAt,
	}
}

// VerificationError describes why an archive file failed verification.
// It always matches ErrVerificationFailed.
type VerificationError struct {
	UUID   string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("verification failed [uuid=%s]: %s: %v", e.UUID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("verification failed [uuid=%s]: %s", e.UUID, e.Reason)
}

// Unwrap returns the underlying cause error.
func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrVerificationFailed.
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

// NewVerificationError creates a new VerificationError.
func NewVerificationError(uuid, reason string, cause error) *VerificationError {
	return &VerificationError{
		UUID:   uuid,
		Reason: reason,
		Cause:  cause,
	}
}

// DeletionError reports source deletion that stopped before completion.
// It always matches ErrPartialDeletion.
type DeletionError struct {
	UUID    string
	Table   string
	Deleted int64  // Rows deleted so far
	Cursor  Cursor // Resume point
	Cause   error
}

// Error implements the error interface.
func (e *DeletionError) Error() string {
	return fmt.Sprintf("partial deletion [uuid=%s, table=%s, deleted=%d, cursor=%d]: %v",
		e.UUID, e.Table, e.Deleted, e.Cursor, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *DeletionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrPartialDeletion.
func (e *DeletionError) Is(target error) bool {
	return target == ErrPartialDeletion
}

// QueryError represents an invalid search query.
type QueryError struct {
	Query *SearchQuery
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrInvalidQuery.
func (e *QueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *SearchQuery, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RunError wraps a failure of an archive run with its table and phase.
type RunError struct {
	Table string // Source table
	Phase string // "lock", "extract", "write", "register", "verify", "delete"
	Cause error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("archive run error [table=%s, phase=%s]: %v", e.Table, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// NewRunError creates a new RunError.
func NewRunError(table, phase string, cause error) *RunError {
	return &RunError{
		Table: table,
		Phase: phase,
		Cause: cause,
	}
}
