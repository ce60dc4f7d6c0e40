package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/archivist/pkg/archive"
)

// MemoryCatalog implements archive.Catalog in process memory.
// Locks only exclude callers sharing the same instance. This implementation
// is intended for testing and dry runs.
type MemoryCatalog struct {
	mu        sync.RWMutex
	records   map[string]*archive.ArchiveRecord
	order     map[string]int // insertion sequence, breaks CreatedAt ties
	seq       int
	locks     map[string]*archive.Lock
	snapshots map[string][]*archive.TableGrowthSnapshot
	now       func() time.Time
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		records:   make(map[string]*archive.ArchiveRecord),
		order:     make(map[string]int),
		locks:     make(map[string]*archive.Lock),
		snapshots: make(map[string][]*archive.TableGrowthSnapshot),
		now:       time.Now,
	}
}

// Create registers a new record.
func (c *MemoryCatalog) Create(ctx context.Context, record *archive.ArchiveRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[record.UUID]; exists {
		return archive.NewStorageError("memory", "create", fmt.Errorf("duplicate uuid %s", record.UUID))
	}

	c.records[record.UUID] = copyRecord(record)
	c.seq++
	c.order[record.UUID] = c.seq
	return nil
}

// Get returns the record with the given UUID.
func (c *MemoryCatalog) Get(ctx context.Context, uuid string) (*archive.ArchiveRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.records[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", archive.ErrArchiveNotFound, uuid)
	}
	return copyRecord(r), nil
}

// List returns records matching the filter, most recent first.
func (c *MemoryCatalog) List(ctx context.Context, filter *archive.RecordFilter) ([]*archive.ArchiveRecord, error) {
	if filter == nil {
		filter = &archive.RecordFilter{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := []*archive.ArchiveRecord{}
	for _, r := range c.records {
		if matchesFilter(r, filter) {
			results = append(results, copyRecord(r))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return c.order[results[i].UUID] > c.order[results[j].UUID]
	})

	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return results, nil
}

func matchesFilter(r *archive.ArchiveRecord, filter *archive.RecordFilter) bool {
	if filter.Table != "" && r.Table != filter.Table {
		return false
	}

	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if (filter.OverlapStart != nil || filter.OverlapEnd != nil) && !r.Overlaps(filter.OverlapStart, filter.OverlapEnd) {
		return false
	}

	if filter.DeletionIncomplete && r.DeletionComplete {
		return false
	}

	return true
}

// SetStatus moves a record to a new status.
func (c *MemoryCatalog) SetStatus(ctx context.Context, uuid string, status archive.Status, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", archive.ErrArchiveNotFound, uuid)
	}

	if !r.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", archive.ErrInvalidTransition, r.Status, status)
	}

	r.Status = status
	switch status {
	case archive.StatusVerified:
		now := c.now().UTC()
		r.VerifiedAt = &now
		r.Error = ""
	case archive.StatusFailed:
		r.Error = reason
	}
	return nil
}

// UpdateDeletion checkpoints source deletion progress.
func (c *MemoryCatalog) UpdateDeletion(ctx context.Context, uuid string, progress archive.DeletionProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", archive.ErrArchiveNotFound, uuid)
	}

	r.DeletedCount = progress.DeletedCount
	r.DeleteCursor = progress.Cursor
	r.DeletionComplete = progress.Complete
	return nil
}

// AcquireLock takes the per-table lock for owner.
func (c *MemoryCatalog) AcquireLock(ctx context.Context, table, owner string, staleAfter time.Duration) (*archive.Lock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if held, ok := c.locks[table]; ok && held.Owner != owner {
		stale := staleAfter > 0 && held.AcquiredAt.Before(now.Add(-staleAfter))
		if !stale {
			return nil, archive.NewLockError(held)
		}
	}

	lock := &archive.Lock{Table: table, Owner: owner, AcquiredAt: now}
	c.locks[table] = lock

	l := *lock
	return &l, nil
}

// ReleaseLock drops the lock if owner still holds it.
func (c *MemoryCatalog) ReleaseLock(ctx context.Context, table, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.locks[table]; ok && held.Owner == owner {
		delete(c.locks, table)
	}
	return nil
}

// CurrentLock returns the lock on table, or nil.
func (c *MemoryCatalog) CurrentLock(ctx context.Context, table string) (*archive.Lock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	held, ok := c.locks[table]
	if !ok {
		return nil, nil
	}
	l := *held
	return &l, nil
}

// SaveSnapshot persists a growth snapshot.
func (c *MemoryCatalog) SaveSnapshot(ctx context.Context, snapshot *archive.TableGrowthSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := *snapshot
	if snapshot.LastArchiveDate != nil {
		t := *snapshot.LastArchiveDate
		s.LastArchiveDate = &t
	}
	c.snapshots[s.Table] = append(c.snapshots[s.Table], &s)
	return nil
}

// LatestSnapshot returns the newest snapshot for table, or nil.
func (c *MemoryCatalog) LatestSnapshot(ctx context.Context, table string) (*archive.TableGrowthSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var latest *archive.TableGrowthSnapshot
	for _, s := range c.snapshots[table] {
		// Later inserts win ties on SampledAt.
		if latest == nil || !s.SampledAt.Before(latest.SampledAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}

	s := *latest
	return &s, nil
}

// SnapshotTables lists every table with at least one snapshot.
func (c *MemoryCatalog) SnapshotTables(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tables := make([]string, 0, len(c.snapshots))
	for t := range c.snapshots {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

// Close is a no-op.
func (c *MemoryCatalog) Close() error {
	return nil
}

// Size returns the number of records. Useful for testing.
func (c *MemoryCatalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func copyRecord(r *archive.ArchiveRecord) *archive.ArchiveRecord {
	cp := *r
	if r.PeriodStart != nil {
		t := *r.PeriodStart
		cp.PeriodStart = &t
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		cp.VerifiedAt = &t
	}
	return &cp
}
