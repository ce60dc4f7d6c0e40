package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mercator-hq/archivist/pkg/archive"
)

// DefaultRowSize is the per-row byte estimate used by MemorySource.Stats.
const DefaultRowSize = 256

// fault is an injected failure for one table operation.
type fault struct {
	after int // successful calls remaining before failing
	err   error
}

type memTable struct {
	spec archive.TableSpec
	rows []archive.Row // sorted by cursor
}

// MemorySource implements archive.TableSource in process memory.
// Rows are kept sorted by cursor so paging is a binary search.
// This implementation is intended for testing only.
type MemorySource struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	faults  map[string]*fault
	RowSize int64
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		tables:  make(map[string]*memTable),
		faults:  make(map[string]*fault),
		RowSize: DefaultRowSize,
	}
}

// CreateTable registers a table. Inserting into an unknown table creates it
// with default columns.
func (m *MemorySource) CreateTable(spec archive.TableSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[spec.Name] = &memTable{spec: spec.WithDefaults()}
}

// Insert adds rows to table. Every row must carry the cursor column and a
// parseable timestamp column.
func (m *MemorySource) Insert(table string, rows ...archive.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = &memTable{spec: archive.TableSpec{Name: table}.WithDefaults()}
		m.tables[table] = t
	}

	for _, row := range rows {
		if _, ok := archive.ParseCursor(row[t.spec.CursorColumn]); !ok {
			return fmt.Errorf("row missing cursor column %s", t.spec.CursorColumn)
		}
		if _, ok := archive.ParseTime(row[t.spec.TimestampColumn]); !ok {
			return fmt.Errorf("row missing timestamp column %s", t.spec.TimestampColumn)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	// Appending ascending cursors past the current tail keeps order.
	appendOnly := len(t.rows) == 0 || cursorOf(t, rows[0]) > cursorOf(t, t.rows[len(t.rows)-1])
	for i := 1; appendOnly && i < len(rows); i++ {
		appendOnly = cursorOf(t, rows[i]) > cursorOf(t, rows[i-1])
	}

	t.rows = append(t.rows, rows...)
	if !appendOnly {
		sort.SliceStable(t.rows, func(i, j int) bool { return cursorOf(t, t.rows[i]) < cursorOf(t, t.rows[j]) })
	}
	return nil
}

// Count returns the number of rows in table.
func (m *MemorySource) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		return len(t.rows)
	}
	return 0
}

// InjectFault makes op ("select", "delete", "stats") on table fail with err
// after the given number of further successful calls.
func (m *MemorySource) InjectFault(table, op string, after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[table+"/"+op] = &fault{after: after, err: err}
}

// ClearFaults removes all injected faults.
func (m *MemorySource) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[string]*fault)
}

// checkFault must be called with m.mu held.
func (m *MemorySource) checkFault(table, op string) error {
	f, ok := m.faults[table+"/"+op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	return archive.NewSourceError(table, op, f.err)
}

func cursorOf(t *memTable, row archive.Row) archive.Cursor {
	c, _ := archive.ParseCursor(row[t.spec.CursorColumn])
	return c
}

func (m *MemorySource) table(spec archive.TableSpec, op string) (*memTable, error) {
	t, ok := m.tables[spec.Name]
	if !ok {
		return nil, archive.NewSourceError(spec.Name, op, fmt.Errorf("no such table"))
	}
	return t, nil
}

// matching returns the indexes of up to pageSize rows matching pred after
// the cursor, in cursor order.
func matching(t *memTable, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) []int {
	start := sort.Search(len(t.rows), func(i int) bool { return cursorOf(t, t.rows[i]) > after })

	var idx []int
	for i := start; i < len(t.rows) && len(idx) < pageSize; i++ {
		c := cursorOf(t, t.rows[i])
		if pred.MaxCursor > 0 && c > pred.MaxCursor {
			break
		}
		ts, ok := archive.ParseTime(t.rows[i][spec.TimestampColumn])
		if ok && pred.Matches(ts, c) {
			idx = append(idx, i)
		}
	}
	return idx
}

// SelectPage implements archive.TableSource.
func (m *MemorySource) SelectPage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) ([]archive.Row, archive.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, after, err
	}
	spec = spec.WithDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkFault(spec.Name, "select"); err != nil {
		return nil, after, err
	}
	t, err := m.table(spec, "select")
	if err != nil {
		return nil, after, err
	}

	idx := matching(t, spec, pred, after, pageSize)
	page := make([]archive.Row, len(idx))
	last := after
	for i, j := range idx {
		row := make(archive.Row, len(t.rows[j]))
		for k, v := range t.rows[j] {
			row[k] = v
		}
		page[i] = row
		last = cursorOf(t, row)
	}

	return page, last, nil
}

// DeletePage implements archive.TableSource.
func (m *MemorySource) DeletePage(ctx context.Context, spec archive.TableSpec, pred archive.Predicate, after archive.Cursor, pageSize int) (int64, archive.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return 0, after, err
	}
	spec = spec.WithDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkFault(spec.Name, "delete"); err != nil {
		return 0, after, err
	}
	t, err := m.table(spec, "delete")
	if err != nil {
		return 0, after, err
	}

	idx := matching(t, spec, pred, after, pageSize)
	if len(idx) == 0 {
		return 0, after, nil
	}
	last := cursorOf(t, t.rows[idx[len(idx)-1]])

	// Compact the window [idx[0], idx[last]] keeping non-matching rows.
	first, end := idx[0], idx[len(idx)-1]+1
	kept := t.rows[:first]
	k := 0
	for i := first; i < end; i++ {
		if k < len(idx) && idx[k] == i {
			k++
			continue
		}
		kept = append(kept, t.rows[i])
	}
	kept = append(kept, t.rows[end:]...)
	for i := len(kept); i < len(t.rows); i++ {
		t.rows[i] = nil
	}
	t.rows = kept

	return int64(len(idx)), last, nil
}

// Stats implements archive.TableSource.
func (m *MemorySource) Stats(ctx context.Context, table string) (archive.TableStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkFault(table, "stats"); err != nil {
		return archive.TableStats{}, err
	}
	t, ok := m.tables[table]
	if !ok {
		return archive.TableStats{}, archive.NewSourceError(table, "stats", fmt.Errorf("no such table"))
	}

	return archive.TableStats{
		RowCount:  int64(len(t.rows)),
		SizeBytes: int64(len(t.rows)) * m.RowSize,
	}, nil
}
