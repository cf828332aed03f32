package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// MEMORY PRIMARY - In-memory PrimaryBackend (for testing/dev)
// =============================================================================

// MemoryPrimary keeps rows in a map. It can simulate a missing relation
// (SetAbsent) or a schema with fewer columns (RestrictColumns).
type MemoryPrimary struct {
	mu      sync.RWMutex
	rows    map[payroll.SnapshotKey]Row
	absent  bool
	columns map[string]bool
	failErr error
	upserts int
}

var _ PrimaryBackend = (*MemoryPrimary)(nil)

func NewMemoryPrimary() *MemoryPrimary {
	return &MemoryPrimary{rows: make(map[payroll.SnapshotKey]Row)}
}

// SetAbsent makes every call fail as if the relation did not exist.
func (m *MemoryPrimary) SetAbsent(absent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absent = absent
}

// RestrictColumns limits the schema to the given columns.
func (m *MemoryPrimary) RestrictColumns(cols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = make(map[string]bool, len(cols))
	for _, c := range cols {
		m.columns[c] = true
	}
}

// FailWith makes every call return err (nil clears it).
func (m *MemoryPrimary) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Len returns the number of stored rows.
func (m *MemoryPrimary) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Upserts returns how many upserts reached the backend, failed ones included.
func (m *MemoryPrimary) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

func (m *MemoryPrimary) check() error {
	if m.absent {
		return fmt.Errorf("%w: relation monthly_snapshots does not exist", ErrBackendUnavailable)
	}
	return m.failErr
}

func (m *MemoryPrimary) Upsert(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if err := m.check(); err != nil {
		return err
	}
	if m.columns != nil {
		names := make([]string, 0, len(row))
		for col := range row {
			names = append(names, col)
		}
		sort.Strings(names)
		for _, col := range names {
			if !m.columns[col] {
				return &UnknownColumnError{Column: col, Err: errors.New("no such column")}
			}
		}
	}
	key, err := rowKey(row)
	if err != nil {
		return err
	}
	m.rows[key] = copyRow(row)
	return nil
}

func (m *MemoryPrimary) Find(_ context.Context, workerID string, year, month int) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	row, ok := m.rows[payroll.SnapshotKey{WorkerID: workerID, Year: year, Month: month}]
	if !ok {
		return nil, nil
	}
	return copyRow(row), nil
}

func (m *MemoryPrimary) Query(_ context.Context, filter payroll.ListFilter) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	type keyed struct {
		key payroll.SnapshotKey
		row Row
	}
	var matched []keyed
	for key, row := range m.rows {
		r := &rowReader{row: row}
		status := payroll.Status(r.text(ColStatus))
		if (filter.WorkerID != "" && key.WorkerID != filter.WorkerID) ||
			(filter.Year != 0 && key.Year != filter.Year) ||
			(filter.Month != 0 && key.Month != filter.Month) ||
			(filter.Status != "" && status != filter.Status) {
			continue
		}
		matched = append(matched, keyed{key: key, row: row})
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].key, matched[j].key
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		return a.WorkerID < b.WorkerID
	})

	limit := filter.EffectiveLimit()
	out := make([]Row, 0, len(matched))
	for _, k := range matched {
		if len(out) == limit {
			break
		}
		out = append(out, copyRow(k.row))
	}
	return out, nil
}

func rowKey(row Row) (payroll.SnapshotKey, error) {
	r := &rowReader{row: row}
	key := payroll.SnapshotKey{
		WorkerID: r.text(ColWorkerID),
		Year:     r.integer(ColYear),
		Month:    r.integer(ColMonth),
	}
	if r.err != nil {
		return payroll.SnapshotKey{}, r.err
	}
	return key, nil
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// =============================================================================
// MEMORY BLOB - In-memory BlobBackend (for testing/dev)
// =============================================================================

// MemoryBlob keeps blobs in a map keyed by path.
type MemoryBlob struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	failErr error
}

var _ BlobBackend = (*MemoryBlob)(nil)

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{blobs: make(map[string][]byte)}
}

// FailWith makes every call return err (nil clears it).
func (m *MemoryBlob) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Len returns the number of stored blobs.
func (m *MemoryBlob) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *MemoryBlob) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.blobs[path] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlob) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	data, ok := m.blobs[path]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBlob) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.blobs, path)
	return nil
}

func (m *MemoryBlob) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	var paths []string
	for p := range m.blobs {
		rest, ok := strings.CutPrefix(p, prefix)
		if ok && !strings.Contains(rest, "/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}
