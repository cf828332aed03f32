// Package store provides in-memory implementations of the engine's
// external collaborators.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// LABOR RECORDS - In-memory LaborRecordSource (for testing/dev)
// =============================================================================

type LaborRecords struct {
	mu      sync.RWMutex
	records map[string][]payroll.LaborRecord
	failErr error
}

var _ payroll.LaborRecordSource = (*LaborRecords)(nil)

func NewLaborRecords() *LaborRecords {
	return &LaborRecords{records: make(map[string][]payroll.LaborRecord)}
}

// Add appends records, keeping each worker's list ordered by work date.
func (m *LaborRecords) Add(recs ...payroll.LaborRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		list := m.records[rec.WorkerID]

		i := sort.Search(len(list), func(i int) bool {
			return list[i].WorkDate.After(rec.WorkDate)
		})
		list = append(list, payroll.LaborRecord{})
		copy(list[i+1:], list[i:])
		list[i] = rec
		m.records[rec.WorkerID] = list
	}
}

// FailWith makes ListForWorkerInRange return err (nil clears it).
func (m *LaborRecords) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *LaborRecords) ListForWorkerInRange(_ context.Context, workerID string, start, end time.Time) ([]payroll.LaborRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	from, to := day(start), day(end)
	var out []payroll.LaborRecord
	for _, rec := range m.records[workerID] {
		d := day(rec.WorkDate)
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// =============================================================================
// WORKERS - In-memory WorkerConfigurationSource
// =============================================================================

type Workers struct {
	mu       sync.RWMutex
	profiles map[string]payroll.EmploymentProfile
}

var _ payroll.WorkerConfigurationSource = (*Workers)(nil)

func NewWorkers() *Workers {
	return &Workers{profiles: make(map[string]payroll.EmploymentProfile)}
}

func (m *Workers) Set(workerID, classification string, dailyRate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[workerID] = payroll.EmploymentProfile{Classification: classification, DailyRate: dailyRate}
}

func (m *Workers) GetEmploymentProfile(_ context.Context, workerID string) (payroll.EmploymentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[workerID]
	if !ok {
		return payroll.EmploymentProfile{}, payroll.ErrWorkerNotFound
	}
	return p, nil
}

// =============================================================================
// RATE TABLES - In-memory RateTableSource with effective dating
// =============================================================================

type RateTables struct {
	mu      sync.RWMutex
	tables  map[string][]payroll.RateTable
	failErr error
}

var _ payroll.RateTableSource = (*RateTables)(nil)

func NewRateTables() *RateTables {
	return &RateTables{tables: make(map[string][]payroll.RateTable)}
}

// Set adds a version of the classification's rates effective from the given
// date. A zero date means "always".
func (m *RateTables) Set(classification string, effectiveFrom time.Time, rates map[string]decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := append(m.tables[classification], payroll.RateTable{Rates: rates, EffectiveFrom: effectiveFrom})
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].EffectiveFrom.Before(versions[j].EffectiveFrom)
	})
	m.tables[classification] = versions
}

// FailWith makes GetRatesFor return err (nil clears it).
func (m *RateTables) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// GetRatesFor returns the latest version effective on or before asOf.
func (m *RateTables) GetRatesFor(_ context.Context, classification string, asOf time.Time) (payroll.RateTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return payroll.RateTable{}, m.failErr
	}
	return PickEffective(m.tables[classification], asOf)
}

// PickEffective selects the latest table effective on or before asOf from
// versions sorted by EffectiveFrom.
func PickEffective(versions []payroll.RateTable, asOf time.Time) (payroll.RateTable, error) {
	if len(versions) == 0 {
		return payroll.RateTable{}, payroll.ErrUnknownClassification
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].EffectiveFrom.After(asOf) {
			return versions[i], nil
		}
	}
	return payroll.RateTable{}, nil
}

func day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
