/*
types.go - Core data model for wage computation

PURPOSE:
  Defines the values that flow through the engine: labor records coming from
  the attendance side, rate sets, per-day calculations and the monthly
  snapshot that gets persisted and moved through its lifecycle.

KEY TYPES:
  LaborRecord:           One worker's labor on one date (hours OR labor-days)
  RateSet:               Named deduction percentages for a classification
  DailyCalculation:      Itemized pay for one record (transient, never stored)
  MonthlySnapshotTotals: Aggregated DailyCalculations for a calendar month
  MonthlySnapshot:       Versioned, persisted record keyed by (worker, year, month)

MONEY:
  Every amount, percentage and labor quantity is a decimal.Decimal.
  Floats are never used for money.

SEE ALSO:
  - daily.go: Produces DailyCalculation
  - monthly.go: Produces MonthlySnapshotTotals
  - issue.go: Wraps totals into a MonthlySnapshot
  - lifecycle.go: Status transitions
*/
package payroll

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the persisted snapshot format version.
const SchemaVersion = 1

// =============================================================================
// LABOR RECORD - External input, consumed read-only
// =============================================================================

// LaborRecord is one unit of recorded work. Exactly one of Hours or LaborDays
// is normally set; when both are present Hours wins.
type LaborRecord struct {
	WorkerID  string
	WorkDate  time.Time
	SiteID    string
	Hours     *decimal.Decimal
	LaborDays *decimal.Decimal

	// Free-form fields attached by the attendance side ("bonus", "note", ...).
	Supplements map[string]string
}

// SupplementBonus is the supplement key carrying a bonus amount.
const SupplementBonus = "bonus"

// HoursRecord builds a record expressed in hours.
func HoursRecord(workerID string, date time.Time, hours decimal.Decimal) LaborRecord {
	return LaborRecord{WorkerID: workerID, WorkDate: date, Hours: &hours}
}

// DaysRecord builds a record expressed as a labor-day fraction.
func DaysRecord(workerID string, date time.Time, days decimal.Decimal) LaborRecord {
	return LaborRecord{WorkerID: workerID, WorkDate: date, LaborDays: &days}
}

// =============================================================================
// RATE SET
// =============================================================================

// RateSet holds deduction percentages (3.3 means 3.3%) for one classification.
// An empty Rates map is valid and means every deduction is zero.
type RateSet struct {
	Classification string
	Rates          map[string]decimal.Decimal
	EffectiveDate  time.Time
}

// IsEmpty reports whether the set carries no deductions.
func (r RateSet) IsEmpty() bool {
	return len(r.Rates) == 0
}

// Names returns the deduction names in a stable order.
func (r RateSet) Names() []string {
	names := make([]string, 0, len(r.Rates))
	for name := range r.Rates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// DAILY CALCULATION
// =============================================================================

// DailyCalculation is the itemized pay for one labor record.
type DailyCalculation struct {
	WorkDate        time.Time
	LaborDays       decimal.Decimal
	OvertimeHours   decimal.Decimal
	BasePay         decimal.Decimal
	OvertimePay     decimal.Decimal
	BonusPay        decimal.Decimal
	GrossPay        decimal.Decimal
	Deductions      map[string]decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal
}

// IsZero reports whether the calculation represents a no-op day.
func (d DailyCalculation) IsZero() bool {
	return d.GrossPay.IsZero() && d.LaborDays.IsZero()
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is an inclusive calendar-day range.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the first and last calendar day of a month (UTC).
func MonthPeriod(year, month int) (Period, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return Period{}, err
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{Start: start, End: end}, nil
}

// Contains reports whether the calendar date of t falls within the period.
func (p Period) Contains(t time.Time) bool {
	d := dateOnly(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

// PeriodLabel is the human-readable label stored on snapshots, e.g. "2024-03".
func PeriodLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// monthStart is the first day of t's calendar month, the as-of date for rates.
func monthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// MONTHLY TOTALS
// =============================================================================

// MonthlySnapshotTotals is the aggregator output: the sum of every
// DailyCalculation in the period plus the inputs that produced them.
type MonthlySnapshotTotals struct {
	WorkerID string
	Year     int
	Month    int
	Period   Period

	Classification string
	DailyRate      decimal.Decimal
	RateSet        RateSet

	Workdays        int
	RecordCount     int
	TotalLaborDays  decimal.Decimal
	OvertimeHours   decimal.Decimal
	BasePay         decimal.Decimal
	OvertimePay     decimal.Decimal
	BonusPay        decimal.Decimal
	GrossPay        decimal.Decimal
	Deductions      map[string]decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal

	FirstWorkday *time.Time
	LastWorkday  *time.Time

	// Records skipped as anomalies, one message each.
	Warnings []string
}

// =============================================================================
// MONTHLY SNAPSHOT
// =============================================================================

// Status is the lifecycle position of a snapshot.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIssued, StatusApproved, StatusPaid:
		return true
	}
	return false
}

// ParseStatus parses a status string, case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

// MonthlySnapshot is the persisted record for one worker-month.
// (WorkerID, Year, Month) is its identity; ID changes on every issuance.
type MonthlySnapshot struct {
	ID              string
	WorkerID        string
	Year            int
	Month           int
	PeriodLabel     string
	SchemaVersion   int
	TemplateVersion string

	IssuedAt time.Time
	IssuedBy string

	PeriodStart time.Time
	PeriodEnd   time.Time

	Workdays        int
	TotalLaborDays  decimal.Decimal
	OvertimeHours   decimal.Decimal
	BasePay         decimal.Decimal
	OvertimePay     decimal.Decimal
	BonusPay        decimal.Decimal
	GrossPay        decimal.Decimal
	Deductions      map[string]decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal

	Classification string
	DailyRate      decimal.Decimal

	FirstWorkday *time.Time
	LastWorkday  *time.Time

	Status     Status
	ApprovedBy string
	ApprovedAt *time.Time
	PaidBy     string
	PaidAt     *time.Time
}

// Key returns the compound identity of the snapshot.
func (s MonthlySnapshot) Key() SnapshotKey {
	return SnapshotKey{WorkerID: s.WorkerID, Year: s.Year, Month: s.Month}
}

// SnapshotKey is the (worker, year, month) identity.
type SnapshotKey struct {
	WorkerID string
	Year     int
	Month    int
}

func (k SnapshotKey) String() string {
	return fmt.Sprintf("%s/%s", k.WorkerID, PeriodLabel(k.Year, k.Month))
}

// Validate checks the fields every storage tier relies on.
func (s MonthlySnapshot) Validate() error {
	if err := ValidateWorkerID(s.WorkerID); err != nil {
		return err
	}
	if err := ValidatePeriod(s.Year, s.Month); err != nil {
		return err
	}
	if !s.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s.Status)}
	}
	return nil
}

// Equal compares two snapshots field by field. Decimals compare by value and
// timestamps by instant, so a snapshot read back from storage equals the one
// that was written.
func (s MonthlySnapshot) Equal(o MonthlySnapshot) bool {
	return s.ID == o.ID &&
		s.WorkerID == o.WorkerID &&
		s.Year == o.Year &&
		s.Month == o.Month &&
		s.PeriodLabel == o.PeriodLabel &&
		s.SchemaVersion == o.SchemaVersion &&
		s.TemplateVersion == o.TemplateVersion &&
		s.IssuedAt.Equal(o.IssuedAt) &&
		s.IssuedBy == o.IssuedBy &&
		s.PeriodStart.Equal(o.PeriodStart) &&
		s.PeriodEnd.Equal(o.PeriodEnd) &&
		s.Workdays == o.Workdays &&
		s.TotalLaborDays.Equal(o.TotalLaborDays) &&
		s.OvertimeHours.Equal(o.OvertimeHours) &&
		s.BasePay.Equal(o.BasePay) &&
		s.OvertimePay.Equal(o.OvertimePay) &&
		s.BonusPay.Equal(o.BonusPay) &&
		s.GrossPay.Equal(o.GrossPay) &&
		equalAmounts(s.Deductions, o.Deductions) &&
		s.TotalDeductions.Equal(o.TotalDeductions) &&
		s.NetPay.Equal(o.NetPay) &&
		s.Classification == o.Classification &&
		s.DailyRate.Equal(o.DailyRate) &&
		equalTimePtr(s.FirstWorkday, o.FirstWorkday) &&
		equalTimePtr(s.LastWorkday, o.LastWorkday) &&
		s.Status == o.Status &&
		s.ApprovedBy == o.ApprovedBy &&
		equalTimePtr(s.ApprovedAt, o.ApprovedAt) &&
		s.PaidBy == o.PaidBy &&
		equalTimePtr(s.PaidAt, o.PaidAt)
}

func equalAmounts(a, b map[string]decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// =============================================================================
// STORAGE RESULTS
// =============================================================================

// Tier names which storage tier served a call.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierNone     Tier = ""
)

// SaveResult reports which tier accepted a write.
type SaveResult struct {
	Success bool
	Tier    Tier
}

// LoadResult carries the snapshot (nil when absent) and the tier it came from.
// Degraded is set when a tier that could hold the record failed to answer,
// so a nil Snapshot may hide a record that exists.
type LoadResult struct {
	Snapshot *MonthlySnapshot
	Tier     Tier
	Degraded bool
}

// ListFilter narrows a snapshot listing. Zero values mean "any".
type ListFilter struct {
	WorkerID string
	Year     int
	Month    int
	Status   Status
	Limit    int
}

// DefaultListLimit applies when ListFilter.Limit is zero or negative.
const DefaultListLimit = 100

// Matches reports whether s satisfies the filter (ignoring Limit).
func (f ListFilter) Matches(s MonthlySnapshot) bool {
	if f.WorkerID != "" && s.WorkerID != f.WorkerID {
		return false
	}
	if f.Year != 0 && s.Year != f.Year {
		return false
	}
	if f.Month != 0 && s.Month != f.Month {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// EffectiveLimit returns the limit to apply.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// SortSnapshots orders snapshots newest period first, then by worker id.
func SortSnapshots(snaps []MonthlySnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i], snaps[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		return a.WorkerID < b.WorkerID
	})
}
