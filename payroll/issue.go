package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewSnapshot wraps aggregated totals into a freshly issued snapshot.
func NewSnapshot(t *MonthlySnapshotTotals, issuedBy, templateVersion string, issuedAt time.Time) MonthlySnapshot {
	deductions := make(map[string]decimal.Decimal, len(t.Deductions))
	for name, amount := range t.Deductions {
		deductions[name] = amount
	}
	return MonthlySnapshot{
		ID:              uuid.NewString(),
		WorkerID:        t.WorkerID,
		Year:            t.Year,
		Month:           t.Month,
		PeriodLabel:     PeriodLabel(t.Year, t.Month),
		SchemaVersion:   SchemaVersion,
		TemplateVersion: templateVersion,
		IssuedAt:        issuedAt,
		IssuedBy:        issuedBy,
		PeriodStart:     t.Period.Start,
		PeriodEnd:       t.Period.End,
		Workdays:        t.Workdays,
		TotalLaborDays:  t.TotalLaborDays,
		OvertimeHours:   t.OvertimeHours,
		BasePay:         t.BasePay,
		OvertimePay:     t.OvertimePay,
		BonusPay:        t.BonusPay,
		GrossPay:        t.GrossPay,
		Deductions:      deductions,
		TotalDeductions: t.TotalDeductions,
		NetPay:          t.NetPay,
		Classification:  t.Classification,
		DailyRate:       t.DailyRate,
		FirstWorkday:    t.FirstWorkday,
		LastWorkday:     t.LastWorkday,
		Status:          StatusIssued,
	}
}
