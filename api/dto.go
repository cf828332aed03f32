/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the payroll
  types free of wire concerns. Amounts are decimals and serialize as JSON
  strings ("145050"), so no precision is lost in transit.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Daily:     DailyDTO, DailyBreakdownDTO
  Monthly:   TotalsDTO, SnapshotDTO, SnapshotListDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest
  Errors:    ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// DAILY
// =============================================================================

type DailyDTO struct {
	WorkDate        string                     `json:"work_date"`
	LaborDays       decimal.Decimal            `json:"labor_days"`
	OvertimeHours   decimal.Decimal            `json:"overtime_hours"`
	BasePay         decimal.Decimal            `json:"base_pay"`
	OvertimePay     decimal.Decimal            `json:"overtime_pay"`
	BonusPay        decimal.Decimal            `json:"bonus_pay"`
	GrossPay        decimal.Decimal            `json:"gross_pay"`
	Deductions      map[string]decimal.Decimal `json:"deductions"`
	TotalDeductions decimal.Decimal            `json:"total_deductions"`
	NetPay          decimal.Decimal            `json:"net_pay"`
}

type DailyBreakdownDTO struct {
	WorkerID string     `json:"worker_id"`
	Date     string     `json:"date"`
	Records  []DailyDTO `json:"records"`
}

// =============================================================================
// MONTHLY
// =============================================================================

type TotalsDTO struct {
	WorkerID        string                     `json:"worker_id"`
	Year            int                        `json:"year"`
	Month           int                        `json:"month"`
	PeriodStart     string                     `json:"period_start"`
	PeriodEnd       string                     `json:"period_end"`
	Classification  string                     `json:"classification"`
	DailyRate       decimal.Decimal            `json:"daily_rate"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	Workdays        int                        `json:"workdays"`
	RecordCount     int                        `json:"record_count"`
	TotalLaborDays  decimal.Decimal            `json:"total_labor_days"`
	OvertimeHours   decimal.Decimal            `json:"overtime_hours"`
	BasePay         decimal.Decimal            `json:"base_pay"`
	OvertimePay     decimal.Decimal            `json:"overtime_pay"`
	BonusPay        decimal.Decimal            `json:"bonus_pay"`
	GrossPay        decimal.Decimal            `json:"gross_pay"`
	Deductions      map[string]decimal.Decimal `json:"deductions"`
	TotalDeductions decimal.Decimal            `json:"total_deductions"`
	NetPay          decimal.Decimal            `json:"net_pay"`
	FirstWorkday    *string                    `json:"first_workday,omitempty"`
	LastWorkday     *string                    `json:"last_workday,omitempty"`
	Warnings        []string                   `json:"warnings,omitempty"`
}

type SnapshotDTO struct {
	ID              string                     `json:"id"`
	WorkerID        string                     `json:"worker_id"`
	Year            int                        `json:"year"`
	Month           int                        `json:"month"`
	PeriodLabel     string                     `json:"period_label"`
	SchemaVersion   int                        `json:"schema_version"`
	TemplateVersion string                     `json:"template_version,omitempty"`
	IssuedAt        time.Time                  `json:"issued_at"`
	IssuedBy        string                     `json:"issued_by"`
	PeriodStart     string                     `json:"period_start"`
	PeriodEnd       string                     `json:"period_end"`
	Workdays        int                        `json:"workdays"`
	TotalLaborDays  decimal.Decimal            `json:"total_labor_days"`
	OvertimeHours   decimal.Decimal            `json:"overtime_hours"`
	BasePay         decimal.Decimal            `json:"base_pay"`
	OvertimePay     decimal.Decimal            `json:"overtime_pay"`
	BonusPay        decimal.Decimal            `json:"bonus_pay"`
	GrossPay        decimal.Decimal            `json:"gross_pay"`
	Deductions      map[string]decimal.Decimal `json:"deductions"`
	TotalDeductions decimal.Decimal            `json:"total_deductions"`
	NetPay          decimal.Decimal            `json:"net_pay"`
	Classification  string                     `json:"classification,omitempty"`
	DailyRate       decimal.Decimal            `json:"daily_rate"`
	FirstWorkday    *string                    `json:"first_workday,omitempty"`
	LastWorkday     *string                    `json:"last_workday,omitempty"`
	Status          string                     `json:"status"`
	ApprovedBy      string                     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time                 `json:"approved_at,omitempty"`
	PaidBy          string                     `json:"paid_by,omitempty"`
	PaidAt          *time.Time                 `json:"paid_at,omitempty"`

	// Storage tier that served or accepted the snapshot, when known.
	Tier string `json:"tier,omitempty"`
}

type SnapshotListDTO struct {
	Snapshots []SnapshotDTO `json:"snapshots"`
	Count     int           `json:"count"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func nonNilAmounts(m map[string]decimal.Decimal) map[string]decimal.Decimal {
	if m == nil {
		return map[string]decimal.Decimal{}
	}
	return m
}

func toDailyDTO(d payroll.DailyCalculation) DailyDTO {
	return DailyDTO{
		WorkDate:        formatDate(d.WorkDate),
		LaborDays:       d.LaborDays,
		OvertimeHours:   d.OvertimeHours,
		BasePay:         d.BasePay,
		OvertimePay:     d.OvertimePay,
		BonusPay:        d.BonusPay,
		GrossPay:        d.GrossPay,
		Deductions:      nonNilAmounts(d.Deductions),
		TotalDeductions: d.TotalDeductions,
		NetPay:          d.NetPay,
	}
}

func toTotalsDTO(t *payroll.MonthlySnapshotTotals) TotalsDTO {
	return TotalsDTO{
		WorkerID:        t.WorkerID,
		Year:            t.Year,
		Month:           t.Month,
		PeriodStart:     formatDate(t.Period.Start),
		PeriodEnd:       formatDate(t.Period.End),
		Classification:  t.Classification,
		DailyRate:       t.DailyRate,
		Rates:           nonNilAmounts(t.RateSet.Rates),
		Workdays:        t.Workdays,
		RecordCount:     t.RecordCount,
		TotalLaborDays:  t.TotalLaborDays,
		OvertimeHours:   t.OvertimeHours,
		BasePay:         t.BasePay,
		OvertimePay:     t.OvertimePay,
		BonusPay:        t.BonusPay,
		GrossPay:        t.GrossPay,
		Deductions:      nonNilAmounts(t.Deductions),
		TotalDeductions: t.TotalDeductions,
		NetPay:          t.NetPay,
		FirstWorkday:    formatDatePtr(t.FirstWorkday),
		LastWorkday:     formatDatePtr(t.LastWorkday),
		Warnings:        t.Warnings,
	}
}

func toSnapshotDTO(s payroll.MonthlySnapshot, tier payroll.Tier) SnapshotDTO {
	return SnapshotDTO{
		ID:              s.ID,
		WorkerID:        s.WorkerID,
		Year:            s.Year,
		Month:           s.Month,
		PeriodLabel:     s.PeriodLabel,
		SchemaVersion:   s.SchemaVersion,
		TemplateVersion: s.TemplateVersion,
		IssuedAt:        s.IssuedAt,
		IssuedBy:        s.IssuedBy,
		PeriodStart:     formatDate(s.PeriodStart),
		PeriodEnd:       formatDate(s.PeriodEnd),
		Workdays:        s.Workdays,
		TotalLaborDays:  s.TotalLaborDays,
		OvertimeHours:   s.OvertimeHours,
		BasePay:         s.BasePay,
		OvertimePay:     s.OvertimePay,
		BonusPay:        s.BonusPay,
		GrossPay:        s.GrossPay,
		Deductions:      nonNilAmounts(s.Deductions),
		TotalDeductions: s.TotalDeductions,
		NetPay:          s.NetPay,
		Classification:  s.Classification,
		DailyRate:       s.DailyRate,
		FirstWorkday:    formatDatePtr(s.FirstWorkday),
		LastWorkday:     formatDatePtr(s.LastWorkday),
		Status:          string(s.Status),
		ApprovedBy:      s.ApprovedBy,
		ApprovedAt:      s.ApprovedAt,
		PaidBy:          s.PaidBy,
		PaidAt:          s.PaidAt,
		Tier:            string(tier),
	}
}
