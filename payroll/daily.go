/*
daily.go - Daily Wage Calculator

PURPOSE:
  Turns one LaborRecord, a RateSet and a daily rate into an itemized
  DailyCalculation.

ALGORITHM:
  1. Daily rate must be > 0, otherwise MissingRateConfigurationError
  2. Normalize the labor quantity:
       hours  -> base labor-days = min(hours, threshold) / standard day hours
                 overtime hours  = max(hours - threshold, 0)
       labor-days fraction -> used as is, no overtime
  3. Labor-days <= 0 -> all-zero calculation (no-op day)
  4. base     = dailyRate * laborDays
     overtime = overtimeHours * dailyRate * multiplier / standard day hours
     gross    = base + overtime + bonus
  5. Every deduction is gross * pct / 100, rounded down to the currency unit.
     Deductions never compound.
  6. net = gross - sum(deductions)

ROUNDING:
  Only deductions are rounded. Base, overtime and gross keep full precision.

SEE ALSO:
  - monthly.go: Sums these across a month
*/
package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// OvertimePolicy configures how hours beyond a standard day are paid.
type OvertimePolicy struct {
	ThresholdHours   decimal.Decimal
	Multiplier       decimal.Decimal
	StandardDayHours decimal.Decimal
}

// DefaultOvertimePolicy is 8 hours, 1.5x, 8-hour day.
func DefaultOvertimePolicy() OvertimePolicy {
	return OvertimePolicy{
		ThresholdHours:   decimal.NewFromInt(8),
		Multiplier:       decimal.RequireFromString("1.5"),
		StandardDayHours: decimal.NewFromInt(8),
	}
}

// Validate rejects policies that would divide by zero or pay negative overtime.
func (p OvertimePolicy) Validate() error {
	if !p.StandardDayHours.IsPositive() {
		return &ValidationError{Field: "standard_day_hours", Message: "must be positive"}
	}
	if !p.ThresholdHours.IsPositive() {
		return &ValidationError{Field: "overtime_threshold_hours", Message: "must be positive"}
	}
	if p.Multiplier.IsNegative() {
		return &ValidationError{Field: "overtime_multiplier", Message: "must not be negative"}
	}
	return nil
}

// DailyCalculator computes DailyCalculations. It holds no state beyond its
// configuration and is safe for concurrent use.
type DailyCalculator struct {
	overtime       OvertimePolicy
	currencyPlaces int32
}

// NewDailyCalculator creates a calculator. currencyPlaces is the number of
// decimal places of the smallest currency unit (0 for KRW/JPY, 2 for USD).
func NewDailyCalculator(policy OvertimePolicy, currencyPlaces int32) (*DailyCalculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if currencyPlaces < 0 {
		return nil, &ValidationError{Field: "currency_places", Message: "must not be negative"}
	}
	return &DailyCalculator{overtime: policy, currencyPlaces: currencyPlaces}, nil
}

// Policy returns the overtime policy in use.
func (c *DailyCalculator) Policy() OvertimePolicy {
	return c.overtime
}

// ComputeDaily itemizes one record.
func (c *DailyCalculator) ComputeDaily(rec LaborRecord, rates RateSet, dailyRate decimal.Decimal) (DailyCalculation, error) {
	if !dailyRate.IsPositive() {
		return DailyCalculation{}, &MissingRateConfigurationError{
			WorkerID: rec.WorkerID,
			Reason:   fmt.Sprintf("daily rate %s is not positive", dailyRate),
		}
	}

	laborDays, overtimeHours := c.normalize(rec)
	if !laborDays.IsPositive() {
		return zeroCalculation(rec, rates), nil
	}

	bonus, err := parseBonus(rec)
	if err != nil {
		return DailyCalculation{}, err
	}

	base := dailyRate.Mul(laborDays)
	overtime := decimal.Zero
	if overtimeHours.IsPositive() {
		overtime = overtimeHours.Mul(dailyRate).Mul(c.overtime.Multiplier).Div(c.overtime.StandardDayHours)
	}
	gross := base.Add(overtime).Add(bonus)

	deductions := make(map[string]decimal.Decimal, len(rates.Rates))
	total := decimal.Zero
	for name, pct := range rates.Rates {
		amount := gross.Mul(pct).Div(hundred).RoundFloor(c.currencyPlaces)
		deductions[name] = amount
		total = total.Add(amount)
	}

	return DailyCalculation{
		WorkDate:        rec.WorkDate,
		LaborDays:       laborDays,
		OvertimeHours:   overtimeHours,
		BasePay:         base,
		OvertimePay:     overtime,
		BonusPay:        bonus,
		GrossPay:        gross,
		Deductions:      deductions,
		TotalDeductions: total,
		NetPay:          gross.Sub(total),
	}, nil
}

// normalize returns base labor-days and overtime hours for a record.
func (c *DailyCalculator) normalize(rec LaborRecord) (decimal.Decimal, decimal.Decimal) {
	switch {
	case rec.Hours != nil:
		hours := *rec.Hours
		if !hours.IsPositive() {
			return decimal.Zero, decimal.Zero
		}
		standard := decimal.Min(hours, c.overtime.ThresholdHours)
		overtime := decimal.Max(hours.Sub(c.overtime.ThresholdHours), decimal.Zero)
		return standard.Div(c.overtime.StandardDayHours), overtime
	case rec.LaborDays != nil:
		return *rec.LaborDays, decimal.Zero
	default:
		return decimal.Zero, decimal.Zero
	}
}

func zeroCalculation(rec LaborRecord, rates RateSet) DailyCalculation {
	deductions := make(map[string]decimal.Decimal, len(rates.Rates))
	for name := range rates.Rates {
		deductions[name] = decimal.Zero
	}
	return DailyCalculation{
		WorkDate:        rec.WorkDate,
		LaborDays:       decimal.Zero,
		OvertimeHours:   decimal.Zero,
		BasePay:         decimal.Zero,
		OvertimePay:     decimal.Zero,
		BonusPay:        decimal.Zero,
		GrossPay:        decimal.Zero,
		Deductions:      deductions,
		TotalDeductions: decimal.Zero,
		NetPay:          decimal.Zero,
	}
}

func parseBonus(rec LaborRecord) (decimal.Decimal, error) {
	raw, ok := rec.Supplements[SupplementBonus]
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	bonus, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &RecordAnomalyError{
			WorkerID: rec.WorkerID,
			WorkDate: rec.WorkDate.Format("2006-01-02"),
			Reason:   fmt.Sprintf("unparsable bonus %q", raw),
		}
	}
	if bonus.IsNegative() {
		return decimal.Zero, &RecordAnomalyError{
			WorkerID: rec.WorkerID,
			WorkDate: rec.WorkDate.Format("2006-01-02"),
			Reason:   fmt.Sprintf("negative bonus %s", raw),
		}
	}
	return bonus, nil
}
