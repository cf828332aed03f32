/*
monthly.go - Monthly Aggregator

PURPOSE:
  Sums DailyCalculations over one calendar month for one worker.

ALGORITHM:
  1. Validate worker id and period; compute first/last day of the month
  2. Resolve the worker's employment profile once (daily rate is a precondition)
  3. Resolve the RateSet once, as of the period start
  4. Fetch labor records in the inclusive range
  5. For each record: ComputeDaily and accumulate every field
       MissingRateConfigurationError -> abort the whole worker-month
       RecordAnomalyError            -> skip, add a warning
  6. Workdays = distinct dates with labor-days > 0
     First/last workday come from record dates, not fetch order

ZERO RECORDS:
  All totals zero and Workdays == 0. Not an error.

SEE ALSO:
  - daily.go: Per-record calculation
  - issue.go: Wraps the totals into a MonthlySnapshot
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/metrics"
)

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// LaborRecordSource reads labor records; start and end are inclusive dates.
type LaborRecordSource interface {
	ListForWorkerInRange(ctx context.Context, workerID string, start, end time.Time) ([]LaborRecord, error)
}

// EmploymentProfile is a worker's classification and daily rate.
type EmploymentProfile struct {
	Classification string
	DailyRate      decimal.Decimal
}

// WorkerConfigurationSource returns employment profiles.
// Unknown workers are reported with ErrWorkerNotFound.
type WorkerConfigurationSource interface {
	GetEmploymentProfile(ctx context.Context, workerID string) (EmploymentProfile, error)
}

// =============================================================================
// MONTHLY AGGREGATOR
// =============================================================================

// MonthlyAggregator computes MonthlySnapshotTotals.
type MonthlyAggregator struct {
	records    LaborRecordSource
	workers    WorkerConfigurationSource
	resolver   *RateResolver
	calculator *DailyCalculator
	logger     logrus.FieldLogger
}

// NewMonthlyAggregator wires the aggregator to its collaborators.
func NewMonthlyAggregator(
	records LaborRecordSource,
	workers WorkerConfigurationSource,
	resolver *RateResolver,
	calculator *DailyCalculator,
	logger logrus.FieldLogger,
) *MonthlyAggregator {
	return &MonthlyAggregator{
		records:    records,
		workers:    workers,
		resolver:   resolver,
		calculator: calculator,
		logger:     orDefaultLogger(logger),
	}
}

// AggregateMonth sums every labor record of the worker in the given month.
func (a *MonthlyAggregator) AggregateMonth(ctx context.Context, workerID string, year, month int) (*MonthlySnapshotTotals, error) {
	started := time.Now()
	totals, err := a.aggregate(ctx, workerID, year, month)
	metrics.ObserveAggregation(aggregationResult(err), time.Since(started))
	return totals, err
}

func (a *MonthlyAggregator) aggregate(ctx context.Context, workerID string, year, month int) (*MonthlySnapshotTotals, error) {
	if err := ValidateWorkerID(workerID); err != nil {
		return nil, err
	}
	period, err := MonthPeriod(year, month)
	if err != nil {
		return nil, err
	}
	log := a.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"year":      year,
		"month":     month,
	})

	profile, err := ResolveProfile(ctx, a.workers, workerID)
	if err != nil {
		var missing *MissingRateConfigurationError
		if errors.As(err, &missing) {
			missing.Year, missing.Month = year, month
		}
		return nil, err
	}

	rates, err := a.resolveRates(ctx, profile.Classification, period.Start, log)
	if err != nil {
		return nil, err
	}

	records, err := a.records.ListForWorkerInRange(ctx, workerID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("list labor records for %s %s: %w", workerID, PeriodLabel(year, month), err)
	}

	totals := newTotals(workerID, year, month, period, profile, rates)
	workdays := make(map[time.Time]struct{})

	for _, rec := range records {
		if !period.Contains(rec.WorkDate) {
			totals.skip(log, &RecordAnomalyError{
				WorkerID: workerID,
				WorkDate: rec.WorkDate.Format("2006-01-02"),
				Reason:   "work date outside period",
			})
			continue
		}

		calc, err := a.calculator.ComputeDaily(rec, rates, profile.DailyRate)
		if err != nil {
			var missing *MissingRateConfigurationError
			if errors.As(err, &missing) {
				missing.WorkerID, missing.Year, missing.Month = workerID, year, month
				return nil, err
			}
			var anomaly *RecordAnomalyError
			if errors.As(err, &anomaly) {
				totals.skip(log, anomaly)
				continue
			}
			return nil, err
		}

		totals.add(calc)
		if calc.LaborDays.IsPositive() {
			day := dateOnly(rec.WorkDate)
			workdays[day] = struct{}{}
			totals.trackWorkday(day)
		}
	}
	totals.Workdays = len(workdays)

	log.WithFields(logrus.Fields{
		"records":  totals.RecordCount,
		"workdays": totals.Workdays,
		"gross":    totals.GrossPay.String(),
		"skipped":  len(totals.Warnings),
	}).Debug("month aggregated")
	return totals, nil
}

func (a *MonthlyAggregator) resolveRates(ctx context.Context, classification string, asOf time.Time, log logrus.FieldLogger) (RateSet, error) {
	if classification == "" {
		log.Warn("worker has no employment classification, no deductions applied")
		return RateSet{Rates: map[string]decimal.Decimal{}, EffectiveDate: asOf}, nil
	}
	return a.resolver.Resolve(ctx, classification, asOf)
}

// ResolveProfile fetches a worker profile and checks the daily rate.
// An unknown worker or a non-positive rate is a MissingRateConfigurationError.
func ResolveProfile(ctx context.Context, workers WorkerConfigurationSource, workerID string) (EmploymentProfile, error) {
	profile, err := workers.GetEmploymentProfile(ctx, workerID)
	if errors.Is(err, ErrWorkerNotFound) {
		return EmploymentProfile{}, &MissingRateConfigurationError{WorkerID: workerID, Reason: "worker has no employment profile"}
	}
	if err != nil {
		return EmploymentProfile{}, fmt.Errorf("employment profile for %s: %w", workerID, err)
	}
	if !profile.DailyRate.IsPositive() {
		return EmploymentProfile{}, &MissingRateConfigurationError{WorkerID: workerID, Reason: "no daily rate configured"}
	}
	return profile, nil
}

// =============================================================================
// ACCUMULATION
// =============================================================================

func newTotals(workerID string, year, month int, period Period, profile EmploymentProfile, rates RateSet) *MonthlySnapshotTotals {
	deductions := make(map[string]decimal.Decimal, len(rates.Rates))
	for name := range rates.Rates {
		deductions[name] = decimal.Zero
	}
	return &MonthlySnapshotTotals{
		WorkerID:        workerID,
		Year:            year,
		Month:           month,
		Period:          period,
		Classification:  profile.Classification,
		DailyRate:       profile.DailyRate,
		RateSet:         rates,
		TotalLaborDays:  decimal.Zero,
		OvertimeHours:   decimal.Zero,
		BasePay:         decimal.Zero,
		OvertimePay:     decimal.Zero,
		BonusPay:        decimal.Zero,
		GrossPay:        decimal.Zero,
		Deductions:      deductions,
		TotalDeductions: decimal.Zero,
		NetPay:          decimal.Zero,
		Warnings:        []string{},
	}
}

func (t *MonthlySnapshotTotals) add(c DailyCalculation) {
	t.RecordCount++
	t.TotalLaborDays = t.TotalLaborDays.Add(c.LaborDays)
	t.OvertimeHours = t.OvertimeHours.Add(c.OvertimeHours)
	t.BasePay = t.BasePay.Add(c.BasePay)
	t.OvertimePay = t.OvertimePay.Add(c.OvertimePay)
	t.BonusPay = t.BonusPay.Add(c.BonusPay)
	t.GrossPay = t.GrossPay.Add(c.GrossPay)
	for name, amount := range c.Deductions {
		t.Deductions[name] = t.Deductions[name].Add(amount)
	}
	t.TotalDeductions = t.TotalDeductions.Add(c.TotalDeductions)
	t.NetPay = t.NetPay.Add(c.NetPay)
}

func (t *MonthlySnapshotTotals) trackWorkday(day time.Time) {
	if t.FirstWorkday == nil || day.Before(*t.FirstWorkday) {
		d := day
		t.FirstWorkday = &d
	}
	if t.LastWorkday == nil || day.After(*t.LastWorkday) {
		d := day
		t.LastWorkday = &d
	}
}

func (t *MonthlySnapshotTotals) skip(log logrus.FieldLogger, anomaly *RecordAnomalyError) {
	log.WithField("work_date", anomaly.WorkDate).Warn(anomaly.Reason)
	t.Warnings = append(t.Warnings, anomaly.Error())
}

func aggregationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrMissingRateConfiguration):
		return "missing_rate"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
