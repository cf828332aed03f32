/*
engine.go - Exposed facade of the wage engine

PURPOSE:
  Single entry point for everything outside the core (HTTP adapter, jobs,
  tests). Wires Rate Resolver, Daily Wage Calculator, Monthly Aggregator,
  the snapshot repository and the Lifecycle Manager together.

OPERATIONS:
  ComputeDaily     ad hoc breakdown of one labor record
  DailyBreakdown   ad hoc breakdown of every record on one date
  AggregateMonth   totals for a worker-month, nothing persisted
  Issue            aggregate + build snapshot + save (status issued)
  SaveSnapshot / LoadSnapshot / ListSnapshots
  ApproveSnapshot / PaySnapshot

DEPENDENCY INJECTION:
  Every collaborator is built once by the caller (cmd/server) and passed in.
  Nothing in this package constructs backend clients.

SEE ALSO:
  - issue.go: Snapshot construction
  - snapshot/store.go: Two-tier SnapshotRepository
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineConfig holds the tunables of the engine.
type EngineConfig struct {
	Overtime        OvertimePolicy
	CurrencyPlaces  int32
	TemplateVersion string
	StrictLifecycle bool
	Logger          logrus.FieldLogger
}

// DefaultEngineConfig returns the standard policy: 8h threshold, 1.5x, whole
// currency units, strict lifecycle.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Overtime:        DefaultOvertimePolicy(),
		CurrencyPlaces:  0,
		TemplateVersion: "v1",
		StrictLifecycle: true,
	}
}

// Engine is the exposed interface of the core.
type Engine struct {
	records    LaborRecordSource
	workers    WorkerConfigurationSource
	resolver   *RateResolver
	calculator *DailyCalculator
	aggregator *MonthlyAggregator
	lifecycle  *LifecycleManager
	snapshots  SnapshotRepository

	templateVersion string
	strict          bool
	now             func() time.Time
	logger          logrus.FieldLogger
}

// NewEngine wires an engine from its collaborators.
func NewEngine(
	records LaborRecordSource,
	workers WorkerConfigurationSource,
	rates RateTableSource,
	snapshots SnapshotRepository,
	cfg EngineConfig,
) (*Engine, error) {
	if records == nil || workers == nil || rates == nil || snapshots == nil {
		return nil, errors.New("engine: all collaborators are required")
	}
	logger := orDefaultLogger(cfg.Logger)

	calculator, err := NewDailyCalculator(cfg.Overtime, cfg.CurrencyPlaces)
	if err != nil {
		return nil, err
	}
	resolver := NewRateResolver(rates, logger)

	return &Engine{
		records:         records,
		workers:         workers,
		resolver:        resolver,
		calculator:      calculator,
		aggregator:      NewMonthlyAggregator(records, workers, resolver, calculator, logger),
		lifecycle:       NewLifecycleManager(snapshots, cfg.StrictLifecycle, logger),
		snapshots:       snapshots,
		templateVersion: cfg.TemplateVersion,
		strict:          cfg.StrictLifecycle,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}, nil
}

// WithClock replaces the time source for issuance and lifecycle timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.lifecycle.WithClock(now)
	return e
}

// =============================================================================
// AD HOC DAILY QUERIES
// =============================================================================

// ComputeDaily itemizes one record for workerID using the worker's current
// profile and the rates effective at the start of the record's month, the
// same rate set the monthly aggregation applies.
func (e *Engine) ComputeDaily(ctx context.Context, rec LaborRecord, workerID string) (DailyCalculation, error) {
	if err := ValidateWorkerID(workerID); err != nil {
		return DailyCalculation{}, err
	}
	if rec.WorkerID == "" {
		rec.WorkerID = workerID
	}
	profile, err := ResolveProfile(ctx, e.workers, workerID)
	if err != nil {
		return DailyCalculation{}, err
	}
	rates, err := e.aggregator.resolveRates(ctx, profile.Classification, monthStart(rec.WorkDate), e.logger.WithField("worker_id", workerID))
	if err != nil {
		return DailyCalculation{}, err
	}
	return e.calculator.ComputeDaily(rec, rates, profile.DailyRate)
}

// DailyBreakdown computes every record the worker has on date. Anomalous
// records are left out and logged.
func (e *Engine) DailyBreakdown(ctx context.Context, workerID string, date time.Time) ([]DailyCalculation, error) {
	if err := ValidateWorkerID(workerID); err != nil {
		return nil, err
	}
	day := dateOnly(date)
	records, err := e.records.ListForWorkerInRange(ctx, workerID, day, day)
	if err != nil {
		return nil, err
	}
	out := make([]DailyCalculation, 0, len(records))
	for _, rec := range records {
		calc, err := e.ComputeDaily(ctx, rec, workerID)
		var anomaly *RecordAnomalyError
		if errors.As(err, &anomaly) {
			e.logger.WithField("worker_id", workerID).Warn(anomaly.Error())
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, calc)
	}
	return out, nil
}

// =============================================================================
// MONTHLY
// =============================================================================

// AggregateMonth computes totals without persisting anything.
func (e *Engine) AggregateMonth(ctx context.Context, workerID string, year, month int) (*MonthlySnapshotTotals, error) {
	return e.aggregator.AggregateMonth(ctx, workerID, year, month)
}

// Issue aggregates the month, builds a snapshot in status issued and saves it.
// Re-issuing a period replaces its current snapshot while that snapshot is
// still issued; with a strict lifecycle an approved or paid snapshot is an
// InvalidTransitionError. Nothing is written when aggregation fails.
func (e *Engine) Issue(ctx context.Context, workerID string, year, month int, issuerID string) (*MonthlySnapshot, SaveResult, error) {
	issuerID = strings.TrimSpace(issuerID)
	if issuerID == "" {
		return nil, SaveResult{}, &ValidationError{Field: "issuer_id", Message: "must not be empty"}
	}
	totals, err := e.aggregator.AggregateMonth(ctx, workerID, year, month)
	if err != nil {
		return nil, SaveResult{}, err
	}
	if e.strict {
		if err := e.checkReissue(ctx, workerID, year, month); err != nil {
			return nil, SaveResult{}, err
		}
	}

	snap := NewSnapshot(totals, issuerID, e.templateVersion, e.now())
	res, err := e.snapshots.Save(ctx, snap)
	if err != nil {
		return nil, res, err
	}

	e.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"year":      year,
		"month":     month,
		"tier":      res.Tier,
		"net_pay":   snap.NetPay.String(),
	}).Info("snapshot issued")
	return &snap, res, nil
}

// checkReissue refuses to replace a snapshot that has left status issued, or
// one storage could not rule out.
func (e *Engine) checkReissue(ctx context.Context, workerID string, year, month int) error {
	loaded, err := e.snapshots.Load(ctx, workerID, year, month)
	if err != nil {
		return err
	}
	key := SnapshotKey{WorkerID: workerID, Year: year, Month: month}
	if loaded.Snapshot == nil {
		if loaded.Degraded {
			return fmt.Errorf("issue %s: %w", key, ErrSnapshotStateUnknown)
		}
		return nil
	}
	if loaded.Snapshot.Status != StatusIssued {
		return &InvalidTransitionError{Key: key, From: loaded.Snapshot.Status, To: StatusIssued}
	}
	return nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// SaveSnapshot persists a snapshot as is.
func (e *Engine) SaveSnapshot(ctx context.Context, snap MonthlySnapshot) (SaveResult, error) {
	return e.snapshots.Save(ctx, snap)
}

// LoadSnapshot returns the period's snapshot, or a nil Snapshot if none exists.
func (e *Engine) LoadSnapshot(ctx context.Context, workerID string, year, month int) (LoadResult, error) {
	return e.snapshots.Load(ctx, workerID, year, month)
}

// ListSnapshots returns snapshots matching filter, newest period first.
func (e *Engine) ListSnapshots(ctx context.Context, filter ListFilter) ([]MonthlySnapshot, error) {
	return e.snapshots.List(ctx, filter)
}

// ApproveSnapshot moves the period's snapshot to approved.
func (e *Engine) ApproveSnapshot(ctx context.Context, workerID string, year, month int, approverID string) (*MonthlySnapshot, error) {
	return e.lifecycle.Approve(ctx, workerID, year, month, approverID)
}

// PaySnapshot moves the period's snapshot to paid.
func (e *Engine) PaySnapshot(ctx context.Context, workerID string, year, month int, payerID string) (*MonthlySnapshot, error) {
	return e.lifecycle.Pay(ctx, workerID, year, month, payerID)
}
