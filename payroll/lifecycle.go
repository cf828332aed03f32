package payroll

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/metrics"
)

// =============================================================================
// SNAPSHOT REPOSITORY - Implemented by snapshot.Store
// =============================================================================

// SnapshotRepository persists snapshots by (worker, year, month).
// Load never fails for a missing record; it returns a nil Snapshot.
type SnapshotRepository interface {
	Save(ctx context.Context, snap MonthlySnapshot) (SaveResult, error)
	Load(ctx context.Context, workerID string, year, month int) (LoadResult, error)
	List(ctx context.Context, filter ListFilter) ([]MonthlySnapshot, error)
}

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

// LifecycleManager applies issued -> approved -> paid transitions.
//
// In strict mode approve requires issued and pay requires approved. In
// permissive mode any transition is applied. Either way the fields set by an
// earlier transition are kept.
type LifecycleManager struct {
	repo   SnapshotRepository
	strict bool
	now    func() time.Time
	logger logrus.FieldLogger
}

// NewLifecycleManager creates a manager over repo.
func NewLifecycleManager(repo SnapshotRepository, strict bool, logger logrus.FieldLogger) *LifecycleManager {
	return &LifecycleManager{
		repo:   repo,
		strict: strict,
		now:    func() time.Time { return time.Now().UTC() },
		logger: orDefaultLogger(logger),
	}
}

// WithClock replaces the time source. Used by tests.
func (m *LifecycleManager) WithClock(now func() time.Time) *LifecycleManager {
	m.now = now
	return m
}

// Approve marks the period's snapshot approved by approverID.
func (m *LifecycleManager) Approve(ctx context.Context, workerID string, year, month int, approverID string) (*MonthlySnapshot, error) {
	return m.transition(ctx, workerID, year, month, StatusApproved, approverID)
}

// Pay marks the period's snapshot paid by payerID.
func (m *LifecycleManager) Pay(ctx context.Context, workerID string, year, month int, payerID string) (*MonthlySnapshot, error) {
	return m.transition(ctx, workerID, year, month, StatusPaid, payerID)
}

func (m *LifecycleManager) transition(ctx context.Context, workerID string, year, month int, to Status, actorID string) (*MonthlySnapshot, error) {
	snap, err := m.apply(ctx, workerID, year, month, to, actorID)
	metrics.RecordTransition(string(to), transitionResult(err))
	return snap, err
}

func (m *LifecycleManager) apply(ctx context.Context, workerID string, year, month int, to Status, actorID string) (*MonthlySnapshot, error) {
	if err := ValidateWorkerID(workerID); err != nil {
		return nil, err
	}
	if err := ValidatePeriod(year, month); err != nil {
		return nil, err
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id", Message: "must not be empty"}
	}

	loaded, err := m.repo.Load(ctx, workerID, year, month)
	if err != nil {
		return nil, err
	}
	if loaded.Snapshot == nil {
		return nil, &SnapshotNotFoundError{WorkerID: workerID, Year: year, Month: month}
	}
	snap := *loaded.Snapshot

	if m.strict && !canTransition(snap.Status, to) {
		return nil, &InvalidTransitionError{Key: snap.Key(), From: snap.Status, To: to}
	}

	at := m.now()
	switch to {
	case StatusApproved:
		snap.ApprovedBy = actorID
		snap.ApprovedAt = &at
	case StatusPaid:
		snap.PaidBy = actorID
		snap.PaidAt = &at
	}
	snap.Status = to

	res, err := m.repo.Save(ctx, snap)
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"year":      year,
		"month":     month,
		"status":    to,
		"actor_id":  actorID,
		"tier":      res.Tier,
	}).Info("snapshot status changed")
	return &snap, nil
}

// canTransition is the forward-only state machine.
func canTransition(from, to Status) bool {
	switch to {
	case StatusApproved:
		return from == StatusIssued
	case StatusPaid:
		return from == StatusApproved
	}
	return false
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "rejected"
	case IsClientError(err):
		return "invalid"
	default:
		return "error"
	}
}
