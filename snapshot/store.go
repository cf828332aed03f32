package snapshot

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/metrics"
	"github.com/warp/wage-engine/payroll"
)

// Store is the two-tier snapshot repository used by the engine.
type Store struct {
	primary  Storage
	fallback Storage
	logger   logrus.FieldLogger
}

var _ payroll.SnapshotRepository = (*Store)(nil)

// NewStore builds a store. primary may be nil when no structured backend is
// configured; it is then treated as permanently unavailable.
func NewStore(primary, fallback Storage, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{primary: primary, fallback: fallback, logger: logger}
}

// Save upserts the snapshot into the primary tier, or into the fallback tier
// when the primary is structurally unavailable.
func (s *Store) Save(ctx context.Context, snap payroll.MonthlySnapshot) (payroll.SaveResult, error) {
	if err := snap.Validate(); err != nil {
		return payroll.SaveResult{}, err
	}
	key := snap.Key()
	log := s.logger.WithFields(logrus.Fields{
		"worker_id": key.WorkerID,
		"year":      key.Year,
		"month":     key.Month,
		"status":    snap.Status,
	})

	primaryErr := ErrBackendUnavailable
	if s.primary != nil {
		primaryErr = s.primary.Put(ctx, snap)
		metrics.RecordSave(string(payroll.TierPrimary), primaryErr)
		if primaryErr == nil {
			log.WithField("tier", payroll.TierPrimary).Debug("snapshot saved")
			s.evictFallback(ctx, key, log)
			return payroll.SaveResult{Success: true, Tier: payroll.TierPrimary}, nil
		}
		if !IsUnavailable(primaryErr) {
			log.WithError(primaryErr).Error("primary tier rejected snapshot")
			return payroll.SaveResult{}, &payroll.PersistenceError{Key: key, PrimaryErr: primaryErr, FallbackErr: errFallbackNotAttempted}
		}
	}

	log.WithError(primaryErr).Warn("primary tier unavailable, writing snapshot to fallback tier")
	fallbackErr := s.fallback.Put(ctx, snap)
	metrics.RecordSave(string(payroll.TierFallback), fallbackErr)
	if fallbackErr != nil {
		log.WithError(fallbackErr).Error("fallback tier rejected snapshot")
		return payroll.SaveResult{}, &payroll.PersistenceError{Key: key, PrimaryErr: primaryErr, FallbackErr: fallbackErr}
	}
	return payroll.SaveResult{Success: true, Tier: payroll.TierFallback}, nil
}

// Load returns the period's snapshot from the first tier that has it. Backend
// faults are logged and treated as misses; only invalid input is an error.
func (s *Store) Load(ctx context.Context, workerID string, year, month int) (payroll.LoadResult, error) {
	if err := payroll.ValidateWorkerID(workerID); err != nil {
		return payroll.LoadResult{}, err
	}
	if err := payroll.ValidatePeriod(year, month); err != nil {
		return payroll.LoadResult{}, err
	}
	key := payroll.SnapshotKey{WorkerID: workerID, Year: year, Month: month}
	log := s.logger.WithFields(logrus.Fields{"worker_id": workerID, "year": year, "month": month})

	degraded := false
	for _, tier := range s.tiers() {
		snap, err := tier.Get(ctx, key)
		if err != nil {
			log.WithError(err).WithField("tier", tier.Tier()).Warn("snapshot read failed, trying next tier")
			// A tier without its relation cannot be holding the record.
			degraded = degraded || !IsUnavailable(err)
			continue
		}
		if snap != nil {
			metrics.RecordLoad(string(tier.Tier()))
			return payroll.LoadResult{Snapshot: snap, Tier: tier.Tier(), Degraded: degraded}, nil
		}
	}
	metrics.RecordLoad(string(payroll.TierNone))
	return payroll.LoadResult{Tier: payroll.TierNone, Degraded: degraded}, nil
}

// List queries the primary tier, or the worker's blobs when the primary
// fails. Without a worker id the blob tier cannot be listed and the result
// is empty.
func (s *Store) List(ctx context.Context, filter payroll.ListFilter) ([]payroll.MonthlySnapshot, error) {
	if filter.WorkerID != "" {
		if err := payroll.ValidateWorkerID(filter.WorkerID); err != nil {
			return nil, err
		}
	}
	if filter.Month != 0 && (filter.Month < 1 || filter.Month > 12) {
		return nil, &payroll.ValidationError{Field: "month", Message: "must be within 1-12"}
	}
	filter.Limit = filter.EffectiveLimit()
	log := s.logger.WithField("worker_id", filter.WorkerID)

	if s.primary != nil {
		snaps, err := s.primary.List(ctx, filter)
		if err == nil {
			return finishList(snaps, filter), nil
		}
		log.WithError(err).Warn("primary snapshot listing failed, falling back")
	}

	if filter.WorkerID == "" {
		log.Warn("fallback listing needs a worker id, returning no snapshots")
		return []payroll.MonthlySnapshot{}, nil
	}
	snaps, err := s.fallback.List(ctx, filter)
	if err != nil {
		log.WithError(err).Warn("fallback snapshot listing failed")
		return []payroll.MonthlySnapshot{}, nil
	}
	return finishList(snaps, filter), nil
}

// evictFallback removes the blob copy of a record the primary tier now holds.
func (s *Store) evictFallback(ctx context.Context, key payroll.SnapshotKey, log logrus.FieldLogger) {
	r, ok := s.fallback.(Remover)
	if !ok {
		return
	}
	if err := r.Delete(ctx, key); err != nil {
		log.WithError(err).Error("stale fallback copy of snapshot was not removed")
	}
}

func (s *Store) tiers() []Storage {
	if s.primary == nil {
		return []Storage{s.fallback}
	}
	return []Storage{s.primary, s.fallback}
}

func finishList(snaps []payroll.MonthlySnapshot, filter payroll.ListFilter) []payroll.MonthlySnapshot {
	out := make([]payroll.MonthlySnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if filter.Matches(snap) {
			out = append(out, snap)
		}
	}
	payroll.SortSnapshots(out)
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
