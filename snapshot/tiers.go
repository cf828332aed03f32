package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// PRIMARY STORAGE - Rows in a structured backend
// =============================================================================

// PrimaryStorage stores snapshots as rows. The backend is wrapped in a
// Negotiator so schemas missing optional columns still accept writes.
type PrimaryStorage struct {
	backend    PrimaryBackend
	negotiator *Negotiator
	logger     logrus.FieldLogger
}

var _ Storage = (*PrimaryStorage)(nil)

// NewPrimaryStorage wraps backend with capability negotiation.
func NewPrimaryStorage(backend PrimaryBackend, logger logrus.FieldLogger) *PrimaryStorage {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	n := NewNegotiator(backend, logger)
	return &PrimaryStorage{backend: n, negotiator: n, logger: logger}
}

// Negotiator exposes the column negotiation state.
func (p *PrimaryStorage) Negotiator() *Negotiator {
	return p.negotiator
}

func (p *PrimaryStorage) Tier() payroll.Tier { return payroll.TierPrimary }

func (p *PrimaryStorage) Put(ctx context.Context, snap payroll.MonthlySnapshot) error {
	row, err := EncodeRow(snap)
	if err != nil {
		return err
	}
	return p.backend.Upsert(ctx, row)
}

func (p *PrimaryStorage) Get(ctx context.Context, key payroll.SnapshotKey) (*payroll.MonthlySnapshot, error) {
	row, err := p.backend.Find(ctx, key.WorkerID, key.Year, key.Month)
	if err != nil || row == nil {
		return nil, err
	}
	snap, err := DecodeRow(row)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List skips rows that fail to decode.
func (p *PrimaryStorage) List(ctx context.Context, filter payroll.ListFilter) ([]payroll.MonthlySnapshot, error) {
	rows, err := p.backend.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.MonthlySnapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := DecodeRow(row)
		if err != nil {
			p.logger.WithError(err).Warn("skipping undecodable snapshot row")
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// =============================================================================
// BLOB STORAGE - One JSON document per snapshot
// =============================================================================

// BlobStorage stores snapshots as JSON blobs at BlobPath.
type BlobStorage struct {
	blobs  BlobBackend
	logger logrus.FieldLogger
}

var (
	_ Storage = (*BlobStorage)(nil)
	_ Remover = (*BlobStorage)(nil)
)

// NewBlobStorage wraps a blob backend.
func NewBlobStorage(blobs BlobBackend, logger logrus.FieldLogger) *BlobStorage {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BlobStorage{blobs: blobs, logger: logger}
}

func (b *BlobStorage) Tier() payroll.Tier { return payroll.TierFallback }

func (b *BlobStorage) Put(ctx context.Context, snap payroll.MonthlySnapshot) error {
	data, err := MarshalBlob(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot blob: %w", err)
	}
	return b.blobs.Write(ctx, BlobPath(snap.WorkerID, snap.Year, snap.Month), data)
}

func (b *BlobStorage) Delete(ctx context.Context, key payroll.SnapshotKey) error {
	return b.blobs.Delete(ctx, BlobPath(key.WorkerID, key.Year, key.Month))
}

func (b *BlobStorage) Get(ctx context.Context, key payroll.SnapshotKey) (*payroll.MonthlySnapshot, error) {
	data, err := b.blobs.Read(ctx, BlobPath(key.WorkerID, key.Year, key.Month))
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := UnmarshalBlob(data)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List enumerates the worker's prefix, parses every blob and filters in
// memory. It needs filter.WorkerID.
func (b *BlobStorage) List(ctx context.Context, filter payroll.ListFilter) ([]payroll.MonthlySnapshot, error) {
	if filter.WorkerID == "" {
		return nil, ErrWorkerRequired
	}
	paths, err := b.blobs.List(ctx, BlobPrefix(filter.WorkerID))
	if err != nil {
		return nil, err
	}
	out := make([]payroll.MonthlySnapshot, 0, len(paths))
	for _, p := range paths {
		if _, ok := ParseBlobPath(p); !ok {
			continue
		}
		data, err := b.blobs.Read(ctx, p)
		if err != nil {
			b.logger.WithError(err).WithField("path", p).Warn("skipping unreadable snapshot blob")
			continue
		}
		snap, err := UnmarshalBlob(data)
		if err != nil {
			b.logger.WithError(err).WithField("path", p).Warn("skipping undecodable snapshot blob")
			continue
		}
		if filter.Matches(snap) {
			out = append(out, snap)
		}
	}
	payroll.SortSnapshots(out)
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
