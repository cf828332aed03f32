package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
)

// Negotiator wraps a PrimaryBackend and learns which optional columns the
// schema lacks. The first write that trips over a missing optional column
// marks it unsupported for the life of the process; that write and every
// later one move the column's value into meta_note instead of probing again.
//
// A missing required column makes the backend structurally unavailable.
type Negotiator struct {
	backend PrimaryBackend
	logger  logrus.FieldLogger

	mu          sync.RWMutex
	unsupported map[string]struct{}
}

var _ PrimaryBackend = (*Negotiator)(nil)

// NewNegotiator wraps backend.
func NewNegotiator(backend PrimaryBackend, logger logrus.FieldLogger) *Negotiator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Negotiator{
		backend:     backend,
		logger:      logger,
		unsupported: make(map[string]struct{}),
	}
}

// Unsupported returns the optional columns learned to be missing, sorted.
func (n *Negotiator) Unsupported() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cols := make([]string, 0, len(n.unsupported))
	for col := range n.unsupported {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Upsert writes row, dropping unsupported optional columns into meta_note.
func (n *Negotiator) Upsert(ctx context.Context, row Row) error {
	// Each retry learns one more column, so the loop is bounded by their count.
	for attempt := 0; attempt <= len(optionalColumns); attempt++ {
		trimmed, err := moveToMetaNote(row, n.Unsupported())
		if err != nil {
			return err
		}

		err = n.backend.Upsert(ctx, trimmed)
		var unknown *UnknownColumnError
		if !errors.As(err, &unknown) {
			return err
		}
		if !IsOptionalColumn(unknown.Column) {
			return fmt.Errorf("%w: required column %q missing: %v", ErrBackendUnavailable, unknown.Column, unknown.Err)
		}
		if !n.markUnsupported(unknown.Column) {
			return err
		}
		n.logger.WithField("column", unknown.Column).Warn("primary schema lacks optional column, recording it in meta_note")
	}
	return fmt.Errorf("%w: column negotiation did not converge", ErrBackendUnavailable)
}

// markUnsupported records col and reports whether it was new.
func (n *Negotiator) markUnsupported(col string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.unsupported[col]; ok {
		return false
	}
	n.unsupported[col] = struct{}{}
	return true
}

// Find passes through; DecodeRow restores meta_note values.
func (n *Negotiator) Find(ctx context.Context, workerID string, year, month int) (Row, error) {
	return n.backend.Find(ctx, workerID, year, month)
}

// Query passes through.
func (n *Negotiator) Query(ctx context.Context, filter payroll.ListFilter) ([]Row, error) {
	return n.backend.Query(ctx, filter)
}
