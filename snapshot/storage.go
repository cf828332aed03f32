/*
Package snapshot persists MonthlySnapshots across two storage tiers.

PURPOSE:
  Durable save/load/list of monthly snapshots keyed by (worker, year, month),
  staying available while the preferred structured schema is still being
  provisioned.

TIERS:
  primary   PrimaryBackend (sqlite, postgres) holding one flat row per snapshot,
            wrapped by a Negotiator that remembers unsupported optional columns
  fallback  BlobBackend (filesystem, DynamoDB) holding one JSON document per
            snapshot at {workerID}/{year}-{MM}.json

  Both are exposed through the Storage interface and tried in fixed order.
  The tiers are never synchronized: a record lives in whichever tier accepted
  its most recent save. A primary write removes the record's blob, so a
  record promoted out of the fallback tier does not linger there.

SAVE:
  primary.Put -> ok                       => {primary}, fallback copy deleted
              -> structurally unavailable => fallback.Put -> ok  => {fallback}
                                                          -> err => PersistenceError
              -> any other error          => PersistenceError (fallback not attempted)

LOAD / LIST:
  Never fail on backend faults. Primary first; a miss or an error falls back to
  the blob tier. A load that hit a fault other than structural
  unavailability is marked Degraded. Listing from the
  blob tier needs a worker id.

SEE ALSO:
  - codec.go: Row and blob encodings
  - negotiate.go: Capability negotiation for optional columns
  - store.go: Two-tier Store
*/
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrBackendUnavailable means the backend cannot hold snapshots at all
	// (relation or required column missing). Only this triggers fallback writes.
	ErrBackendUnavailable = errors.New("storage backend structurally unavailable")

	// ErrBlobNotFound is returned by blob backends for missing paths.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrWorkerRequired is returned when listing the blob tier without a worker id.
	ErrWorkerRequired = errors.New("listing the blob tier requires a worker id")

	errFallbackNotAttempted = errors.New("not attempted: primary failure was not structural")
)

// UnknownColumnError is returned by primary backends when a write names a
// column the schema does not have.
type UnknownColumnError struct {
	Column string
	Err    error
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q: %v", e.Column, e.Err)
}

func (e *UnknownColumnError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STORAGE - One tier
// =============================================================================

// Storage is one persistence tier. Get returns nil, nil when absent.
type Storage interface {
	Tier() payroll.Tier
	Put(ctx context.Context, snap payroll.MonthlySnapshot) error
	Get(ctx context.Context, key payroll.SnapshotKey) (*payroll.MonthlySnapshot, error)
	List(ctx context.Context, filter payroll.ListFilter) ([]payroll.MonthlySnapshot, error)
}

// Remover is implemented by tiers that can drop a snapshot. Deleting an
// absent snapshot is not an error.
type Remover interface {
	Delete(ctx context.Context, key payroll.SnapshotKey) error
}

// =============================================================================
// BACKENDS - Implemented under store/
// =============================================================================

// Row is one flat snapshot record keyed by column name. Values are string,
// int64 or nil; backends may hand back []byte, other integer widths, float64
// or time.Time and the codec accepts them.
type Row map[string]any

// PrimaryBackend is key-based upsert/find/query over snapshot rows.
//
// Implementations classify their driver errors: a missing relation wraps
// ErrBackendUnavailable, a missing column is an *UnknownColumnError.
// Find returns nil, nil when no row matches.
type PrimaryBackend interface {
	Upsert(ctx context.Context, row Row) error
	Find(ctx context.Context, workerID string, year, month int) (Row, error)
	Query(ctx context.Context, filter payroll.ListFilter) ([]Row, error)
}

// BlobBackend is path-based storage of opaque payloads. Read returns
// ErrBlobNotFound for missing paths; Delete of a missing path succeeds.
// List returns the full paths of every blob directly under prefix, which
// ends in "/".
type BlobBackend interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// IsUnavailable reports whether err means the tier cannot hold snapshots.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
