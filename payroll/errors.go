/*
errors.go - Error taxonomy for the wage engine

PURPOSE:
  All error types in one place. Each structured error unwraps to a sentinel,
  so callers branch with errors.Is and pull context out with errors.As.

ERROR CATEGORIES:
  1. Precondition errors - abort the operation (MissingRateConfiguration, Validation)
  2. Lookup errors - collaborator transport failures (RateLookup)
  3. Lifecycle errors - SnapshotNotFound, InvalidTransition
  4. Persistence errors - both storage tiers rejected a write, or a write
     could not see the state it would replace
  5. Record anomalies - skipped by the aggregator, never propagated from it

SEE ALSO:
  - monthly.go: Decides which errors abort and which are skipped
  - api/handlers.go: Maps these to HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRateLookup is returned when the rate source cannot be reached.
	ErrRateLookup = errors.New("rate lookup failed")

	// ErrMissingRateConfiguration is returned when a worker has no valid daily rate.
	ErrMissingRateConfiguration = errors.New("missing rate configuration")

	// ErrSnapshotNotFound is returned when no snapshot exists for a period.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrPersistence is returned when no storage tier accepted a write.
	ErrPersistence = errors.New("snapshot persistence failed")

	// ErrSnapshotStateUnknown is returned when a write depends on the current
	// snapshot and storage could not report it.
	ErrSnapshotStateUnknown = errors.New("current snapshot state unknown")

	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a lifecycle step is out of order.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrRecordAnomaly marks a single labor record that cannot be used.
	ErrRecordAnomaly = errors.New("labor record anomaly")

	// ErrWorkerNotFound is returned by worker configuration sources for unknown workers.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrUnknownClassification may be returned by rate sources; the resolver
	// turns it into an empty RateSet.
	ErrUnknownClassification = errors.New("unknown employment classification")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateLookupError wraps a transport failure against the rate source.
type RateLookupError struct {
	Classification string
	Err            error
}

func (e *RateLookupError) Error() string {
	return fmt.Sprintf("rate lookup for classification %q: %v", e.Classification, e.Err)
}

func (e *RateLookupError) Unwrap() []error {
	return []error{ErrRateLookup, e.Err}
}

// MissingRateConfigurationError means no valid daily rate is configured.
// Year and Month are zero when raised outside an aggregation.
type MissingRateConfigurationError struct {
	WorkerID string
	Year     int
	Month    int
	Reason   string
}

func (e *MissingRateConfigurationError) Error() string {
	msg := fmt.Sprintf("missing rate configuration for worker %s", e.WorkerID)
	if e.Year != 0 {
		msg += " (" + PeriodLabel(e.Year, e.Month) + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *MissingRateConfigurationError) Unwrap() error {
	return ErrMissingRateConfiguration
}

// SnapshotNotFoundError names the missing period.
type SnapshotNotFoundError struct {
	WorkerID string
	Year     int
	Month    int
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot not found: worker %s, period %s", e.WorkerID, PeriodLabel(e.Year, e.Month))
}

func (e *SnapshotNotFoundError) Unwrap() error {
	return ErrSnapshotNotFound
}

// PersistenceError carries the cause reported by each tier.
type PersistenceError struct {
	Key         SnapshotKey
	PrimaryErr  error
	FallbackErr error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot %s: primary: %v; fallback: %v", e.Key, e.PrimaryErr, e.FallbackErr)
}

func (e *PersistenceError) Unwrap() error {
	return ErrPersistence
}

// ValidationError describes malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidTransitionError is raised by strict lifecycle mode.
type InvalidTransitionError struct {
	Key  SnapshotKey
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move snapshot %s from %s to %s", e.Key, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RecordAnomalyError describes a labor record that was skipped.
type RecordAnomalyError struct {
	WorkerID string
	WorkDate string
	Reason   string
}

func (e *RecordAnomalyError) Error() string {
	return fmt.Sprintf("record %s on %s skipped: %s", e.WorkerID, e.WorkDate, e.Reason)
}

func (e *RecordAnomalyError) Unwrap() error {
	return ErrRecordAnomaly
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

const maxWorkerIDLength = 128

// ValidateWorkerID rejects ids that are empty or unsafe as a blob path segment.
func ValidateWorkerID(id string) error {
	if id == "" {
		return &ValidationError{Field: "worker_id", Message: "must not be empty"}
	}
	if len(id) > maxWorkerIDLength {
		return &ValidationError{Field: "worker_id", Message: "too long"}
	}
	if strings.Contains(id, "/") || strings.Contains(id, `\`) || strings.Contains(id, "..") {
		return &ValidationError{Field: "worker_id", Message: "must not contain path separators"}
	}
	if strings.HasPrefix(id, ".") {
		return &ValidationError{Field: "worker_id", Message: "must not start with a dot"}
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return &ValidationError{Field: "worker_id", Message: "must not contain whitespace"}
		}
	}
	return nil
}

// ValidatePeriod checks year and month ranges.
func ValidatePeriod(year, month int) error {
	if month < 1 || month > 12 {
		return &ValidationError{Field: "month", Message: fmt.Sprintf("%d is outside 1-12", month)}
	}
	if year < 1970 || year > 9999 {
		return &ValidationError{Field: "year", Message: fmt.Sprintf("%d is out of range", year)}
	}
	return nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrMissingRateConfiguration)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrWorkerNotFound)
}

// IsConflict returns true if the request clashes with the current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
