/*
Package sqlite provides a SQLite-backed primary tier for monthly snapshots.

PURPOSE:
  Implements snapshot.PrimaryBackend using SQLite. The postgres package
  follows the same patterns; only placeholders and error codes differ.

KEY TABLE:
  monthly_snapshots: One flat row per (worker_id, year, month)

UPSERT:
  INSERT ... ON CONFLICT(worker_id, year, month) DO UPDATE SET col = excluded.col
  Re-saving a period replaces the row; there is never more than one.

ERROR CLASSIFICATION:
  "no such table"            -> snapshot.ErrBackendUnavailable (fallback tier takes writes)
  "has no column named X"    -> *snapshot.UnknownColumnError{Column: X}
  "no such column: X"        -> *snapshot.UnknownColumnError{Column: X}
  anything else              -> returned as is

CONCURRENCY:
  Uses sync.RWMutex plus a single open connection, so ":memory:" databases
  are shared across calls.

USAGE:
  store, err := sqlite.New("./data/wages.db")   // opens and migrates
  store, err := sqlite.Open("./data/wages.db")  // opens, schema managed elsewhere
  defer store.Close()

  primary := snapshot.NewPrimaryStorage(store, logger)

MIGRATION:
  New() creates the schema. Open() leaves it alone, which is how an
  environment with a not-yet-provisioned schema runs in degraded mode.

SEE ALSO:
  - snapshot/storage.go: Interface definitions
  - snapshot/negotiate.go: Column negotiation on top of this store
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
	"github.com/warp/wage-engine/store/sqlrow"
)

// Store implements snapshot.PrimaryBackend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ snapshot.PrimaryBackend = (*Store)(nil)

// New opens the database and creates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	store, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Open opens the database without touching the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for metrics and ad hoc schema work.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Schema is the full monthly_snapshots definition.
const Schema = `
	CREATE TABLE IF NOT EXISTS monthly_snapshots (
		worker_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		id TEXT NOT NULL,
		period_label TEXT,
		schema_version INTEGER NOT NULL,
		template_version TEXT,
		issued_at TEXT NOT NULL,
		issued_by TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		workdays INTEGER NOT NULL DEFAULT 0,
		total_labor_days TEXT NOT NULL,
		overtime_hours TEXT,
		base_pay TEXT NOT NULL,
		overtime_pay TEXT,
		bonus_pay TEXT,
		gross_pay TEXT NOT NULL,
		deductions TEXT NOT NULL,
		total_deductions TEXT NOT NULL,
		net_pay TEXT NOT NULL,
		classification TEXT,
		daily_rate TEXT NOT NULL,
		first_workday TEXT,
		last_workday TEXT,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		paid_by TEXT,
		paid_at TEXT,
		meta_note TEXT,
		PRIMARY KEY (worker_id, year, month)
	);

	-- Listing by period across workers
	CREATE INDEX IF NOT EXISTS idx_monthly_snapshots_period
		ON monthly_snapshots(year DESC, month DESC);

	-- Lifecycle dashboards (all approved, all unpaid...)
	CREATE INDEX IF NOT EXISTS idx_monthly_snapshots_status
		ON monthly_snapshots(status);
`

// =============================================================================
// PRIMARY BACKEND
// =============================================================================

// Upsert inserts or replaces the row for its (worker_id, year, month).
func (s *Store) Upsert(ctx context.Context, row snapshot.Row) error {
	query, args, err := sqlrow.Upsert(row, sqlrow.Question)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, query, args...)
	return classify(err)
}

// Find returns the row for the period, or nil if there is none.
func (s *Store) Find(ctx context.Context, workerID string, year, month int) (snapshot.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, sqlrow.Find(sqlrow.Question), workerID, year, month)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	found, err := sqlrow.Scan(rows)
	if err != nil {
		return nil, classify(err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// Query lists rows matching filter, newest period first.
func (s *Store) Query(ctx context.Context, filter payroll.ListFilter) ([]snapshot.Row, error) {
	query, args := sqlrow.Query(filter, sqlrow.Question)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	found, err := sqlrow.Scan(rows)
	return found, classify(err)
}

// =============================================================================
// HELPERS
// =============================================================================

var (
	missingColumnInsert = regexp.MustCompile(`has no column named (\w+)`)
	missingColumnSelect = regexp.MustCompile(`no such column: (\w+)`)
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") {
		return fmt.Errorf("%w: %v", snapshot.ErrBackendUnavailable, err)
	}
	for _, re := range []*regexp.Regexp{missingColumnInsert, missingColumnSelect} {
		if m := re.FindStringSubmatch(msg); m != nil {
			return &snapshot.UnknownColumnError{Column: m[1], Err: err}
		}
	}
	return err
}
