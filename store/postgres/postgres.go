// Package postgres provides a PostgreSQL-backed primary tier for monthly
// snapshots through the pgx stdlib driver. Statements are shared with the
// sqlite backend via sqlrow; only placeholders and error classification differ.
//
// SQLSTATE mapping:
//
//	42P01 undefined_table  -> snapshot.ErrBackendUnavailable
//	42703 undefined_column -> *snapshot.UnknownColumnError
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
	"github.com/warp/wage-engine/store/sqlrow"
)

const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// Store implements snapshot.PrimaryBackend on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ snapshot.PrimaryBackend = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing handle opened with the "pgx" driver.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for metrics.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the snapshot table and its indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS monthly_snapshots (
		worker_id TEXT NOT NULL,
		year BIGINT NOT NULL,
		month BIGINT NOT NULL,
		id TEXT NOT NULL,
		period_label TEXT,
		schema_version BIGINT NOT NULL,
		template_version TEXT,
		issued_at TEXT NOT NULL,
		issued_by TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		workdays BIGINT NOT NULL DEFAULT 0,
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
	)`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_snapshots_period ON monthly_snapshots (year DESC, month DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_monthly_snapshots_status ON monthly_snapshots (status)`,
}

func (s *Store) Upsert(ctx context.Context, row snapshot.Row) error {
	query, args, err := sqlrow.Upsert(row, sqlrow.Dollar)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return classify(err)
}

func (s *Store) Find(ctx context.Context, workerID string, year, month int) (snapshot.Row, error) {
	rows, err := s.db.QueryContext(ctx, sqlrow.Find(sqlrow.Dollar), workerID, year, month)
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

func (s *Store) Query(ctx context.Context, filter payroll.ListFilter) ([]snapshot.Row, error) {
	query, args := sqlrow.Query(filter, sqlrow.Dollar)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	found, err := sqlrow.Scan(rows)
	return found, classify(err)
}

var quotedColumn = regexp.MustCompile(`column "([^"]+)"`)

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUndefinedTable:
		return fmt.Errorf("%w: %v", snapshot.ErrBackendUnavailable, err)
	case codeUndefinedColumn:
		column := pgErr.ColumnName
		if m := quotedColumn.FindStringSubmatch(pgErr.Message); column == "" && m != nil {
			column = m[1]
		}
		return &snapshot.UnknownColumnError{Column: column, Err: err}
	}
	return err
}
