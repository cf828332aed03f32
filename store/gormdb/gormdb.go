// Package gormdb implements the engine's read-side collaborators (labor
// records, worker profiles, rate tables) on a gorm database.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/payroll/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// OpenSQLite opens a gorm handle on a SQLite file (":memory:" for tests).
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sources database: %w", err)
	}
	if path == ":memory:" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Sources bundles the three collaborators over one database.
type Sources struct {
	Records *LaborRecordRepository
	Workers *WorkerRepository
	Rates   *RateRepository
}

// NewSources migrates every table and builds the repositories.
func NewSources(db *gorm.DB, logger logrus.FieldLogger) (*Sources, error) {
	records, err := NewLaborRecordRepository(db, logger)
	if err != nil {
		return nil, err
	}
	workers, err := NewWorkerRepository(db, logger)
	if err != nil {
		return nil, err
	}
	rates, err := NewRateRepository(db, logger)
	if err != nil {
		return nil, err
	}
	return &Sources{Records: records, Workers: workers, Rates: rates}, nil
}

func orDefault(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// LABOR RECORDS
// =============================================================================

type LaborRecordRepository struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

var _ payroll.LaborRecordSource = (*LaborRecordRepository)(nil)

func NewLaborRecordRepository(db *gorm.DB, logger logrus.FieldLogger) (*LaborRecordRepository, error) {
	logger = orDefault(logger)
	if err := db.AutoMigrate(&LaborRecordModel{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate labor_records table")
		return nil, err
	}
	return &LaborRecordRepository{db: db, logger: logger}, nil
}

// Add stores records as reported by the attendance side.
func (r *LaborRecordRepository) Add(ctx context.Context, recs ...payroll.LaborRecord) error {
	if len(recs) == 0 {
		return nil
	}
	models := make([]LaborRecordModel, len(recs))
	for i, rec := range recs {
		m := LaborRecordModel{
			WorkerID:    rec.WorkerID,
			WorkDate:    dateOnly(rec.WorkDate),
			SiteID:      rec.SiteID,
			Supplements: rec.Supplements,
		}
		if rec.Hours != nil {
			m.Hours = decimal.NewNullDecimal(*rec.Hours)
		}
		if rec.LaborDays != nil {
			m.LaborDays = decimal.NewNullDecimal(*rec.LaborDays)
		}
		models[i] = m
	}
	return r.db.WithContext(ctx).Create(&models).Error
}

func (r *LaborRecordRepository) ListForWorkerInRange(ctx context.Context, workerID string, start, end time.Time) ([]payroll.LaborRecord, error) {
	var models []LaborRecordModel
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND work_date BETWEEN ? AND ?", workerID, dateOnly(start), dateOnly(end)).
		Order("work_date ASC, id ASC").
		Find(&models).Error
	if err != nil {
		r.logger.WithError(err).WithField("worker_id", workerID).Error("Failed to list labor records")
		return nil, err
	}

	out := make([]payroll.LaborRecord, len(models))
	for i, m := range models {
		rec := payroll.LaborRecord{
			WorkerID:    m.WorkerID,
			WorkDate:    dateOnly(m.WorkDate),
			SiteID:      m.SiteID,
			Supplements: m.Supplements,
		}
		if m.Hours.Valid {
			h := m.Hours.Decimal
			rec.Hours = &h
		}
		if m.LaborDays.Valid {
			d := m.LaborDays.Decimal
			rec.LaborDays = &d
		}
		out[i] = rec
	}
	return out, nil
}

// =============================================================================
// WORKER PROFILES
// =============================================================================

type WorkerRepository struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

var _ payroll.WorkerConfigurationSource = (*WorkerRepository)(nil)

func NewWorkerRepository(db *gorm.DB, logger logrus.FieldLogger) (*WorkerRepository, error) {
	logger = orDefault(logger)
	if err := db.AutoMigrate(&WorkerProfileModel{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate worker_profiles table")
		return nil, err
	}
	return &WorkerRepository{db: db, logger: logger}, nil
}

// Set inserts or replaces a worker's profile.
func (r *WorkerRepository) Set(ctx context.Context, workerID, classification string, dailyRate decimal.Decimal) error {
	m := WorkerProfileModel{WorkerID: workerID, Classification: classification, DailyRate: dailyRate}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
}

func (r *WorkerRepository) GetEmploymentProfile(ctx context.Context, workerID string) (payroll.EmploymentProfile, error) {
	var m WorkerProfileModel
	err := r.db.WithContext(ctx).Where("worker_id = ?", workerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payroll.EmploymentProfile{}, payroll.ErrWorkerNotFound
	}
	if err != nil {
		return payroll.EmploymentProfile{}, err
	}
	return payroll.EmploymentProfile{Classification: m.Classification, DailyRate: m.DailyRate}, nil
}

// =============================================================================
// RATE TABLES
// =============================================================================

type RateRepository struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

var _ payroll.RateTableSource = (*RateRepository)(nil)

func NewRateRepository(db *gorm.DB, logger logrus.FieldLogger) (*RateRepository, error) {
	logger = orDefault(logger)
	if err := db.AutoMigrate(&RateEntryModel{}); err != nil {
		logger.WithError(err).Error("Failed to auto-migrate rate_entries table")
		return nil, err
	}
	return &RateRepository{db: db, logger: logger}, nil
}

// SetRates replaces the version of classification effective from the given date.
func (r *RateRepository) SetRates(ctx context.Context, classification string, effectiveFrom time.Time, rates map[string]decimal.Decimal) error {
	from := dateOnly(effectiveFrom)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("classification = ? AND effective_from = ?", classification, from).
			Delete(&RateEntryModel{}).Error; err != nil {
			return err
		}
		if len(rates) == 0 {
			return nil
		}
		entries := make([]RateEntryModel, 0, len(rates))
		for name, pct := range rates {
			entries = append(entries, RateEntryModel{
				Classification: classification,
				EffectiveFrom:  from,
				Name:           name,
				Percent:        pct,
			})
		}
		return tx.Create(&entries).Error
	})
}

func (r *RateRepository) GetRatesFor(ctx context.Context, classification string, asOf time.Time) (payroll.RateTable, error) {
	var entries []RateEntryModel
	err := r.db.WithContext(ctx).
		Where("classification = ?", classification).
		Order("effective_from ASC").
		Find(&entries).Error
	if err != nil {
		return payroll.RateTable{}, err
	}

	byDate := make(map[time.Time]map[string]decimal.Decimal)
	for _, e := range entries {
		from := dateOnly(e.EffectiveFrom)
		if byDate[from] == nil {
			byDate[from] = make(map[string]decimal.Decimal)
		}
		byDate[from][e.Name] = e.Percent
	}
	versions := make([]payroll.RateTable, 0, len(byDate))
	for from, rates := range byDate {
		versions = append(versions, payroll.RateTable{Rates: rates, EffectiveFrom: from})
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].EffectiveFrom.Before(versions[j].EffectiveFrom)
	})
	return store.PickEffective(versions, asOf)
}

// =============================================================================
// SEEDING
// =============================================================================

// Reset deletes every labor record, profile and rate entry.
func (s *Sources) Reset(ctx context.Context) error {
	return s.Records.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&LaborRecordModel{}, &WorkerProfileModel{}, &RateEntryModel{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Sources) SetWorker(ctx context.Context, workerID, classification string, dailyRate decimal.Decimal) error {
	return s.Workers.Set(ctx, workerID, classification, dailyRate)
}

func (s *Sources) SetRates(ctx context.Context, classification string, effectiveFrom time.Time, rates map[string]decimal.Decimal) error {
	return s.Rates.SetRates(ctx, classification, effectiveFrom, rates)
}

func (s *Sources) AddRecords(ctx context.Context, recs ...payroll.LaborRecord) error {
	return s.Records.Add(ctx, recs...)
}

// ListWorkerIDs returns every worker with a profile, in id order.
func (r *WorkerRepository) ListWorkerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&WorkerProfileModel{}).Order("worker_id ASC").Pluck("worker_id", &ids).Error
	return ids, err
}
