package gormdb

import (
	"time"

	"github.com/shopspring/decimal"
)

// LaborRecordModel is one attendance entry. Exactly one of Hours and
// LaborDays is expected to be set.
type LaborRecordModel struct {
	ID          uint                `gorm:"primaryKey"`
	WorkerID    string              `gorm:"type:varchar(128);not null;index:idx_labor_worker_date"`
	WorkDate    time.Time           `gorm:"not null;index:idx_labor_worker_date"`
	SiteID      string              `gorm:"type:varchar(64)"`
	Hours       decimal.NullDecimal `gorm:"type:text"`
	LaborDays   decimal.NullDecimal `gorm:"type:text"`
	Supplements map[string]string   `gorm:"serializer:json;type:text"`
	CreatedAt   time.Time
}

func (LaborRecordModel) TableName() string {
	return "labor_records"
}

// WorkerProfileModel is a worker's current classification and daily rate.
type WorkerProfileModel struct {
	WorkerID       string          `gorm:"primaryKey;type:varchar(128)"`
	Classification string          `gorm:"type:varchar(64)"`
	DailyRate      decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt      time.Time
}

func (WorkerProfileModel) TableName() string {
	return "worker_profiles"
}

// RateEntryModel is one named deduction percentage of a rate-table version.
type RateEntryModel struct {
	ID             uint            `gorm:"primaryKey"`
	Classification string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_rate_version"`
	EffectiveFrom  time.Time       `gorm:"not null;uniqueIndex:idx_rate_version"`
	Name           string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_rate_version"`
	Percent        decimal.Decimal `gorm:"type:text;not null"`
}

func (RateEntryModel) TableName() string {
	return "rate_entries"
}
