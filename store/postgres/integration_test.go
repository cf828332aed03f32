package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
	"github.com/warp/wage-engine/store/postgres"
)

func TestPostgres_SaveLoad(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()

	db, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	workerID := "w-it-" + time.Now().UTC().Format("150405.000000")
	_, _ = db.DB().ExecContext(ctx, "DELETE FROM monthly_snapshots WHERE worker_id = $1", workerID)

	store := snapshot.NewStore(
		snapshot.NewPrimaryStorage(db, nil),
		snapshot.NewBlobStorage(snapshot.NewMemoryBlob(), nil),
		nil,
	)
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	snap := payroll.MonthlySnapshot{
		ID:              "id-it",
		WorkerID:        workerID,
		Year:            2024,
		Month:           3,
		PeriodLabel:     "2024-03",
		SchemaVersion:   payroll.SchemaVersion,
		TemplateVersion: "v1",
		IssuedAt:        start.AddDate(0, 1, 1),
		IssuedBy:        "hr-1",
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 1, -1),
		Workdays:        1,
		TotalLaborDays:  decimal.NewFromInt(1),
		BasePay:         decimal.NewFromInt(150000),
		GrossPay:        decimal.NewFromInt(150000),
		Deductions:      map[string]decimal.Decimal{"income_tax": decimal.NewFromInt(4950)},
		TotalDeductions: decimal.NewFromInt(4950),
		NetPay:          decimal.NewFromInt(145050),
		Classification:  "daily",
		DailyRate:       decimal.NewFromInt(150000),
		Status:          payroll.StatusIssued,
	}

	res, err := store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, res.Tier)

	loaded, err := store.Load(ctx, workerID, 2024, 3)
	require.NoError(t, err)
	require.NotNil(t, loaded.Snapshot)
	assert.Equal(t, payroll.TierPrimary, loaded.Tier)
	assert.True(t, loaded.Snapshot.Equal(snap))

	_, _ = db.DB().ExecContext(ctx, "DELETE FROM monthly_snapshots WHERE worker_id = $1", workerID)
}
