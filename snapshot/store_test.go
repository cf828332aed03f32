package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func sampleSnapshot(workerID string, year, month int) payroll.MonthlySnapshot {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return payroll.MonthlySnapshot{
		ID:              "3f1b0c9e-6a7d-4f43-9b65-0d3c2a1e5f10",
		WorkerID:        workerID,
		Year:            year,
		Month:           month,
		PeriodLabel:     payroll.PeriodLabel(year, month),
		SchemaVersion:   payroll.SchemaVersion,
		TemplateVersion: "statement-2024",
		IssuedAt:        time.Date(2024, time.April, 2, 9, 30, 0, 123000000, time.UTC),
		IssuedBy:        "hr-1",
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 1, -1),
		Workdays:        2,
		TotalLaborDays:  dec("2"),
		OvertimeHours:   dec("2"),
		BasePay:         dec("300000"),
		OvertimePay:     dec("56250"),
		BonusPay:        dec("0"),
		GrossPay:        dec("356250"),
		Deductions:      map[string]decimal.Decimal{"income_tax": dec("11756")},
		TotalDeductions: dec("11756"),
		NetPay:          dec("344494"),
		Classification:  "daily",
		DailyRate:       dec("150000"),
		FirstWorkday:    ptr(start.AddDate(0, 0, 3)),
		LastWorkday:     ptr(start.AddDate(0, 0, 4)),
		Status:          payroll.StatusIssued,
	}
}

func approved(s payroll.MonthlySnapshot) payroll.MonthlySnapshot {
	s.Status = payroll.StatusApproved
	s.ApprovedBy = "mgr-7"
	s.ApprovedAt = ptr(time.Date(2024, time.April, 3, 10, 0, 0, 0, time.UTC))
	return s
}

type tiers struct {
	primary *snapshot.MemoryPrimary
	blobs   *snapshot.MemoryBlob
	store   *snapshot.Store
}

func newTiers() tiers {
	primary := snapshot.NewMemoryPrimary()
	blobs := snapshot.NewMemoryBlob()
	return tiers{
		primary: primary,
		blobs:   blobs,
		store: snapshot.NewStore(
			snapshot.NewPrimaryStorage(primary, nil),
			snapshot.NewBlobStorage(blobs, nil),
			nil,
		),
	}
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

func TestStore_SaveLoad_RoundTripPrimary(t *testing.T) {
	tr := newTiers()
	ctx := context.Background()
	snap := approved(sampleSnapshot("w-1", 2024, 3))

	res, err := tr.store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, res.Tier)

	loaded, err := tr.store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, loaded.Tier)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.Equal(snap), "got %+v", *loaded.Snapshot)
}

func TestStore_Save_Idempotent(t *testing.T) {
	// GIVEN: The same snapshot saved twice
	// THEN: Exactly one stored record, equal to the input

	tr := newTiers()
	ctx := context.Background()
	snap := sampleSnapshot("w-1", 2024, 3)

	_, err := tr.store.Save(ctx, snap)
	require.NoError(t, err)
	_, err = tr.store.Save(ctx, snap)
	require.NoError(t, err)

	assert.Equal(t, 1, tr.primary.Len())
	all, err := tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Equal(snap))
}

func TestStore_PrimaryAbsent_UsesFallback(t *testing.T) {
	// GIVEN: A primary backend whose relation does not exist
	// WHEN: Saving and loading
	// THEN: The blob tier takes the write; load reports the fallback tier

	tr := newTiers()
	tr.primary.SetAbsent(true)
	ctx := context.Background()
	snap := sampleSnapshot("w-1", 2024, 3)

	res, err := tr.store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, res.Tier)
	assert.Equal(t, 1, tr.blobs.Len())

	loaded, err := tr.store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, loaded.Tier)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.Equal(snap))
	assert.False(t, loaded.Degraded, "a missing relation is not a read fault")
}

func TestStore_PrimaryTransientError_NoFallbackWrite(t *testing.T) {
	// GIVEN: The primary exists but fails for a non-structural reason
	// THEN: PersistenceError, and the blob tier is left untouched

	tr := newTiers()
	boom := errors.New("deadlock detected")
	tr.primary.FailWith(boom)

	_, err := tr.store.Save(context.Background(), sampleSnapshot("w-1", 2024, 3))

	var perr *payroll.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, perr.PrimaryErr, boom)
	assert.Error(t, perr.FallbackErr)
	assert.ErrorIs(t, err, payroll.ErrPersistence)
	assert.Equal(t, 0, tr.blobs.Len())
}

func TestStore_BothTiersFail_PersistenceErrorCarriesBoth(t *testing.T) {
	tr := newTiers()
	tr.primary.SetAbsent(true)
	diskFull := errors.New("no space left on device")
	tr.blobs.FailWith(diskFull)

	_, err := tr.store.Save(context.Background(), sampleSnapshot("w-1", 2024, 3))

	var perr *payroll.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, snapshot.IsUnavailable(perr.PrimaryErr))
	assert.ErrorIs(t, perr.FallbackErr, diskFull)
	assert.Equal(t, payroll.SnapshotKey{WorkerID: "w-1", Year: 2024, Month: 3}, perr.Key)
}

func TestStore_Load_DegradesToNotFound(t *testing.T) {
	tr := newTiers()
	tr.primary.FailWith(errors.New("connection reset"))
	tr.blobs.FailWith(errors.New("bucket gone"))

	loaded, err := tr.store.Load(context.Background(), "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Nil(t, loaded.Snapshot)
	assert.Equal(t, payroll.TierNone, loaded.Tier)
	assert.True(t, loaded.Degraded)
}

func TestStore_Load_CleanMissIsNotDegraded(t *testing.T) {
	tr := newTiers()

	loaded, err := tr.store.Load(context.Background(), "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Nil(t, loaded.Snapshot)
	assert.False(t, loaded.Degraded)
}

func TestStore_Load_PrimaryMiss_ReadsFallback(t *testing.T) {
	// GIVEN: A snapshot written while the primary was absent
	// WHEN: The primary comes back empty
	// THEN: Load still finds the record in the blob tier

	tr := newTiers()
	ctx := context.Background()
	tr.primary.SetAbsent(true)
	_, err := tr.store.Save(ctx, sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)
	tr.primary.SetAbsent(false)

	loaded, err := tr.store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, loaded.Tier)
}

func TestStore_PrimaryWrite_RemovesFallbackCopy(t *testing.T) {
	// GIVEN: A snapshot saved to the blob tier while the primary was absent
	// WHEN: The primary comes back and the approved snapshot is saved again
	// THEN: Only the primary holds it, so a later primary fault never serves
	//       the old issued blob

	tr := newTiers()
	ctx := context.Background()
	tr.primary.SetAbsent(true)
	_, err := tr.store.Save(ctx, sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)
	require.Equal(t, 1, tr.blobs.Len())
	tr.primary.SetAbsent(false)

	res, err := tr.store.Save(ctx, approved(sampleSnapshot("w-1", 2024, 3)))
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, res.Tier)
	assert.Equal(t, 1, tr.primary.Len())
	assert.Equal(t, 0, tr.blobs.Len())

	tr.primary.FailWith(errors.New("connection reset"))
	loaded, err := tr.store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Nil(t, loaded.Snapshot)
	assert.True(t, loaded.Degraded)

	listed, err := tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestStore_PrimaryWrite_EvictionFailureKeepsSave(t *testing.T) {
	tr := newTiers()
	ctx := context.Background()
	tr.primary.SetAbsent(true)
	_, err := tr.store.Save(ctx, sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)
	tr.primary.SetAbsent(false)
	tr.blobs.FailWith(errors.New("throttled"))

	res, err := tr.store.Save(ctx, approved(sampleSnapshot("w-1", 2024, 3)))
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, res.Tier)

	loaded, err := tr.store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, loaded.Tier)
	assert.Equal(t, payroll.StatusApproved, loaded.Snapshot.Status)
}

func TestStore_InvalidInput(t *testing.T) {
	tr := newTiers()
	ctx := context.Background()

	_, err := tr.store.Load(ctx, "w-1", 2024, 0)
	assert.ErrorIs(t, err, payroll.ErrValidation)

	_, err = tr.store.Load(ctx, "w/1", 2024, 3)
	assert.ErrorIs(t, err, payroll.ErrValidation)

	_, err = tr.store.List(ctx, payroll.ListFilter{WorkerID: "."})
	assert.ErrorIs(t, err, payroll.ErrValidation)

	dot := sampleSnapshot(".", 2024, 3)
	_, err = tr.store.Save(ctx, dot)
	assert.ErrorIs(t, err, payroll.ErrValidation)
	assert.Equal(t, 0, tr.blobs.Len())

	bad := sampleSnapshot("w-1", 2024, 3)
	bad.Status = "draft"
	_, err = tr.store.Save(ctx, bad)
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

func TestStore_NoPrimaryConfigured(t *testing.T) {
	blobs := snapshot.NewMemoryBlob()
	store := snapshot.NewStore(nil, snapshot.NewBlobStorage(blobs, nil), nil)

	res, err := store.Save(context.Background(), sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, res.Tier)

	loaded, err := store.Load(context.Background(), "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, loaded.Tier)
}

// =============================================================================
// LIST
// =============================================================================

func TestStore_List_PrimaryFilters(t *testing.T) {
	tr := newTiers()
	ctx := context.Background()
	for _, s := range []payroll.MonthlySnapshot{
		sampleSnapshot("w-1", 2024, 1),
		approved(sampleSnapshot("w-1", 2024, 2)),
		sampleSnapshot("w-2", 2024, 2),
		sampleSnapshot("w-1", 2023, 12),
	} {
		_, err := tr.store.Save(ctx, s)
		require.NoError(t, err)
	}

	got, err := tr.store.List(ctx, payroll.ListFilter{Year: 2024, Month: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "w-1", got[0].WorkerID)
	assert.Equal(t, "w-2", got[1].WorkerID)

	got, err = tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1", Status: payroll.StatusIssued})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2024, got[0].Year)
	assert.Equal(t, 2023, got[1].Year)
}

func TestStore_List_FallbackNeedsWorker(t *testing.T) {
	tr := newTiers()
	ctx := context.Background()
	tr.primary.SetAbsent(true)
	for _, s := range []payroll.MonthlySnapshot{
		sampleSnapshot("w-1", 2024, 1),
		approved(sampleSnapshot("w-1", 2024, 2)),
		sampleSnapshot("w-1", 2024, 3),
		sampleSnapshot("w-2", 2024, 3),
	} {
		_, err := tr.store.Save(ctx, s)
		require.NoError(t, err)
	}

	got, err := tr.store.List(ctx, payroll.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Month)
	assert.Equal(t, 1, got[2].Month)

	got, err = tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1", Status: payroll.StatusApproved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Month)

	got, err = tr.store.List(ctx, payroll.ListFilter{WorkerID: "w-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Month)
}
