package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// ISSUANCE
// =============================================================================

func TestEngine_Issue_WritesIssuedSnapshotToPrimary(t *testing.T) {
	f := newFixture(t)
	f.records.Add(
		payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")),
		payroll.HoursRecord("w-1", date(2024, time.March, 5), dec("10")),
	)
	engine, primary, blobs := newTestEngine(t, f, true)

	snap, res, err := engine.Issue(context.Background(), "w-1", 2024, 3, "hr-1")
	require.NoError(t, err)

	assert.Equal(t, payroll.TierPrimary, res.Tier)
	assert.True(t, res.Success)
	assert.Equal(t, 1, primary.Len())
	assert.Equal(t, 0, blobs.Len())

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, payroll.StatusIssued, snap.Status)
	assert.Equal(t, "2024-03", snap.PeriodLabel)
	assert.Equal(t, payroll.SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, "statement-2024", snap.TemplateVersion)
	assert.True(t, snap.IssuedAt.Equal(fixedNow))
	assert.Equal(t, 2, snap.Workdays)
	assert.True(t, snap.GrossPay.Equal(dec("356250")), "gross %s", snap.GrossPay)
	assert.True(t, snap.DailyRate.Equal(dec("150000")))
	assert.Equal(t, "daily", snap.Classification)
}

func TestEngine_Issue_NoDailyRate_WritesNothing(t *testing.T) {
	// GIVEN: A worker with labor records but no daily rate configured
	// WHEN: Issuing the month
	// THEN: MissingRateConfigurationError, and neither tier holds anything

	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-norate", date(2024, time.March, 4), dec("1")))
	engine, primary, blobs := newTestEngine(t, f, true)

	snap, _, err := engine.Issue(context.Background(), "w-norate", 2024, 3, "hr-1")

	assert.Nil(t, snap)
	assert.ErrorIs(t, err, payroll.ErrMissingRateConfiguration)
	assert.Equal(t, 0, primary.Upserts())
	assert.Equal(t, 0, blobs.Len())

	loaded, err := engine.LoadSnapshot(context.Background(), "w-norate", 2024, 3)
	require.NoError(t, err)
	assert.Nil(t, loaded.Snapshot)
}

func TestEngine_Issue_ZeroRecords_ZeroSnapshot(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)

	snap, _, err := engine.Issue(context.Background(), "w-1", 2024, 2, "hr-1")
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Workdays)
	assert.True(t, snap.GrossPay.IsZero())
	assert.True(t, snap.NetPay.IsZero())
	assert.True(t, snap.TotalDeductions.IsZero())
	assert.True(t, snap.TotalLaborDays.IsZero())
}

func TestEngine_Reissue_ReplacesCurrentSnapshot(t *testing.T) {
	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")))
	engine, primary, _ := newTestEngine(t, f, true)
	ctx := context.Background()

	first := issueMarch(t, engine)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 5), dec("1")))
	second := issueMarch(t, engine)

	assert.Equal(t, 1, primary.Len())
	assert.NotEqual(t, first.ID, second.ID)

	loaded, err := engine.LoadSnapshot(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, second.ID, loaded.Snapshot.ID)
	assert.Equal(t, 2, loaded.Snapshot.Workdays)
}

func TestEngine_Reissue_AfterPayment_Conflict(t *testing.T) {
	// GIVEN: A March snapshot that was approved and paid
	// WHEN: Issuing March again
	// THEN: InvalidTransitionError, and the paid snapshot is untouched

	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")))
	engine, primary, _ := newTestEngine(t, f, true)
	ctx := context.Background()
	issued := issueMarch(t, engine)
	_, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	_, err = engine.PaySnapshot(ctx, "w-1", 2024, 3, "acct-3")
	require.NoError(t, err)
	upserts := primary.Upserts()

	snap, _, err := engine.Issue(ctx, "w-1", 2024, 3, "hr-1")

	assert.Nil(t, snap)
	var invalid *payroll.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, payroll.StatusPaid, invalid.From)
	assert.Equal(t, payroll.StatusIssued, invalid.To)
	assert.True(t, payroll.IsConflict(err))
	assert.Equal(t, upserts, primary.Upserts())

	loaded, err := engine.LoadSnapshot(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, loaded.Snapshot.ID)
	assert.Equal(t, payroll.StatusPaid, loaded.Snapshot.Status)
	assert.Equal(t, "acct-3", loaded.Snapshot.PaidBy)
	assert.NotNil(t, loaded.Snapshot.PaidAt)
}

func TestEngine_Reissue_Permissive_Replaces(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, false)
	ctx := context.Background()
	issueMarch(t, engine)
	_, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)

	again := issueMarch(t, engine)
	assert.Equal(t, payroll.StatusIssued, again.Status)
	assert.Empty(t, again.ApprovedBy)
}

func TestEngine_Reissue_UnreadableStorage_Refuses(t *testing.T) {
	// GIVEN: An approved snapshot in the primary tier, which then starts failing
	// WHEN: Issuing the same period
	// THEN: The engine cannot see the current state and writes nothing

	f := newFixture(t)
	engine, primary, blobs := newTestEngine(t, f, true)
	ctx := context.Background()
	issueMarch(t, engine)
	_, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	primary.FailWith(errors.New("connection reset"))

	_, _, err = engine.Issue(ctx, "w-1", 2024, 3, "hr-1")

	assert.ErrorIs(t, err, payroll.ErrSnapshotStateUnknown)
	assert.Equal(t, 0, blobs.Len())
}

func TestEngine_ApproveAfterPrimaryReturns_MovesRecordToPrimary(t *testing.T) {
	// GIVEN: A snapshot issued while the primary relation was missing
	// WHEN: The primary is provisioned and the snapshot approved
	// THEN: The record lives only in the primary; a later primary fault
	//       does not resurrect the issued copy

	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")))
	engine, primary, blobs := newTestEngine(t, f, true)
	ctx := context.Background()
	primary.SetAbsent(true)
	issueMarch(t, engine)
	require.Equal(t, 1, blobs.Len())
	primary.SetAbsent(false)

	_, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Len())
	assert.Equal(t, 0, blobs.Len())

	primary.FailWith(errors.New("connection reset"))
	loaded, err := engine.LoadSnapshot(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Nil(t, loaded.Snapshot)
	assert.True(t, loaded.Degraded)
}

func TestEngine_Issue_PrimaryAbsent_FallsBackToBlob(t *testing.T) {
	// GIVEN: The primary relation is not provisioned
	// WHEN: Issuing, then loading
	// THEN: The blob tier receives the write and serves the read

	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")))
	engine, primary, blobs := newTestEngine(t, f, true)
	primary.SetAbsent(true)

	snap, res, err := engine.Issue(context.Background(), "w-1", 2024, 3, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, res.Tier)
	assert.Equal(t, 1, blobs.Len())

	loaded, err := engine.LoadSnapshot(context.Background(), "w-1", 2024, 3)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierFallback, loaded.Tier)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.Equal(*snap))
}

func TestEngine_Issue_RequiresIssuer(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)

	_, _, err := engine.Issue(context.Background(), "w-1", 2024, 3, "")
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

// =============================================================================
// AD HOC DAILY
// =============================================================================

func TestEngine_ComputeDaily_UsesWorkerProfile(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)

	rec := payroll.DaysRecord("", date(2024, time.March, 4), dec("1"))
	got, err := engine.ComputeDaily(context.Background(), rec, "w-1")
	require.NoError(t, err)

	assert.True(t, got.NetPay.Equal(dec("145050")))
}

func TestEngine_ComputeDaily_UnknownWorker(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)

	_, err := engine.ComputeDaily(context.Background(), payroll.DaysRecord("", date(2024, time.March, 4), dec("1")), "ghost")
	assert.ErrorIs(t, err, payroll.ErrMissingRateConfiguration)
}

func TestEngine_DailyBreakdown_OnlyThatDate(t *testing.T) {
	f := newFixture(t)
	f.records.Add(
		payroll.HoursRecord("w-1", date(2024, time.March, 4), dec("10")),
		payroll.DaysRecord("w-1", date(2024, time.March, 5), dec("1")),
	)
	engine, _, _ := newTestEngine(t, f, true)

	got, err := engine.DailyBreakdown(context.Background(), "w-1", time.Date(2024, time.March, 4, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.True(t, got[0].GrossPay.Equal(dec("206250")))
}

func TestEngine_DailyBreakdown_MatchesMonthOnRateChange(t *testing.T) {
	// GIVEN: Income tax raised to 10% on 2024-03-15 and one record on 03-20
	// WHEN: Computing the day ad hoc and aggregating March
	// THEN: Both use the rate set in force on March 1, so they agree

	f := newFixture(t)
	f.rates.Set("daily", date(2024, time.March, 15), map[string]decimal.Decimal{"income_tax": dec("10")})
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 20), dec("1")))
	engine, _, _ := newTestEngine(t, f, true)
	ctx := context.Background()

	days, err := engine.DailyBreakdown(ctx, "w-1", date(2024, time.March, 20))
	require.NoError(t, err)
	require.Len(t, days, 1)
	month, err := engine.AggregateMonth(ctx, "w-1", 2024, 3)
	require.NoError(t, err)

	assert.True(t, days[0].TotalDeductions.Equal(dec("4950")), "daily deductions %s", days[0].TotalDeductions)
	assert.True(t, days[0].TotalDeductions.Equal(month.TotalDeductions))
	assert.True(t, days[0].NetPay.Equal(month.NetPay))
}

// =============================================================================
// LISTING
// =============================================================================

func TestEngine_ListSnapshots_NewestFirstWithLimit(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)
	ctx := context.Background()

	for _, month := range []int{1, 2, 3} {
		_, _, err := engine.Issue(ctx, "w-1", 2024, month, "hr-1")
		require.NoError(t, err)
	}

	got, err := engine.ListSnapshots(ctx, payroll.ListFilter{WorkerID: "w-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Month)
	assert.Equal(t, 2, got[1].Month)
}
