package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2024, time.April, 2, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, f *fixture, strict bool) (*payroll.Engine, *snapshot.MemoryPrimary, *snapshot.MemoryBlob) {
	primary := snapshot.NewMemoryPrimary()
	blobs := snapshot.NewMemoryBlob()
	repo := snapshot.NewStore(
		snapshot.NewPrimaryStorage(primary, nil),
		snapshot.NewBlobStorage(blobs, nil),
		nil,
	)

	cfg := payroll.DefaultEngineConfig()
	cfg.StrictLifecycle = strict
	cfg.TemplateVersion = "statement-2024"
	engine, err := payroll.NewEngine(f.records, f.workers, f.rates, repo, cfg)
	require.NoError(t, err)
	engine.WithClock(func() time.Time { return fixedNow })
	return engine, primary, blobs
}

func issueMarch(t *testing.T, engine *payroll.Engine) *payroll.MonthlySnapshot {
	t.Helper()
	snap, _, err := engine.Issue(context.Background(), "w-1", 2024, 3, "hr-1")
	require.NoError(t, err)
	return snap
}

// =============================================================================
// FORWARD TRANSITIONS
// =============================================================================

func TestLifecycle_ApproveThenPay_KeepsApprovalFields(t *testing.T) {
	// GIVEN: An issued March snapshot
	// WHEN: Approving it, then paying it
	// THEN: Status is paid and approver id/timestamp from the first call remain

	f := newFixture(t)
	f.records.Add(payroll.DaysRecord("w-1", date(2024, time.March, 4), dec("1")))
	engine, _, _ := newTestEngine(t, f, true)
	ctx := context.Background()
	issueMarch(t, engine)

	approved, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, approved.Status)

	paid, err := engine.PaySnapshot(ctx, "w-1", 2024, 3, "acct-3")
	require.NoError(t, err)

	loaded, err := engine.LoadSnapshot(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.Equal(*paid))

	got := loaded.Snapshot
	assert.Equal(t, payroll.StatusPaid, got.Status)
	assert.Equal(t, "mgr-7", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(fixedNow))
	assert.Equal(t, "acct-3", got.PaidBy)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, "hr-1", got.IssuedBy)
	assert.True(t, got.NetPay.Equal(dec("145050")))
}

// =============================================================================
// STRICT MODE
// =============================================================================

func TestLifecycle_Strict_RejectsOutOfOrder(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)
	ctx := context.Background()
	issueMarch(t, engine)

	// Pay before approve
	_, err := engine.PaySnapshot(ctx, "w-1", 2024, 3, "acct-3")
	var invalid *payroll.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, payroll.StatusIssued, invalid.From)
	assert.Equal(t, payroll.StatusPaid, invalid.To)

	// Approve twice
	_, err = engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	_, err = engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-8")
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	// Approve after paid
	_, err = engine.PaySnapshot(ctx, "w-1", 2024, 3, "acct-3")
	require.NoError(t, err)
	_, err = engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	loaded, _ := engine.LoadSnapshot(ctx, "w-1", 2024, 3)
	assert.Equal(t, payroll.StatusPaid, loaded.Snapshot.Status)
	assert.Equal(t, "mgr-7", loaded.Snapshot.ApprovedBy, "rejected transition must not write")
}

// =============================================================================
// PERMISSIVE MODE
// =============================================================================

func TestLifecycle_Permissive_AllowsAnyOrder(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, false)
	ctx := context.Background()
	issueMarch(t, engine)

	paid, err := engine.PaySnapshot(ctx, "w-1", 2024, 3, "acct-3")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPaid, paid.Status)

	back, err := engine.ApproveSnapshot(ctx, "w-1", 2024, 3, "mgr-7")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, back.Status)
	assert.Equal(t, "acct-3", back.PaidBy, "earlier lifecycle fields are kept")
}

// =============================================================================
// ERRORS
// =============================================================================

func TestLifecycle_MissingSnapshot_NotFound(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)

	_, err := engine.ApproveSnapshot(context.Background(), "w-1", 2023, 12, "mgr-7")

	var nf *payroll.SnapshotNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 2023, nf.Year)
	assert.Equal(t, 12, nf.Month)
	assert.True(t, payroll.IsNotFound(err))
}

func TestLifecycle_EmptyActor_Rejected(t *testing.T) {
	f := newFixture(t)
	engine, _, _ := newTestEngine(t, f, true)
	issueMarch(t, engine)

	_, err := engine.ApproveSnapshot(context.Background(), "w-1", 2024, 3, "  ")
	assert.ErrorIs(t, err, payroll.ErrValidation)
}
