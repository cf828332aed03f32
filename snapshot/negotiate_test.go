package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
)

func allColumnsExcept(skip ...string) []string {
	row, err := snapshot.EncodeRow(sampleSnapshot("w-1", 2024, 3))
	if err != nil {
		panic(err)
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	var cols []string
	for col := range row {
		if !skipped[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

func TestNegotiator_LearnsMissingOptionalColumnsOnce(t *testing.T) {
	// GIVEN: A primary schema created before approval columns existed
	// WHEN: Saving an approved snapshot twice
	// THEN: The first save learns both columns, the second does not retry them,
	//       and the approval fields round-trip through meta_note

	primary := snapshot.NewMemoryPrimary()
	primary.RestrictColumns(allColumnsExcept(snapshot.ColApprovedBy, snapshot.ColApprovedAt)...)
	storage := snapshot.NewPrimaryStorage(primary, nil)
	store := snapshot.NewStore(storage, snapshot.NewBlobStorage(snapshot.NewMemoryBlob(), nil), nil)
	ctx := context.Background()
	snap := approved(sampleSnapshot("w-1", 2024, 3))

	res, err := store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, payroll.TierPrimary, res.Tier)
	assert.Equal(t, []string{snapshot.ColApprovedAt, snapshot.ColApprovedBy}, storage.Negotiator().Unsupported())
	assert.Equal(t, 3, primary.Upserts(), "two rejected attempts, one accepted")

	_, err = store.Save(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 4, primary.Upserts(), "learned columns are not retried")

	loaded, err := store.Load(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.Equal(snap))
	assert.Equal(t, "mgr-7", loaded.Snapshot.ApprovedBy)
}

func TestNegotiator_MissingRequiredColumn_IsUnavailable(t *testing.T) {
	primary := snapshot.NewMemoryPrimary()
	primary.RestrictColumns(allColumnsExcept(snapshot.ColNetPay)...)
	blobs := snapshot.NewMemoryBlob()
	store := snapshot.NewStore(snapshot.NewPrimaryStorage(primary, nil), snapshot.NewBlobStorage(blobs, nil), nil)

	res, err := store.Save(context.Background(), sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)

	assert.Equal(t, payroll.TierFallback, res.Tier)
	assert.Equal(t, 0, primary.Len())
	assert.Equal(t, 1, blobs.Len())
}

func TestNegotiator_NilValuesAreNotNoted(t *testing.T) {
	// GIVEN: A schema without payment columns and an unpaid snapshot
	// THEN: The write succeeds and the row carries no meta_note

	primary := snapshot.NewMemoryPrimary()
	primary.RestrictColumns(allColumnsExcept(snapshot.ColPaidBy, snapshot.ColPaidAt)...)
	n := snapshot.NewNegotiator(primary, nil)
	ctx := context.Background()

	row, err := snapshot.EncodeRow(sampleSnapshot("w-1", 2024, 3))
	require.NoError(t, err)
	require.NoError(t, n.Upsert(ctx, row))

	stored, err := primary.Find(ctx, "w-1", 2024, 3)
	require.NoError(t, err)
	assert.NotContains(t, stored, snapshot.ColPaidAt)
	assert.Nil(t, stored[snapshot.ColMetaNote])
}
