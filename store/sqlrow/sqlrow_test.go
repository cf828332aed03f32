package sqlrow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
	"github.com/warp/wage-engine/store/sqlrow"
)

func TestUpsert_ConflictOnCompoundKey(t *testing.T) {
	row := snapshot.Row{"worker_id": "w-1", "year": int64(2024), "month": int64(3), "status": "issued"}

	query, args, err := sqlrow.Upsert(row, sqlrow.Dollar)
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO monthly_snapshots (month, status, worker_id, year) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT(worker_id, year, month) DO UPDATE SET status = excluded.status",
		query)
	assert.Equal(t, []any{int64(3), "issued", "w-1", int64(2024)}, args)
}

func TestUpsert_RejectsOddColumnNames(t *testing.T) {
	_, _, err := sqlrow.Upsert(snapshot.Row{"worker_id; DROP TABLE x": "w"}, sqlrow.Question)
	assert.Error(t, err)
}

func TestQuery_Filters(t *testing.T) {
	query, args := sqlrow.Query(payroll.ListFilter{WorkerID: "w-1", Status: payroll.StatusPaid, Limit: 5}, sqlrow.Question)

	assert.Equal(t,
		"SELECT * FROM monthly_snapshots WHERE worker_id = ? AND status = ? ORDER BY year DESC, month DESC, worker_id ASC LIMIT ?",
		query)
	assert.Equal(t, []any{"w-1", "paid", 5}, args)

	query, args = sqlrow.Query(payroll.ListFilter{}, sqlrow.Dollar)
	assert.Equal(t, "SELECT * FROM monthly_snapshots ORDER BY year DESC, month DESC, worker_id ASC LIMIT $1", query)
	assert.Equal(t, []any{payroll.DefaultListLimit}, args)
}
