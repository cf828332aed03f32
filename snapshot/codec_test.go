package snapshot_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/snapshot"
)

func TestRowCodec_DriverValueShapes(t *testing.T) {
	// GIVEN: A row as a database driver hands it back ([]byte text, int32 ints)
	// THEN: It decodes to the same snapshot

	snap := approved(sampleSnapshot("w-1", 2024, 3))
	row, err := snapshot.EncodeRow(snap)
	require.NoError(t, err)

	for col, v := range row {
		switch val := v.(type) {
		case string:
			row[col] = []byte(val)
		case int64:
			row[col] = int32(val)
		}
	}

	got, err := snapshot.DecodeRow(row)
	require.NoError(t, err)
	assert.True(t, got.Equal(snap))
}

func TestRowCodec_RejectsFutureSchemaVersion(t *testing.T) {
	snap := sampleSnapshot("w-1", 2024, 3)
	snap.SchemaVersion = payroll.SchemaVersion + 1
	row, err := snapshot.EncodeRow(snap)
	require.NoError(t, err)

	_, err = snapshot.DecodeRow(row)
	assert.ErrorContains(t, err, "unsupported schema version")
}

func TestBlobCodec_SelfDescribing(t *testing.T) {
	snap := approved(sampleSnapshot("w-1", 2024, 3))

	data, err := snapshot.MarshalBlob(snap)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "monthly_snapshot", doc["kind"])
	assert.EqualValues(t, payroll.SchemaVersion, doc["schema_version"])
	assert.Equal(t, "statement-2024", doc["template_version"])
	assert.Equal(t, "344494", doc["net_pay"])

	got, err := snapshot.UnmarshalBlob(data)
	require.NoError(t, err)
	assert.True(t, got.Equal(snap))
}

func TestBlobCodec_RejectsForeignDocuments(t *testing.T) {
	_, err := snapshot.UnmarshalBlob([]byte(`{"kind":"invoice","worker_id":"w-1"}`))
	assert.Error(t, err)

	_, err = snapshot.UnmarshalBlob([]byte(`not json`))
	assert.Error(t, err)
}

func TestBlobPath_RoundTrip(t *testing.T) {
	p := snapshot.BlobPath("w-1", 2024, 3)
	assert.Equal(t, "w-1/2024-03.json", p)

	key, ok := snapshot.ParseBlobPath(p)
	require.True(t, ok)
	assert.Equal(t, payroll.SnapshotKey{WorkerID: "w-1", Year: 2024, Month: 3}, key)

	for _, bad := range []string{"w-1/2024-13.json", "w-1/2024-3.json", "2024-03.json", "w-1/notes.txt", "a/b/2024-03.json"} {
		_, ok := snapshot.ParseBlobPath(bad)
		assert.False(t, ok, bad)
	}
}
