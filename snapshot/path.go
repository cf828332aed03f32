package snapshot

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/warp/wage-engine/payroll"
)

// BlobExtension is the fixed extension of snapshot blobs.
const BlobExtension = ".json"

// BlobPath is the deterministic location of a snapshot blob:
// {workerID}/{year}-{MM}.json
func BlobPath(workerID string, year, month int) string {
	return fmt.Sprintf("%s/%04d-%02d%s", workerID, year, month, BlobExtension)
}

// BlobPrefix is the directory holding every blob of a worker.
func BlobPrefix(workerID string) string {
	return workerID + "/"
}

// ParseBlobPath is the inverse of BlobPath.
func ParseBlobPath(p string) (payroll.SnapshotKey, bool) {
	dir, file := path.Split(p)
	workerID := strings.TrimSuffix(dir, "/")
	if workerID == "" || strings.Contains(workerID, "/") || !strings.HasSuffix(file, BlobExtension) {
		return payroll.SnapshotKey{}, false
	}
	label := strings.TrimSuffix(file, BlobExtension)
	yearPart, monthPart, ok := strings.Cut(label, "-")
	if !ok || len(monthPart) != 2 {
		return payroll.SnapshotKey{}, false
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return payroll.SnapshotKey{}, false
	}
	month, err := strconv.Atoi(monthPart)
	if err != nil || payroll.ValidatePeriod(year, month) != nil {
		return payroll.SnapshotKey{}, false
	}
	return payroll.SnapshotKey{WorkerID: workerID, Year: year, Month: month}, true
}
