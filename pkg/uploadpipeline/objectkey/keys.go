// Package objectkey derives storage keys from file identifiers.
//
// Keys are time-partitioned at hour granularity using the creation timestamp
// embedded in the UUIDv7 file ID. This bounds directory fan-out and keeps
// objects roughly time-ordered within a bucket:
//
//	2026/09/01/14/0191e2a8-....-....-....-............jpg
package objectkey

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ForFile returns the storage key for a file ID and extension:
// {YYYY}/{MM}/{DD}/{HH}/{fileID}.{extension}.
func ForFile(fileID uuid.UUID, extension string) string {
	t := PartitionTime(fileID)
	return fmt.Sprintf("%04d/%02d/%02d/%02d/%s.%s",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), fileID, extension)
}

// PartitionTime returns the creation timestamp embedded in a time-ordered
// UUID. IDs without an embedded timestamp partition by current time.
func PartitionTime(fileID uuid.UUID) time.Time {
	switch fileID.Version() {
	case 1, 6, 7:
		sec, nsec := fileID.Time().UnixTime()
		return time.Unix(sec, nsec).UTC()
	default:
		return time.Now().UTC()
	}
}
