package uploadpipeline

import (
	"time"

	"github.com/google/uuid"
)

// FileStatus is the domain type for file lifecycle states.
type FileStatus string

// File status constants (typed). Transitions are one-directional:
// pending -> processing -> completed, with failed and quarantined as
// terminal escape states.
const (
	FileStatusPending     FileStatus = "pending"
	FileStatusProcessing  FileStatus = "processing"
	FileStatusCompleted   FileStatus = "completed"
	FileStatusFailed      FileStatus = "failed"
	FileStatusQuarantined FileStatus = "quarantined"
)

// Variant name constants.
const (
	VariantOriginal   = "original"
	VariantTranscoded = "transcoded"
)

// BucketClass distinguishes short-lived staging storage from tenant-durable
// permanent storage. The two classes use disjoint credentials even on the
// same provider.
type BucketClass string

const (
	BucketClassStaging   BucketClass = "staging"
	BucketClassPermanent BucketClass = "permanent"
)

// FileMetadata is the sole durable entity of the pipeline. The metadata
// store owns the authoritative Status field; BucketName/BucketKey/Provider
// track the current physical location and mutate as the file moves from
// staging to permanent storage.
type FileMetadata struct {
	ID               uuid.UUID     `json:"id"`
	TenantID         uuid.UUID     `json:"tenant_id"`
	OriginalFilename string        `json:"original_filename"`
	MimeType         string        `json:"mime_type"`
	BucketName       string        `json:"bucket_name"`
	BucketKey        string        `json:"bucket_key"`
	Provider         string        `json:"provider"`
	Status           string        `json:"status"`
	Variants         []FileVariant `json:"variants,omitempty"`
	OwnerService     string        `json:"owner_service,omitempty"`
	OwnerEntityID    string        `json:"owner_entity_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// FileVariant is one rendition of a processed file. Variants become visible
// atomically as part of the metadata update that records the permanent
// location; they are never partially visible mid-transform.
type FileVariant struct {
	Variant    string `json:"variant"`
	BucketName string `json:"bucket_name"`
	BucketKey  string `json:"bucket_key"`
	MimeType   string `json:"mime_type"`
	Provider   string `json:"provider"`
}

// ScanVerdict is the outcome of a virus scan.
type ScanVerdict string

const (
	VerdictClean       ScanVerdict = "clean"
	VerdictInfected    ScanVerdict = "infected"
	VerdictUnavailable ScanVerdict = "unavailable"
)

// ScanResult carries the verdict and, for infected files, the matched
// signature name.
type ScanResult struct {
	Verdict   ScanVerdict
	Signature string
}

// TransformResult is the output of a media transform pass: the processed
// bytes and their content-detected mime type.
type TransformResult struct {
	Data     []byte
	MimeType string
}
