package uploadpipeline

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the capability surface over one storage bucket. Each
// handle is bound to a single bucket with its own credentials; staging and
// permanent buckets never share a handle.
type BlobStore interface {
	// PresignPut returns a time-boxed, write-only URL for the given key
	PresignPut(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// PresignGet returns a time-boxed read URL; downloadFilename, when
	// non-empty, sets the content disposition
	PresignGet(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// Upload writes content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) error

	// Download reads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes content
	Delete(ctx context.Context, objectKey string) error

	// Exists reports whether an object is present (head request)
	Exists(ctx context.Context, objectKey string) (bool, error)
}

// MetadataStore defines the interface to the durable file metadata record.
// All operations are tenant-scoped and idempotent on the file ID.
type MetadataStore interface {
	CreateFileMetadata(ctx context.Context, metadata *FileMetadata) error
	GetFileMetadataByID(ctx context.Context, tenantID, fileID uuid.UUID) (*FileMetadata, error)
	UpdateFileMetadata(ctx context.Context, metadata *FileMetadata) error
}

// Scanner scans a byte buffer for malware.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (ScanResult, error)
}

// MediaTransformer converts a buffer into its normalized permanent format.
// A transform error is not fatal to the pipeline: the worker falls back to
// the original bytes with a content-sniffed mime type.
type MediaTransformer interface {
	Transform(ctx context.Context, data []byte, declaredMime string) (TransformResult, error)
}
