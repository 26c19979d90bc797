package uploadpipeline

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the synchronous half of the upload pipeline: intake and
// finalization. Asynchronous processing is handled by Processor.
type Service interface {
	// RequestUpload validates an upload intent, allocates a file identity,
	// issues a write credential against staging storage and registers
	// pending metadata. No bytes move yet.
	RequestUpload(ctx context.Context, req RequestUploadRequest) (*RequestUploadResponse, error)

	// CompleteUpload confirms the staged object exists, flips metadata to
	// processing and enqueues the processing job. Idempotent by status
	// check: calling it again for a file already in flight or finalized
	// returns the current state without side effects.
	CompleteUpload(ctx context.Context, req CompleteUploadRequest) (*CompleteUploadResponse, error)

	// GetFileInfo returns the current lifecycle state and, when the file is
	// completed, a resolvable permanent URL.
	GetFileInfo(ctx context.Context, tenantID, fileID uuid.UUID) (*FileInfoResponse, error)
}
