package uploadpipeline

import "github.com/google/uuid"

// Request/Response DTOs

// RequestUploadRequest contains parameters for registering an upload intent.
// OwnerService/OwnerEntityID are an opaque back-reference to the domain
// object this file belongs to; the pipeline never dereferences them.
type RequestUploadRequest struct {
	FileName      string
	MimeType      string
	OwnerService  string
	OwnerEntityID string
	TenantID      uuid.UUID
}

// RequestUploadResponse carries the allocated file identity and the
// time-boxed write credential against staging storage.
type RequestUploadResponse struct {
	FileID    uuid.UUID
	UploadURL string
}

// CompleteUploadRequest contains parameters for finalizing an upload.
type CompleteUploadRequest struct {
	FileID   uuid.UUID
	TenantID uuid.UUID
}

// CompleteUploadResponse carries the prospective permanent URL and the
// just-set status. The URL resolves only once the worker completes; this is
// a documented eventual-consistency contract.
type CompleteUploadResponse struct {
	FileURL string
	Status  string
}

// FileInfoResponse carries the current lifecycle state of a file.
type FileInfoResponse struct {
	FileID   uuid.UUID
	FileName string
	MimeType string
	Status   string
	FileURL  string
	Variants []FileVariant
}
