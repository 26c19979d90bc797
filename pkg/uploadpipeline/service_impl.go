package uploadpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/objectkey"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
)

// service implements the Service interface
type service struct {
	metadata   MetadataStore
	router     *Router
	queue      queue.Queue
	provider   string
	presignTTL time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithMetadataStore sets the file metadata store
func WithMetadataStore(store MetadataStore) Option {
	return func(s *service) {
		s.metadata = store
	}
}

// WithRouter sets the storage routing table
func WithRouter(router *Router) Option {
	return func(s *service) {
		s.router = router
	}
}

// WithQueue sets the processing job queue
func WithQueue(q queue.Queue) Option {
	return func(s *service) {
		s.queue = q
	}
}

// WithProvider sets the storage provider new uploads are routed to
func WithProvider(provider string) Option {
	return func(s *service) {
		s.provider = provider
	}
}

// WithPresignTTL sets the lifetime of issued write credentials
func WithPresignTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.presignTTL = ttl
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		presignTTL: time.Hour,
	}

	for _, option := range options {
		option(s)
	}

	if s.metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if s.router == nil {
		return nil, fmt.Errorf("storage router is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if s.provider == "" {
		return nil, fmt.Errorf("storage provider is required")
	}

	return s, nil
}

// RequestUpload validates the intent, allocates a UUIDv7 identity, presigns
// a staging write credential and registers pending metadata. The credential
// is created before the metadata row; if the row cannot be persisted the URL
// is never returned to the caller.
func (s *service) RequestUpload(ctx context.Context, req RequestUploadRequest) (*RequestUploadResponse, error) {
	ext, err := ExtensionForMime(req.MimeType)
	if err != nil {
		return nil, err
	}

	fileID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("allocate file id: %w", err)
	}

	staging, err := s.router.Resolve(s.provider, BucketClassStaging)
	if err != nil {
		return nil, err
	}

	key := objectkey.ForFile(fileID, ext)
	uploadURL, err := staging.Store.PresignPut(ctx, key, s.presignTTL)
	if err != nil {
		return nil, &StorageError{
			Provider: s.provider,
			Bucket:   staging.Bucket,
			Key:      key,
			Op:       "presign_put",
			Err:      err,
		}
	}

	now := time.Now().UTC()
	metadata := &FileMetadata{
		ID:               fileID,
		TenantID:         req.TenantID,
		OriginalFilename: req.FileName,
		MimeType:         req.MimeType,
		BucketName:       staging.Bucket,
		BucketKey:        key,
		Provider:         s.provider,
		Status:           string(FileStatusPending),
		OwnerService:     req.OwnerService,
		OwnerEntityID:    req.OwnerEntityID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.metadata.CreateFileMetadata(ctx, metadata); err != nil {
		return nil, &FileError{FileID: fileID, Op: "request_upload", Err: err}
	}

	return &RequestUploadResponse{
		FileID:    fileID,
		UploadURL: uploadURL,
	}, nil
}

// CompleteUpload verifies the staged object exists, transitions metadata to
// processing and enqueues the job. Calls for files past pending return the
// current state unchanged.
func (s *service) CompleteUpload(ctx context.Context, req CompleteUploadRequest) (*CompleteUploadResponse, error) {
	metadata, err := s.metadata.GetFileMetadataByID(ctx, req.TenantID, req.FileID)
	if err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "complete_upload", Err: err}
	}

	ok, err := canBeginProcessing(metadata.Status)
	if err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "complete_upload", Err: err}
	}
	if !ok {
		// A quarantined file has no usable URL.
		if metadata.Status == string(FileStatusQuarantined) {
			return &CompleteUploadResponse{Status: metadata.Status}, nil
		}
		url, err := s.fileURL(ctx, metadata)
		if err != nil {
			return nil, err
		}
		return &CompleteUploadResponse{FileURL: url, Status: metadata.Status}, nil
	}

	staging, err := s.router.Resolve(metadata.Provider, BucketClassStaging)
	if err != nil {
		return nil, err
	}
	exists, err := staging.Store.Exists(ctx, metadata.BucketKey)
	if err != nil {
		return nil, &StorageError{
			Provider: metadata.Provider,
			Bucket:   staging.Bucket,
			Key:      metadata.BucketKey,
			Op:       "exists",
			Err:      err,
		}
	}
	if !exists {
		return nil, &FileError{FileID: req.FileID, Op: "complete_upload", Err: ErrStagedObjectNotFound}
	}

	metadata.Status = string(FileStatusProcessing)
	metadata.UpdatedAt = time.Now().UTC()
	if err := s.metadata.UpdateFileMetadata(ctx, metadata); err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "complete_upload", Err: err}
	}

	if err := s.queue.Enqueue(ctx, queue.Job{FileID: req.FileID, TenantID: req.TenantID}); err != nil {
		return nil, &FileError{FileID: req.FileID, Op: "enqueue_processing", Err: err}
	}

	url, err := s.fileURL(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return &CompleteUploadResponse{FileURL: url, Status: metadata.Status}, nil
}

func (s *service) GetFileInfo(ctx context.Context, tenantID, fileID uuid.UUID) (*FileInfoResponse, error) {
	metadata, err := s.metadata.GetFileMetadataByID(ctx, tenantID, fileID)
	if err != nil {
		return nil, &FileError{FileID: fileID, Op: "get_file_info", Err: err}
	}

	info := &FileInfoResponse{
		FileID:   metadata.ID,
		FileName: metadata.OriginalFilename,
		MimeType: metadata.MimeType,
		Status:   metadata.Status,
		Variants: metadata.Variants,
	}

	// A quarantined file has no usable URL.
	if metadata.Status == string(FileStatusQuarantined) {
		return info, nil
	}
	url, err := s.fileURL(ctx, metadata)
	if err != nil {
		return nil, err
	}
	info.FileURL = url
	return info, nil
}

// fileURL returns a presigned read URL for the file's permanent location.
// Before the worker finishes, the location is a projection of the mime type
// specific output format; the URL resolves only after completion.
func (s *service) fileURL(ctx context.Context, metadata *FileMetadata) (string, error) {
	outMime := ProjectedMimeType(metadata.MimeType)
	key := metadata.BucketKey
	if metadata.Status != string(FileStatusCompleted) {
		ext, err := ExtensionForMime(outMime)
		if err != nil {
			return "", &FileError{FileID: metadata.ID, Op: "project_url", Err: err}
		}
		key = objectkey.ForFile(metadata.ID, ext)
	}

	permanent, err := s.router.ResolvePermanent(metadata.Provider, outMime)
	if err != nil {
		return "", err
	}
	url, err := permanent.Store.PresignGet(ctx, key, metadata.OriginalFilename)
	if err != nil {
		return "", &StorageError{
			Provider: metadata.Provider,
			Bucket:   permanent.Bucket,
			Key:      key,
			Op:       "presign_get",
			Err:      err,
		}
	}
	return url, nil
}
