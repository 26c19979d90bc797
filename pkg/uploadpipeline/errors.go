package uploadpipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrFileNotFound indicates file metadata was not found
	ErrFileNotFound = errors.New("file metadata not found")

	// ErrStagedObjectNotFound indicates the client has not finished uploading
	// to the staging bucket (distinct from metadata-not-found)
	ErrStagedObjectNotFound = errors.New("staged object not found")

	// ErrUnsupportedMediaType indicates a mime type with no known extension mapping
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidFileStatus indicates an unknown file status value
	ErrInvalidFileStatus = errors.New("invalid file status")

	// ErrStoreNotFound indicates no storage client is registered for a route
	ErrStoreNotFound = errors.New("no storage client registered for route")

	// ErrIntegrityMismatch indicates the transformed output is not an accepted
	// derivative of the declared input type (spoofed or corrupt input)
	ErrIntegrityMismatch = errors.New("content does not match declared type")

	// ErrScannerUnavailable indicates the virus scanner could not produce a verdict
	ErrScannerUnavailable = errors.New("virus scanner unavailable")
)

// FileError represents an error related to file operations
type FileError struct {
	FileID uuid.UUID
	Op     string
	Err    error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file operation %s failed for file %s: %v", e.Op, e.FileID, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to object storage operations
type StorageError struct {
	Provider string
	Bucket   string
	Key      string
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in bucket %s (provider %s): %v",
		e.Op, e.Key, e.Bucket, e.Provider, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
