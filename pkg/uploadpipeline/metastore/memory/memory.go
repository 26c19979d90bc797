// Package memory provides an in-memory file metadata store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

// Store implements uploadpipeline.MetadataStore using in-memory storage.
type Store struct {
	mu    sync.RWMutex
	files map[uuid.UUID]*uploadpipeline.FileMetadata
}

// New creates a new in-memory metadata store.
func New() *Store {
	return &Store{
		files: make(map[uuid.UUID]*uploadpipeline.FileMetadata),
	}
}

func (s *Store) CreateFileMetadata(ctx context.Context, metadata *uploadpipeline.FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid external modifications
	metadataCopy := cloneMetadata(metadata)
	if metadataCopy.CreatedAt.IsZero() {
		metadataCopy.CreatedAt = time.Now().UTC()
	}
	s.files[metadata.ID] = metadataCopy
	return nil
}

func (s *Store) GetFileMetadataByID(ctx context.Context, tenantID, fileID uuid.UUID) (*uploadpipeline.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metadata, exists := s.files[fileID]
	if !exists || metadata.TenantID != tenantID {
		return nil, uploadpipeline.ErrFileNotFound
	}
	return cloneMetadata(metadata), nil
}

func (s *Store) UpdateFileMetadata(ctx context.Context, metadata *uploadpipeline.FileMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[metadata.ID]; !exists {
		return uploadpipeline.ErrFileNotFound
	}
	s.files[metadata.ID] = cloneMetadata(metadata)
	return nil
}

func cloneMetadata(metadata *uploadpipeline.FileMetadata) *uploadpipeline.FileMetadata {
	metadataCopy := *metadata
	if metadata.Variants != nil {
		metadataCopy.Variants = make([]uploadpipeline.FileVariant, len(metadata.Variants))
		copy(metadataCopy.Variants, metadata.Variants)
	}
	return &metadataCopy
}
