// Package memory provides an in-memory object store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

var _ uploadpipeline.BlobStore = (*Store)(nil)

// Store is an in-memory implementation of uploadpipeline.BlobStore.
type Store struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
	types   map[string]string
}

// New creates a new in-memory store bound to a bucket name.
func New(bucket string) *Store {
	return &Store{
		bucket:  bucket,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *Store) PresignPut(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?op=put&expires=%d", s.bucket, objectKey, int(expires.Seconds())), nil
}

func (s *Store) PresignGet(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	url := fmt.Sprintf("memory://%s/%s?op=get", s.bucket, objectKey)
	if downloadFilename != "" {
		url += "&filename=" + downloadFilename
	}
	return url, nil
}

func (s *Store) Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
	s.types[objectKey] = contentType
	return nil
}

func (s *Store) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, exists := s.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("object not found: %s", objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Delete(ctx context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	delete(s.types, objectKey)
	return nil
}

func (s *Store) Exists(ctx context.Context, objectKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.objects[objectKey]
	return exists, nil
}

// Object returns the stored bytes and content type for a key. Test helper.
func (s *Store) Object(objectKey string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, exists := s.objects[objectKey]
	return data, s.types[objectKey], exists
}

// Len returns the number of stored objects. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
