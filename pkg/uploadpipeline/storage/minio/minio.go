// Package minio implements the object store capability on MinIO using its
// native client.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

var _ uploadpipeline.BlobStore = (*Backend)(nil)

// Backend is a MinIO implementation of uploadpipeline.BlobStore.
type Backend struct {
	client *minio.Client
	bucket string
}

// New creates a new MinIO storage backend.
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Backend{client: client, bucket: config.Bucket}, nil
}

func (b *Backend) PresignPut(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	u, err := b.client.PresignedPutObject(ctx, b.bucket, objectKey, expires)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned upload URL: %w", err)
	}
	return u.String(), nil
}

func (b *Backend) PresignGet(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	params := url.Values{}
	if downloadFilename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=\"%s\"", downloadFilename))
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, objectKey, time.Hour, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return u.String(), nil
}

func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, objectKey, reader, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return nil
}

func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from MinIO: %w", err)
	}
	return object, nil
}

func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}
