package uploadpipeline_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
	metamemory "github.com/tendant/upload-pipeline/pkg/uploadpipeline/metastore/memory"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
	memorystorage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/memory"
)

// recordingQueue captures enqueued jobs for assertions.
type recordingQueue struct {
	jobs []queue.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Close() error { return nil }

type testEnv struct {
	service   uploadpipeline.Service
	metadata  *metamemory.Store
	staging   *memorystorage.Store
	permanent *memorystorage.Store
	queue     *recordingQueue
	tenantID  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	staging := memorystorage.New("staging-bucket")
	permanent := memorystorage.New("permanent-bucket")

	router := uploadpipeline.NewRouter()
	router.Register(uploadpipeline.StoreRoute{Provider: "memory", Class: uploadpipeline.BucketClassStaging},
		"staging-bucket", staging)
	router.Register(uploadpipeline.StoreRoute{Provider: "memory", Class: uploadpipeline.BucketClassPermanent},
		"permanent-bucket", permanent)

	metadata := metamemory.New()
	q := &recordingQueue{}

	svc, err := uploadpipeline.New(
		uploadpipeline.WithMetadataStore(metadata),
		uploadpipeline.WithRouter(router),
		uploadpipeline.WithQueue(q),
		uploadpipeline.WithProvider("memory"),
	)
	require.NoError(t, err)

	return &testEnv{
		service:   svc,
		metadata:  metadata,
		staging:   staging,
		permanent: permanent,
		queue:     q,
		tenantID:  uuid.New(),
	}
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []uploadpipeline.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []uploadpipeline.Option{},
			expectError: true,
		},
		{
			name: "missing provider should fail",
			options: []uploadpipeline.Option{
				uploadpipeline.WithMetadataStore(metamemory.New()),
				uploadpipeline.WithRouter(uploadpipeline.NewRouter()),
				uploadpipeline.WithQueue(&recordingQueue{}),
			},
			expectError: true,
		},
		{
			name: "all required options should succeed",
			options: []uploadpipeline.Option{
				uploadpipeline.WithMetadataStore(metamemory.New()),
				uploadpipeline.WithRouter(uploadpipeline.NewRouter()),
				uploadpipeline.WithQueue(&recordingQueue{}),
				uploadpipeline.WithProvider("memory"),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := uploadpipeline.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestRequestUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("issues credential and pending metadata", func(t *testing.T) {
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png",
			MimeType: "image/png",
			TenantID: env.tenantID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, resp.FileID)
		assert.Contains(t, resp.UploadURL, "staging-bucket")
		assert.Contains(t, resp.UploadURL, ".png")

		metadata, err := env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusPending), metadata.Status)
		assert.Equal(t, "photo.png", metadata.OriginalFilename)
		assert.Equal(t, "staging-bucket", metadata.BucketName)
		assert.Equal(t, "memory", metadata.Provider)
		assert.True(t, strings.HasSuffix(metadata.BucketKey, resp.FileID.String()+".png"))
	})

	t.Run("file IDs are time-ordered", func(t *testing.T) {
		first, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "a.jpg", MimeType: "image/jpeg", TenantID: env.tenantID,
		})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "b.jpg", MimeType: "image/jpeg", TenantID: env.tenantID,
		})
		require.NoError(t, err)
		assert.Less(t, first.FileID.String(), second.FileID.String())
	})

	t.Run("rejects unsupported mime type", func(t *testing.T) {
		_, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "a.out",
			MimeType: "application/x-executable",
			TenantID: env.tenantID,
		})
		assert.ErrorIs(t, err, uploadpipeline.ErrUnsupportedMediaType)
	})
}

func TestCompleteUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("transitions to processing and enqueues", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		metadata, err := env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		require.NoError(t, env.staging.Upload(ctx, metadata.BucketKey, strings.NewReader("data"), "image/png"))

		completed, err := env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: resp.FileID, TenantID: env.tenantID,
		})
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusProcessing), completed.Status)
		// The URL points at the projected permanent location.
		assert.Contains(t, completed.FileURL, "permanent-bucket")
		assert.Contains(t, completed.FileURL, ".jpg")

		require.Len(t, env.queue.jobs, 1)
		assert.Equal(t, resp.FileID, env.queue.jobs[0].FileID)
		assert.Equal(t, env.tenantID, env.queue.jobs[0].TenantID)

		metadata, err = env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusProcessing), metadata.Status)
	})

	t.Run("staged object missing", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		_, err = env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: resp.FileID, TenantID: env.tenantID,
		})
		assert.ErrorIs(t, err, uploadpipeline.ErrStagedObjectNotFound)

		metadata, err := env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusPending), metadata.Status)
		assert.Empty(t, env.queue.jobs)
	})

	t.Run("unknown file", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: uuid.New(), TenantID: env.tenantID,
		})
		assert.ErrorIs(t, err, uploadpipeline.ErrFileNotFound)
	})

	t.Run("wrong tenant", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		_, err = env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: resp.FileID, TenantID: uuid.New(),
		})
		assert.ErrorIs(t, err, uploadpipeline.ErrFileNotFound)
	})

	t.Run("repeat call is an idempotent no-op", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		metadata, err := env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		require.NoError(t, env.staging.Upload(ctx, metadata.BucketKey, strings.NewReader("data"), "image/png"))

		first, err := env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: resp.FileID, TenantID: env.tenantID,
		})
		require.NoError(t, err)

		second, err := env.service.CompleteUpload(ctx, uploadpipeline.CompleteUploadRequest{
			FileID: resp.FileID, TenantID: env.tenantID,
		})
		require.NoError(t, err)
		assert.Equal(t, first.Status, second.Status)
		assert.Len(t, env.queue.jobs, 1, "second call must not enqueue again")
	})
}

func TestGetFileInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("pending file has a projected URL", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		info, err := env.service.GetFileInfo(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusPending), info.Status)
		assert.Equal(t, "photo.png", info.FileName)
		assert.Contains(t, info.FileURL, "permanent-bucket")
	})

	t.Run("quarantined file has no URL", func(t *testing.T) {
		env := newTestEnv(t)
		resp, err := env.service.RequestUpload(ctx, uploadpipeline.RequestUploadRequest{
			FileName: "photo.png", MimeType: "image/png", TenantID: env.tenantID,
		})
		require.NoError(t, err)

		metadata, err := env.metadata.GetFileMetadataByID(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		metadata.Status = string(uploadpipeline.FileStatusQuarantined)
		require.NoError(t, env.metadata.UpdateFileMetadata(ctx, metadata))

		info, err := env.service.GetFileInfo(ctx, env.tenantID, resp.FileID)
		require.NoError(t, err)
		assert.Equal(t, string(uploadpipeline.FileStatusQuarantined), info.Status)
		assert.Empty(t, info.FileURL)
	})

	t.Run("unknown file", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.service.GetFileInfo(ctx, env.tenantID, uuid.New())
		assert.ErrorIs(t, err, uploadpipeline.ErrFileNotFound)
	})
}
