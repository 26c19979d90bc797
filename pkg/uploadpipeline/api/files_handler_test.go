package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
	metamemory "github.com/tendant/upload-pipeline/pkg/uploadpipeline/metastore/memory"
	"github.com/tendant/upload-pipeline/pkg/uploadpipeline/queue"
	memorystorage "github.com/tendant/upload-pipeline/pkg/uploadpipeline/storage/memory"
)

func newTestHandler(t *testing.T) (*FilesHandler, *memorystorage.Store, *metamemory.Store) {
	t.Helper()

	staging := memorystorage.New("staging-bucket")
	permanent := memorystorage.New("permanent-bucket")

	router := uploadpipeline.NewRouter()
	router.Register(uploadpipeline.StoreRoute{Provider: "memory", Class: uploadpipeline.BucketClassStaging},
		"staging-bucket", staging)
	router.Register(uploadpipeline.StoreRoute{Provider: "memory", Class: uploadpipeline.BucketClassPermanent},
		"permanent-bucket", permanent)

	metadata := metamemory.New()
	svc, err := uploadpipeline.New(
		uploadpipeline.WithMetadataStore(metadata),
		uploadpipeline.WithRouter(router),
		uploadpipeline.WithQueue(queue.NewMemory(16, queue.DefaultRetryPolicy())),
		uploadpipeline.WithProvider("memory"),
	)
	require.NoError(t, err)

	return NewFilesHandler(svc), staging, metadata
}

func TestRequestUploadEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	router := handler.Routes()
	tenantID := uuid.New()

	t.Run("created", func(t *testing.T) {
		body, _ := json.Marshal(RequestUploadRequest{
			FileName: "photo.png",
			MimeType: "image/png",
			TenantID: tenantID.String(),
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp RequestUploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.FileID)
		assert.Contains(t, resp.UploadURL, "staging-bucket")
	})

	t.Run("unsupported media type", func(t *testing.T) {
		body, _ := json.Marshal(RequestUploadRequest{
			FileName: "a.out",
			MimeType: "application/x-executable",
			TenantID: tenantID.String(),
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("bad tenant id", func(t *testing.T) {
		body, _ := json.Marshal(RequestUploadRequest{
			FileName: "photo.png",
			MimeType: "image/png",
			TenantID: "not-a-uuid",
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file name", func(t *testing.T) {
		body, _ := json.Marshal(RequestUploadRequest{
			MimeType: "image/png",
			TenantID: tenantID.String(),
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCompleteUploadEndpoint(t *testing.T) {
	handler, staging, metadata := newTestHandler(t)
	router := handler.Routes()
	tenantID := uuid.New()

	requestUpload := func(t *testing.T) RequestUploadResponse {
		body, _ := json.Marshal(RequestUploadRequest{
			FileName: "photo.png",
			MimeType: "image/png",
			TenantID: tenantID.String(),
		})
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp RequestUploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	t.Run("ok", func(t *testing.T) {
		created := requestUpload(t)
		fileID := uuid.MustParse(created.FileID)

		record, err := metadata.GetFileMetadataByID(context.Background(), tenantID, fileID)
		require.NoError(t, err)
		require.NoError(t, staging.Upload(context.Background(), record.BucketKey, strings.NewReader("data"), "image/png"))

		req := httptest.NewRequest(http.MethodPost, "/"+created.FileID+"/complete?tenant_id="+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp CompleteUploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, string(uploadpipeline.FileStatusProcessing), resp.Status)
		assert.Contains(t, resp.FileURL, "permanent-bucket")
	})

	t.Run("staged object missing", func(t *testing.T) {
		created := requestUpload(t)

		req := httptest.NewRequest(http.MethodPost, "/"+created.FileID+"/complete?tenant_id="+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/"+uuid.NewString()+"/complete?tenant_id="+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad file id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/not-a-uuid/complete?tenant_id="+tenantID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetFileInfoEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t)
	router := handler.Routes()
	tenantID := uuid.New()

	body, _ := json.Marshal(RequestUploadRequest{
		FileName: "photo.png",
		MimeType: "image/png",
		TenantID: tenantID.String(),
	})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created RequestUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodGet, "/"+created.FileID+"?tenant_id="+tenantID.String(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info FileInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, created.FileID, info.FileID)
	assert.Equal(t, "photo.png", info.FileName)
	assert.Equal(t, string(uploadpipeline.FileStatusPending), info.Status)
}
