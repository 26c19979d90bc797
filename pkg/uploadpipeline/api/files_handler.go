// Package api exposes the upload pipeline operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/upload-pipeline/pkg/uploadpipeline"
)

// FilesHandler handles the upload lifecycle endpoints.
type FilesHandler struct {
	service uploadpipeline.Service
}

// NewFilesHandler creates a new files handler.
func NewFilesHandler(service uploadpipeline.Service) *FilesHandler {
	return &FilesHandler{service: service}
}

// Routes returns the router for file endpoints.
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RequestUpload)
	r.Post("/{file_id}/complete", h.CompleteUpload)
	r.Get("/{file_id}", h.GetFileInfo)
	return r
}

// RequestUploadRequest is the wire form of an upload intent.
type RequestUploadRequest struct {
	FileName      string `json:"file_name"`
	MimeType      string `json:"mime_type"`
	OwnerService  string `json:"owner_service,omitempty"`
	OwnerEntityID string `json:"owner_entity_id,omitempty"`
	TenantID      string `json:"tenant_id"`
}

// RequestUploadResponse is the wire form of an issued upload credential.
type RequestUploadResponse struct {
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
}

// CompleteUploadResponse is the wire form of a finalized upload.
type CompleteUploadResponse struct {
	FileURL string `json:"file_url"`
	Status  string `json:"status"`
}

// FileInfoResponse is the wire form of a file's lifecycle state.
type FileInfoResponse struct {
	FileID   string                       `json:"file_id"`
	FileName string                       `json:"file_name"`
	MimeType string                       `json:"mime_type"`
	Status   string                       `json:"status"`
	FileURL  string                       `json:"file_url,omitempty"`
	Variants []uploadpipeline.FileVariant `json:"variants,omitempty"`
}

// RequestUpload registers an upload intent and returns a presigned staging URL.
func (h *FilesHandler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	var req RequestUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Fail to decode request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		slog.Error("Invalid tenant ID", "tenant_id", req.TenantID, "error", err)
		http.Error(w, "Invalid tenant ID", http.StatusBadRequest)
		return
	}
	if req.FileName == "" {
		http.Error(w, "File name is required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.RequestUpload(r.Context(), uploadpipeline.RequestUploadRequest{
		FileName:      req.FileName,
		MimeType:      req.MimeType,
		OwnerService:  req.OwnerService,
		OwnerEntityID: req.OwnerEntityID,
		TenantID:      tenantID,
	})
	if err != nil {
		writeError(w, "request upload failed", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RequestUploadResponse{
		FileID:    resp.FileID.String(),
		UploadURL: resp.UploadURL,
	})
}

// CompleteUpload finalizes an upload and enqueues processing.
func (h *FilesHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	fileID, tenantID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	resp, err := h.service.CompleteUpload(r.Context(), uploadpipeline.CompleteUploadRequest{
		FileID:   fileID,
		TenantID: tenantID,
	})
	if err != nil {
		writeError(w, "complete upload failed", err)
		return
	}

	render.JSON(w, r, CompleteUploadResponse{
		FileURL: resp.FileURL,
		Status:  resp.Status,
	})
}

// GetFileInfo returns the current lifecycle state of a file.
func (h *FilesHandler) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	fileID, tenantID, ok := h.parseIDs(w, r)
	if !ok {
		return
	}

	info, err := h.service.GetFileInfo(r.Context(), tenantID, fileID)
	if err != nil {
		writeError(w, "get file info failed", err)
		return
	}

	render.JSON(w, r, FileInfoResponse{
		FileID:   info.FileID.String(),
		FileName: info.FileName,
		MimeType: info.MimeType,
		Status:   info.Status,
		FileURL:  info.FileURL,
		Variants: info.Variants,
	})
}

func (h *FilesHandler) parseIDs(w http.ResponseWriter, r *http.Request) (fileID, tenantID uuid.UUID, ok bool) {
	fileID, err := uuid.Parse(chi.URLParam(r, "file_id"))
	if err != nil {
		slog.Error("Invalid file ID", "file_id", chi.URLParam(r, "file_id"), "error", err)
		http.Error(w, "Invalid file ID", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}

	tenantID, err = uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		slog.Error("Invalid tenant ID", "tenant_id", r.URL.Query().Get("tenant_id"), "error", err)
		http.Error(w, "Invalid tenant ID", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return fileID, tenantID, true
}

// writeError maps the pipeline error taxonomy to HTTP statuses.
func writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, uploadpipeline.ErrUnsupportedMediaType):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, uploadpipeline.ErrFileNotFound),
		errors.Is(err, uploadpipeline.ErrStagedObjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error(msg, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
