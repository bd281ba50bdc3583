package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/service"
)

// maxUploadBytes bounds the in-flight multipart form memory.
const maxUploadBytes = 256 << 20

// AttachmentHandler serves attachment upload and download endpoints.
type AttachmentHandler struct {
	attachments *service.AttachmentService
	logger      *slog.Logger
}

// NewAttachmentHandler creates an attachment handler.
func NewAttachmentHandler(attachments *service.AttachmentService, logger *slog.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, logger: logger}
}

// RegisterRoutes registers the attachment routes.
func (h *AttachmentHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/attachments", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/attachments/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/attachments/{id:[0-9]+}/download", h.Download).Methods(http.MethodGet)
}

// Upload accepts a multipart form with a "file" part and optional "project"
// and "comment" fields. The attachment starts unbound.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, h.logger, apperr.Validation("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, apperr.Validation("file part is required"))
		return
	}
	defer file.Close()

	projectID, err := queryFormInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	a, err := h.attachments.Upload(r.Context(), userID, projectID,
		header.Filename, header.Header.Get("Content-Type"), r.FormValue("comment"),
		header.Size, file)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	a, err := h.attachments.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	a, body, err := h.attachments.Download(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer body.Close()

	contentType := a.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	if a.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", a.Size))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Error("failed to stream attachment", "attachment_id", id, "error", err)
	}
}

func queryFormInt64(r *http.Request, name string) (int64, error) {
	if raw := r.FormValue(name); raw != "" {
		var id int64
		if _, err := fmt.Sscanf(raw, "%d", &id); err != nil || id <= 0 {
			return 0, apperr.Validation("invalid " + name)
		}
		return id, nil
	}
	return 0, apperr.Validation(name + " is required")
}
