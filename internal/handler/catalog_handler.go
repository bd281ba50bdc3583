package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// CatalogHandler serves the per-project catalogs: result statuses, labels and
// custom attribute definitions.
type CatalogHandler struct {
	statuses *service.StatusService
	labels   *service.LabelService
	attrs    *service.AttributeService
	logger   *slog.Logger
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(statuses *service.StatusService, labels *service.LabelService,
	attrs *service.AttributeService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{statuses: statuses, labels: labels, attrs: attrs, logger: logger}
}

// RegisterRoutes registers the catalog routes.
func (h *CatalogHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/status", h.ListStatuses).Methods(http.MethodGet)
	r.HandleFunc("/status", h.CreateStatus).Methods(http.MethodPost)
	r.HandleFunc("/status/{id:[0-9]+}", h.UpdateStatus).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/status/{id:[0-9]+}", h.DeleteStatus).Methods(http.MethodDelete)

	r.HandleFunc("/label", h.ListLabels).Methods(http.MethodGet)
	r.HandleFunc("/label", h.CreateLabel).Methods(http.MethodPost)
	r.HandleFunc("/label/{id:[0-9]+}", h.GetLabel).Methods(http.MethodGet)
	r.HandleFunc("/label/{id:[0-9]+}", h.UpdateLabel).Methods(http.MethodPatch, http.MethodPut)

	r.HandleFunc("/customattribute", h.ListAttributes).Methods(http.MethodGet)
	r.HandleFunc("/customattribute", h.CreateAttribute).Methods(http.MethodPost)
	r.HandleFunc("/customattribute/{id:[0-9]+}", h.GetAttribute).Methods(http.MethodGet)
	r.HandleFunc("/customattribute/{id:[0-9]+}", h.UpdateAttribute).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/customattribute/{id:[0-9]+}", h.DeleteAttribute).Methods(http.MethodDelete)
}

func (h *CatalogHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	catalog, err := h.statuses.Catalog(r.Context(), projectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, catalog)
}

func (h *CatalogHandler) CreateStatus(w http.ResponseWriter, r *http.Request) {
	var req model.CreateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	status, err := h.statuses.Create(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, status)
}

func (h *CatalogHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.UpdateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	status, err := h.statuses.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *CatalogHandler) DeleteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.statuses.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *CatalogHandler) ListLabels(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	labels, err := h.labels.List(r.Context(), projectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, labels)
}

func (h *CatalogHandler) GetLabel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	label, err := h.labels.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, label)
}

func (h *CatalogHandler) CreateLabel(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req struct {
		ProjectID int64  `json:"project"`
		Name      string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	label, err := h.labels.Create(r.Context(), req.ProjectID, userID, req.Name)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, label)
}

func (h *CatalogHandler) UpdateLabel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	label, err := h.labels.Update(r.Context(), id, req.Name)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, label)
}

func (h *CatalogHandler) ListAttributes(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	attrs, err := h.attrs.List(r.Context(), projectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, attrs)
}

func (h *CatalogHandler) GetAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	attr, err := h.attrs.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, attr)
}

func (h *CatalogHandler) CreateAttribute(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAttributeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	attr, err := h.attrs.Create(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, attr)
}

func (h *CatalogHandler) UpdateAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.UpdateAttributeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	attr, err := h.attrs.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, attr)
}

func (h *CatalogHandler) DeleteAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.attrs.Delete(r.Context(), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
