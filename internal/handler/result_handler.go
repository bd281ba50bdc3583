package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// ResultHandler serves test result endpoints.
type ResultHandler struct {
	results *service.ResultService
	logger  *slog.Logger
}

// NewResultHandler creates a result handler.
func NewResultHandler(results *service.ResultService, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{results: results, logger: logger}
}

// RegisterRoutes registers the result routes.
func (h *ResultHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/testresult", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/testresult/attributes", h.DestroyByAttribute).Methods(http.MethodDelete)
	r.HandleFunc("/testresult/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/testresult/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
}

func (h *ResultHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CreateResultRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	result, err := h.results.Create(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *ResultHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	result, err := h.results.GetWithSteps(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *ResultHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.UpdateResultRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	result, err := h.results.Update(r.Context(), userID, id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// DestroyByAttribute soft-deletes the plan subtree's results whose attributes
// carry name=value.
func (h *ResultHandler) DestroyByAttribute(w http.ResponseWriter, r *http.Request) {
	planID, err := queryInt64(r, "plan")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		respondError(w, h.logger, apperr.Validation("name is required"))
		return
	}
	// An empty value is a legal match target; only absence is rejected.
	if !q.Has("value") {
		respondError(w, h.logger, apperr.Validation("value is required"))
		return
	}
	affected, err := h.results.DestroyByAttribute(r.Context(), planID, name, q.Get("value"))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"affected": affected})
}
