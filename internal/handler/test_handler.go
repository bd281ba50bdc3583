package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// TestHandler serves test assignment and result listing endpoints.
type TestHandler struct {
	tests   *service.TestService
	plans   *service.PlanService
	results *service.ResultService
	logger  *slog.Logger
}

// NewTestHandler creates a test handler.
func NewTestHandler(tests *service.TestService, plans *service.PlanService,
	results *service.ResultService, logger *slog.Logger) *TestHandler {
	return &TestHandler{tests: tests, plans: plans, results: results, logger: logger}
}

// RegisterRoutes registers the test routes.
func (h *TestHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/test", h.List).Methods(http.MethodGet)
	r.HandleFunc("/test/bulk-update", h.BulkUpdate).Methods(http.MethodPost)
	r.HandleFunc("/test/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/test/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/test/{id:[0-9]+}/results", h.Results).Methods(http.MethodGet)
}

// List lists the tests of one plan; deep=true includes the subtree.
func (h *TestHandler) List(w http.ResponseWriter, r *http.Request) {
	planID, err := queryInt64(r, "plan")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	deep, _ := strconv.ParseBool(q.Get("deep"))
	includeArchived, _ := strconv.ParseBool(q.Get("is_archive"))
	tests, err := h.plans.ListTests(r.Context(), planID, deep, includeArchived)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *TestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	t, err := h.tests.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *TestHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req model.UpdateTestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	t, err := h.tests.Update(r.Context(), userID, id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *TestHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.BulkUpdateTestsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.tests.BulkUpdate(r.Context(), userID, req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": len(req.IDs)})
}

func (h *TestHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	results, err := h.results.ListByTest(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}
