package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// CaseHandler serves test case CRUD, history and copy endpoints.
type CaseHandler struct {
	cases       *service.CaseService
	tests       *service.TestService
	copier      *service.CopyService
	attachments *service.AttachmentService
	logger      *slog.Logger
}

// NewCaseHandler creates a case handler.
func NewCaseHandler(cases *service.CaseService, tests *service.TestService,
	copier *service.CopyService, attachments *service.AttachmentService, logger *slog.Logger) *CaseHandler {
	return &CaseHandler{cases: cases, tests: tests, copier: copier, attachments: attachments, logger: logger}
}

// RegisterRoutes registers the case routes.
func (h *CaseHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/testcase", h.List).Methods(http.MethodGet)
	r.HandleFunc("/testcase", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/testcase/copy", h.Copy).Methods(http.MethodPost)
	r.HandleFunc("/testcase/search", h.Search).Methods(http.MethodGet)
	r.HandleFunc("/testcase/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/testcase/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/testcase/{id:[0-9]+}/history", h.History).Methods(http.MethodGet)
	r.HandleFunc("/testcase/{id:[0-9]+}/history/{version:[0-9]+}", h.GetVersion).Methods(http.MethodGet)
	r.HandleFunc("/testcase/{id:[0-9]+}/version/restore", h.RestoreVersion).Methods(http.MethodPost)
	r.HandleFunc("/testcase/{id:[0-9]+}/tests", h.Tests).Methods(http.MethodGet)
	r.HandleFunc("/testcase/{id:[0-9]+}/attachments", h.Attachments).Methods(http.MethodGet)
}

func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var suiteIDs []int64
	if f.ParentID != nil {
		suiteIDs = []int64{*f.ParentID}
	}
	cases, err := h.cases.List(r.Context(), f, suiteIDs)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cases)
}

// Search is the list endpoint constrained to text search, kept as a separate
// route for the quick-search client.
func (h *CaseHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.List(w, r)
}

func (h *CaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CreateCaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	c, err := h.cases.Create(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	c, err := h.cases.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CaseHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req model.UpdateCaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	c, err := h.cases.Update(r.Context(), userID, id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CaseHandler) Copy(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CopyCasesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	cases, err := h.copier.CopyCases(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, cases)
}

func (h *CaseHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	versions, err := h.cases.History(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (h *CaseHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	version, err := pathID(r, "version")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	snapshot, err := h.cases.GetVersion(r.Context(), id, version)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func (h *CaseHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Version int64 `json:"version"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	c, err := h.cases.RestoreVersion(r.Context(), userID, id, req.Version)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Tests lists the tests spawned from the case across plans.
func (h *CaseHandler) Tests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	tests, err := h.tests.ListByCase(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *CaseHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	attachments, err := h.attachments.ListForObject(r.Context(), model.KindCase, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, attachments)
}
