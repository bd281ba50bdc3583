package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// SuiteHandler serves the test suite tree endpoints.
type SuiteHandler struct {
	suites *service.SuiteService
	cases  *service.CaseService
	copier *service.CopyService
	logger *slog.Logger
}

// NewSuiteHandler creates a suite handler.
func NewSuiteHandler(suites *service.SuiteService, cases *service.CaseService,
	copier *service.CopyService, logger *slog.Logger) *SuiteHandler {
	return &SuiteHandler{suites: suites, cases: cases, copier: copier, logger: logger}
}

// RegisterRoutes registers the suite routes shared by both API versions.
func (h *SuiteHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/testsuite", h.List).Methods(http.MethodGet)
	r.HandleFunc("/testsuite", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/testsuite/copy", h.Copy).Methods(http.MethodPost)
	r.HandleFunc("/testsuite/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/testsuite/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/testsuite/{id:[0-9]+}/cases", h.Cases).Methods(http.MethodGet)
	r.HandleFunc("/testsuite/{id:[0-9]+}/descendants-tree", h.DescendantsTree).Methods(http.MethodGet)
	r.HandleFunc("/testsuite/{id:[0-9]+}/breadcrumbs", h.Breadcrumbs).Methods(http.MethodGet)
}

// RegisterV2Routes registers the v2-only suite routes.
func (h *SuiteHandler) RegisterV2Routes(r *mux.Router) {
	r.HandleFunc("/testsuite/union", h.Union).Methods(http.MethodGet)
}

func (h *SuiteHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	suites, err := h.suites.List(r.Context(), f)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, suites)
}

func (h *SuiteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSuiteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	suite, err := h.suites.Create(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, suite)
}

func (h *SuiteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	suite, err := h.suites.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, suite)
}

func (h *SuiteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.UpdateSuiteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	suite, err := h.suites.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, suite)
}

func (h *SuiteHandler) Copy(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CopySuitesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	suites, err := h.copier.CopySuites(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, suites)
}

// Cases lists the suite's test cases, expanding the subtree.
func (h *SuiteHandler) Cases(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	f, err := parseListFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	cases, err := h.cases.List(r.Context(), f, []int64{id})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cases)
}

func (h *SuiteHandler) DescendantsTree(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	node, err := h.suites.DescendantsTree(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func (h *SuiteHandler) Breadcrumbs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	crumbs, err := h.suites.Breadcrumbs(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, crumbs)
}

// Union returns the project's suite tree with nested cases, pruned by
// treesearch when given.
func (h *SuiteHandler) Union(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	search := r.URL.Query().Get("treesearch")
	if search == "" {
		search = r.URL.Query().Get("search")
	}
	nodes, err := h.suites.ProjectTree(r.Context(), projectID, search)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}
