package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

// PlanHandler serves test plan CRUD, statistics and parameter endpoints.
type PlanHandler struct {
	plans    *service.PlanService
	copier   *service.CopyService
	stats    *service.StatsService
	statuses *service.StatusService
	logger   *slog.Logger
}

// NewPlanHandler creates a plan handler.
func NewPlanHandler(plans *service.PlanService, copier *service.CopyService,
	stats *service.StatsService, statuses *service.StatusService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, copier: copier, stats: stats, statuses: statuses, logger: logger}
}

// RegisterRoutes registers the plan and parameter routes.
func (h *PlanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/testplan", h.List).Methods(http.MethodGet)
	r.HandleFunc("/testplan", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/testplan/copy", h.Copy).Methods(http.MethodPost)
	r.HandleFunc("/testplan/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/testplan/{id:[0-9]+}/activity", h.Activity).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/breadcrumbs", h.Breadcrumbs).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/cases", h.Tests).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/labels", h.Labels).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/statuses", h.Statuses).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/statistics", h.Statistics).Methods(http.MethodGet)
	r.HandleFunc("/testplan/{id:[0-9]+}/histogram", h.Histogram).Methods(http.MethodGet)

	r.HandleFunc("/parameter", h.ListParameters).Methods(http.MethodGet)
	r.HandleFunc("/parameter", h.CreateParameter).Methods(http.MethodPost)
	r.HandleFunc("/parameter/{id:[0-9]+}", h.DeleteParameter).Methods(http.MethodDelete)
}

// RegisterV2Routes registers the v2-only plan routes.
func (h *PlanHandler) RegisterV2Routes(r *mux.Router) {
	r.HandleFunc("/testplan/union", h.Union).Methods(http.MethodGet)
}

func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	plans, err := h.plans.List(r.Context(), f)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

// Create inserts plans, one per parameter combination.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CreatePlanRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	plans, err := h.plans.Create(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, plans)
}

func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	plan, err := h.plans.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req model.UpdatePlanRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	plan, err := h.plans.Update(r.Context(), userID, id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *PlanHandler) Copy(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CopyPlansRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	plans, err := h.copier.CopyPlans(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, plans)
}

func (h *PlanHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			respondError(w, h.logger, errInvalidLimit)
			return
		}
	}
	activity, err := h.plans.Activity(r.Context(), id, limit)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, activity)
}

func (h *PlanHandler) Breadcrumbs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	crumbs, err := h.plans.Breadcrumbs(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, crumbs)
}

// Tests lists the plan's tests; deep=true includes the whole subtree.
func (h *PlanHandler) Tests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	deep, _ := strconv.ParseBool(q.Get("deep"))
	includeArchived, _ := strconv.ParseBool(q.Get("is_archive"))
	tests, err := h.plans.ListTests(r.Context(), id, deep, includeArchived)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *PlanHandler) Labels(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	labels, err := h.stats.PlanLabels(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, labels)
}

// Statuses returns the status catalog applicable to the plan's project.
func (h *PlanHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	plan, err := h.plans.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	catalog, err := h.statuses.Catalog(r.Context(), plan.ProjectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, catalog)
}

// Statistics returns the plan's status pie; root_only=true skips the
// subtree.
func (h *PlanHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	labelFilter, err := parseLabelFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	rootOnly, _ := strconv.ParseBool(q.Get("root_only"))
	period := q.Get("estimate_period")
	if period == "" {
		period = "minutes"
	}
	pie, err := h.stats.Pie(r.Context(), id, rootOnly, labelFilter, period)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, pie)
}

// Histogram buckets results by attribute value when attribute is given, else
// by day over [start_date, end_date].
func (h *PlanHandler) Histogram(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	labelFilter, err := parseLabelFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if attribute := r.URL.Query().Get("attribute"); attribute != "" {
		points, err := h.stats.HistogramByAttribute(r.Context(), id, attribute, labelFilter)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, points)
		return
	}
	start, err := queryDate(r, "start_date")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	end, err := queryDate(r, "end_date")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	points, err := h.stats.HistogramByDate(r.Context(), id, start, end, labelFilter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

type planWithTests struct {
	*model.Plan
	Tests []*model.Test `json:"tests"`
}

// Union returns the project's plans together with their direct tests.
func (h *PlanHandler) Union(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if f.ProjectID == 0 {
		respondError(w, h.logger, errProjectRequired)
		return
	}
	plans, err := h.plans.List(r.Context(), f)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	includeArchived := f.IsArchive != nil && *f.IsArchive
	out := make([]planWithTests, len(plans))
	for i, plan := range plans {
		tests, err := h.plans.ListTests(r.Context(), plan.ID, false, includeArchived)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		out[i] = planWithTests{Plan: plan, Tests: tests}
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *PlanHandler) ListParameters(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt64(r, "project")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	params, err := h.plans.ListParameters(r.Context(), projectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, params)
}

func (h *PlanHandler) CreateParameter(w http.ResponseWriter, r *http.Request) {
	var p model.Parameter
	if err := decodeBody(r, &p); err != nil {
		respondError(w, h.logger, err)
		return
	}
	param, err := h.plans.CreateParameter(r.Context(), &p)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, param)
}

func (h *PlanHandler) DeleteParameter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.plans.DeleteParameter(r.Context(), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
