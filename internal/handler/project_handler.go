package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/repository"
	"github.com/yuriguchi/testy/internal/service"
)

// ProjectHandler serves project CRUD, membership and progress endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
	stats    *service.StatsService
	users    *repository.UserRepository
	logger   *slog.Logger
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(projects *service.ProjectService, stats *service.StatsService,
	users *repository.UserRepository, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, stats: stats, users: users, logger: logger}
}

// RegisterRoutes registers the project routes.
func (h *ProjectHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/projects", h.List).Methods(http.MethodGet)
	r.HandleFunc("/projects", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id:[0-9]+}", h.Update).Methods(http.MethodPatch, http.MethodPut)
	r.HandleFunc("/projects/{id:[0-9]+}/members", h.ListMembers).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id:[0-9]+}/members", h.AddMember).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id:[0-9]+}/members/{memberID:[0-9]+}", h.RemoveMember).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{id:[0-9]+}/access", h.Access).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id:[0-9]+}/progress", h.Progress).Methods(http.MethodGet)
	r.HandleFunc("/projects/{id:[0-9]+}/statistics", h.Statistics).Methods(http.MethodGet)
}

func (h *ProjectHandler) currentUser(r *http.Request) (*model.User, error) {
	userID, err := requesterID(r)
	if err != nil {
		return nil, err
	}
	return h.users.Get(r.Context(), userID)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var isArchive *bool
	if raw := r.URL.Query().Get("is_archive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, h.logger, apperr.Validation("invalid is_archive"))
			return
		}
		isArchive = &v
	}
	projects, err := h.projects.List(r.Context(), user, isArchive)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	project, err := h.projects.Create(r.Context(), user, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	project, err := h.projects.Get(r.Context(), user, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req model.UpdateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	project, err := h.projects.Update(r.Context(), user, id, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	members, err := h.projects.ListMembers(r.Context(), user, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var m model.Membership
	if err := decodeBody(r, &m); err != nil {
		respondError(w, h.logger, err)
		return
	}
	m.ProjectID = id
	member, err := h.projects.AddMember(r.Context(), user, &m)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	memberID, err := pathID(r, "memberID")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.projects.RemoveMember(r.Context(), user, id, memberID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *ProjectHandler) Access(w http.ResponseWriter, r *http.Request) {
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
	grant, err := h.projects.Grant(r.Context(), id, userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

func (h *ProjectHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
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
	progress, err := h.stats.Progress(r.Context(), id, start, end)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// Statistics returns the project-wide status pie across every plan.
func (h *ProjectHandler) Statistics(w http.ResponseWriter, r *http.Request) {
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
	period := r.URL.Query().Get("estimate_period")
	if period == "" {
		period = "minutes"
	}
	pie, err := h.stats.PieProject(r.Context(), id, labelFilter, period)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, pie)
}
