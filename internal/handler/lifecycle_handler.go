package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/apperr"
	"github.com/yuriguchi/testy/internal/model"
	"github.com/yuriguchi/testy/internal/service"
)

const deleteCacheCookie = "delete_cache"

// resourceKinds maps URL resource segments to entity kinds for the generic
// delete/archive flow.
var resourceKinds = map[string]model.EntityKind{
	"projects":   model.KindProject,
	"testsuite":  model.KindSuite,
	"testcase":   model.KindCase,
	"testplan":   model.KindPlan,
	"test":       model.KindTest,
	"testresult": model.KindResult,
}

const resourcePattern = "{resource:projects|testsuite|testcase|testplan|test|testresult}"

// LifecycleHandler serves the soft-delete and archive flow shared by every
// cascading resource: preview sets a short-lived token cookie, the commit
// consumes it.
type LifecycleHandler struct {
	lifecycle *service.LifecycleService
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewLifecycleHandler creates a lifecycle handler. tokenTTL must match the
// preview cache TTL so cookie and cache expire together.
func NewLifecycleHandler(lifecycle *service.LifecycleService, tokenTTL time.Duration, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle, tokenTTL: tokenTTL, logger: logger}
}

// RegisterRoutes registers the lifecycle routes for every resource.
func (h *LifecycleHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/"+resourcePattern+"/deleted", h.ListDeleted).Methods(http.MethodGet)
	r.HandleFunc("/"+resourcePattern+"/deleted/recover", h.Recover).Methods(http.MethodPost)
	r.HandleFunc("/"+resourcePattern+"/deleted/remove", h.Remove).Methods(http.MethodPost)
	r.HandleFunc("/"+resourcePattern+"/archive/restore", h.RestoreArchived).Methods(http.MethodPost)
	r.HandleFunc("/"+resourcePattern+"/{id:[0-9]+}/delete/preview", h.PreviewDelete).Methods(http.MethodGet)
	r.HandleFunc("/"+resourcePattern+"/{id:[0-9]+}/archive/preview", h.PreviewArchive).Methods(http.MethodGet)
	r.HandleFunc("/"+resourcePattern+"/{id:[0-9]+}/archive", h.CommitArchive).Methods(http.MethodPost)
	r.HandleFunc("/"+resourcePattern+"/{id:[0-9]+}", h.CommitDelete).Methods(http.MethodDelete)
}

func resourceKind(r *http.Request) (model.EntityKind, error) {
	kind, ok := resourceKinds[mux.Vars(r)["resource"]]
	if !ok {
		return "", apperr.Validation("unknown resource")
	}
	return kind, nil
}

func (h *LifecycleHandler) setToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     deleteCacheCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// token reads the preview token from the cookie, falling back to the query
// string for non-browser clients.
func token(r *http.Request) string {
	if c, err := r.Cookie(deleteCacheCookie); err == nil {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func (h *LifecycleHandler) PreviewDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	preview, err := h.lifecycle.PreviewDelete(r.Context(), kind, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.setToken(w, preview.Token)
	respondJSON(w, http.StatusOK, preview)
}

func (h *LifecycleHandler) PreviewArchive(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	preview, err := h.lifecycle.PreviewArchive(r.Context(), kind, id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.setToken(w, preview.Token)
	respondJSON(w, http.StatusOK, preview)
}

func (h *LifecycleHandler) CommitDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.CommitDelete(r.Context(), userID, kind, id, token(r)); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *LifecycleHandler) CommitArchive(w http.ResponseWriter, r *http.Request) {
	userID, err := requesterID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.CommitArchive(r.Context(), userID, kind, id, token(r)); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"archived": true})
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *LifecycleHandler) Recover(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.Recover(r.Context(), kind, req.IDs); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"recovered": len(req.IDs)})
}

func (h *LifecycleHandler) RestoreArchived(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.RestoreArchived(r.Context(), kind, req.IDs); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"restored": len(req.IDs)})
}

func (h *LifecycleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req idsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := h.lifecycle.DeletePermanently(r.Context(), kind, req.IDs); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": len(req.IDs)})
}

func (h *LifecycleHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	kind, err := resourceKind(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var projectID int64
	if raw := r.URL.Query().Get("project"); raw != "" {
		if projectID, err = queryInt64(r, "project"); err != nil {
			respondError(w, h.logger, err)
			return
		}
	}
	rows, err := h.lifecycle.ListDeleted(r.Context(), kind, projectID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
