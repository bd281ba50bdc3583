// Package handler exposes the HTTP surface of the service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/yuriguchi/testy/internal/apperr"
)

var (
	errInvalidLimit    = apperr.Validation("invalid limit")
	errProjectRequired = apperr.Validation("project is required")
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := apperr.GetHTTPStatus(err)
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(err, apperr.CodeInternalError, "internal error")
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(appErr.ToJSON())
}

func pathID(r *http.Request, name string) (int64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, apperr.Validation("missing path parameter " + name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// requesterID resolves the acting user from the X-User-ID header set by the
// auth proxy in front of the service.
func requesterID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, apperr.New(apperr.CodeUnauthorized, "missing X-User-ID header")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.CodeUnauthorized, "invalid X-User-ID header")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}
