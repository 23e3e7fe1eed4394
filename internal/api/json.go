package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/beamline/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

// errResponse is the body of every non-2xx response. Code is a stable
// machine-readable name; Error is for humans.
type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

type errorMapping struct {
	target error
	status int
	code   string
	msg    string
}

var errorMappings = []errorMapping{
	{apperr.ErrOutsideRoots, http.StatusForbidden, "outside_roots", "path is outside the watched folders"},
	{apperr.ErrNotFound, http.StatusNotFound, "not_found", "not found"},
	{apperr.ErrUnsupported, http.StatusUnprocessableEntity, "unsupported", "unsupported file type"},
}

// writeError maps sentinel errors to their status; anything else is logged
// and reported as an internal error without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, errResponse{Error: m.msg, Code: m.code})
			return
		}
	}
	slog.Error("api: request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error", Code: "internal"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errResponse{Error: msg, Code: "bad_request"})
}
