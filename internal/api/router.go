package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/beamline/internal/service"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *service.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Journal.
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{id}", h.GetRun)
	r.Get("/stats", h.Stats)

	// Folders and manual trigger.
	r.Get("/folders", h.Folders)
	r.Post("/process", h.Process)

	// Identifier preview.
	r.Get("/identifiers/{id}", h.NormalizeIdentifier)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
