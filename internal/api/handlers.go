package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/beamline/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent processing runs
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int		false	"Maximum number of runs"
//	@Param			path	query		string	false	"Only runs on this path"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	runs, err := h.svc.RecentRuns(r.Context(), limit, q.Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get a single run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	models.Run
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Stats handles GET /api/stats.
//
//	@Summary		Run counts by outcome and queue depth
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Folders handles GET /api/folders.
//
//	@Summary		List watched folders
//	@Tags			folders
//	@Produce		json
//	@Success		200	{object}	FolderListResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) Folders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: h.svc.Folders(r.Context())})
}

// Process handles POST /api/process.
//
//	@Summary		Queue a file for processing
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ProcessRequest	true	"File to process"
//	@Success		202		{object}	ProcessResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Path == "" {
		badRequest(w, "path is required")
		return
	}
	if err := h.svc.ProcessFile(r.Context(), req.Path); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ProcessResponse{Path: req.Path, Status: "queued"})
}

// NormalizeIdentifier handles GET /api/identifiers/{id}.
//
//	@Summary		Preview identifier normalization
//	@Tags			identifiers
//	@Produce		json
//	@Param			id	path		string	true	"Identifier"
//	@Success		200	{object}	IdentifierResponse
//	@Security		BearerAuth
//	@Router			/identifiers/{id} [get]
func (h *Handler) NormalizeIdentifier(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		id = raw
	}
	writeJSON(w, http.StatusOK, service.NormalizeIdentifier(id))
}
