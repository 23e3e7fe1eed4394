package api

import (
	"github.com/starford/beamline/internal/models"
	"github.com/starford/beamline/internal/service"
)

// ProcessRequest is the request body for a manual trigger.
type ProcessRequest struct {
	Path string `json:"path" example:"/srv/cnc/line1/0123456789ABCD-1234-5678-X.nc1" validate:"required"`
}

// ProcessResponse confirms that a file was queued.
type ProcessResponse struct {
	Path   string `json:"path" validate:"required"`
	Status string `json:"status" example:"queued" validate:"required"`
}

// RunListResponse wraps journal listings.
type RunListResponse struct {
	Runs []models.Run `json:"runs" validate:"required"`
}

// FolderListResponse wraps the watched folders.
type FolderListResponse struct {
	Folders []string `json:"folders" validate:"required"`
}

// StatsResponse is the stats payload (aliased from the service layer).
type StatsResponse = service.StatsView

// IdentifierResponse is the identifier preview payload (aliased from the service layer).
type IdentifierResponse = service.Identifier
