// Package models defines the domain types for beamline.
package models

import "time"

// EventKind classifies a file-system event.
type EventKind string

const (
	Created  EventKind = "created"
	Modified EventKind = "modified"
)

// FileEvent is a single notification about a path in a watched folder.
type FileEvent struct {
	Path  string    `json:"path"`
	Kind  EventKind `json:"kind"`
	IsDir bool      `json:"is_dir,omitempty"`
}

// Outcome is the result of handling one event.
type Outcome string

const (
	OutcomeChanged   Outcome = "changed"   // file content or name was rewritten
	OutcomeUnchanged Outcome = "unchanged" // transforms ran and were no-ops
	OutcomeSkipped   Outcome = "skipped"   // file vanished or event not applicable
	OutcomeFailed    Outcome = "failed"
)

// Step names recorded in Run.Steps.
const (
	StepStrip      = "strip_annotations"
	StepTrimHeader = "trim_header"
	StepRename     = "rename"
	StepPattern    = "pattern"
	StepStructural = "structural"
)

// Run records how a single event was handled.
type Run struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Kind      EventKind     `json:"kind"`
	Steps     []string      `json:"steps,omitempty"` // steps that changed something
	Outcome   Outcome       `json:"outcome"`
	RenamedTo string        `json:"renamed_to,omitempty"`
	Error     string        `json:"error,omitempty"`
	Checksum  string        `json:"checksum,omitempty"` // sha256 of the output content
	Retries   int           `json:"retries"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// FinalPath is where the file lives after the run.
func (r Run) FinalPath() string {
	if r.RenamedTo != "" {
		return r.RenamedTo
	}
	return r.Path
}

// Stats aggregates journaled runs by outcome.
type Stats struct {
	Total     int       `json:"total"`
	Changed   int       `json:"changed"`
	Unchanged int       `json:"unchanged"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	LastRunAt time.Time `json:"last_run_at,omitzero"`
}

// FileMetadata is a lightweight description of a file on disk.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
