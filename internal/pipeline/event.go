// Package pipeline turns file-system events in the watched folders into
// record and metadata rewrites.
package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/starford/beamline/internal/models"
)

// File extensions handled by the pipeline, compared case-insensitively.
const (
	ExtRecord   = ".nc1"
	ExtMetadata = ".idstv"
)

// Action is what the dispatcher does for an event.
type Action int

const (
	ActionNone Action = iota
	// ActionRecordCreated strips annotation blocks, then trims the header
	// and renames.
	ActionRecordCreated
	// ActionRecordModified only trims the header and renames.
	ActionRecordModified
	// ActionMetadata runs the configured metadata strategy.
	ActionMetadata
)

func (a Action) String() string {
	switch a {
	case ActionRecordCreated:
		return "record_created"
	case ActionRecordModified:
		return "record_modified"
	case ActionMetadata:
		return "metadata"
	}
	return "none"
}

// Classify maps an event to its action. Directories, unknown extensions and
// modified metadata files yield ActionNone.
func Classify(ev models.FileEvent) Action {
	if ev.IsDir {
		return ActionNone
	}
	switch ext := strings.ToLower(filepath.Ext(ev.Path)); {
	case ext == ExtRecord && ev.Kind == models.Created:
		return ActionRecordCreated
	case ext == ExtRecord && ev.Kind == models.Modified:
		return ActionRecordModified
	case ext == ExtMetadata && ev.Kind == models.Created:
		return ActionMetadata
	}
	return ActionNone
}
