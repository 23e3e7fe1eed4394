package record

import (
	"fmt"
	"strings"
)

// RenamePolicy decides how a header-trimmed record reaches its new name.
type RenamePolicy string

const (
	// PolicyRename rewrites the original path, then renames it. A crash between
	// the two steps leaves a rewritten file under the old name.
	PolicyRename RenamePolicy = "rename"
	// PolicyReplace writes the new path, then removes the original. A failed
	// removal leaves both files on disk.
	PolicyReplace RenamePolicy = "replace"
)

// ParseRenamePolicy maps a configuration value to a RenamePolicy.
func ParseRenamePolicy(s string) (RenamePolicy, error) {
	switch p := RenamePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyRename, nil
	case PolicyRename, PolicyReplace:
		return p, nil
	}
	return PolicyRename, fmt.Errorf("record: unknown rename policy %q", s)
}
