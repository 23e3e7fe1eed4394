package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/beamline/internal/storage"
)

// Matcher decides whether a path is ignored. Each glob is tried against the
// base name and against the path relative to every watched root.
type Matcher struct {
	roots []string
	globs []string
}

// NewMatcher validates globs. The storage temp-file pattern is always
// ignored so the pipeline never reacts to its own scratch files.
func NewMatcher(roots, globs []string) (*Matcher, error) {
	m := &Matcher{roots: roots, globs: []string{storage.TempPattern}}
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" || g == storage.TempPattern {
			continue
		}
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("pipeline: invalid ignore glob %q", g)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether path should be ignored.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	base := filepath.Base(path)
	var rels []string
	for _, root := range m.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, base); ok {
			return true
		}
		for _, rel := range rels {
			if ok, _ := doublestar.Match(g, rel); ok {
				return true
			}
		}
	}
	return false
}
