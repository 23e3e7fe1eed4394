// Package record implements the fixed-layout cutting record (.nc1) transforms.
//
// A record is handled as an ordered list of lines. Line positions are fixed by
// convention: the header segment lives at indices 3 and 4, and annotation
// blocks start at a line whose trimmed form begins with "SI".
package record

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/starford/beamline/internal/ident"
)

const (
	annotationMarker = "SI"

	// MinNameLength is the base-name length from which files carry the
	// 10-character producer prefix that must be dropped.
	MinNameLength = 25
	namePrefixLen = 10

	minHeaderLength = 25
	headerPrefixLen = 12
)

// headerLines are the 0-indexed positions of the header segment.
var headerLines = [...]int{3, 4}

// Record is the line sequence of one cutting record. Every line keeps its
// terminator so untouched lines round-trip byte for byte.
type Record struct {
	Lines []string
}

// Parse splits data into lines, keeping "\n" (and any "\r") on each line.
func Parse(data []byte) Record {
	if len(data) == 0 {
		return Record{}
	}
	parts := bytes.SplitAfter(data, []byte("\n"))
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		lines = append(lines, string(p))
	}
	return Record{Lines: lines}
}

// Bytes joins the lines back into file content.
func (r Record) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range r.Lines {
		buf.WriteString(l)
	}
	return buf.Bytes()
}

// StripAnnotations drops every annotation block in a single forward pass.
// The terminator line of a block is kept. Reports whether any line was dropped.
func StripAnnotations(r Record) (Record, bool) {
	out := make([]string, 0, len(r.Lines))
	skip := false
	for _, line := range r.Lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, annotationMarker):
			skip = true
		case skip && isBlockTerminator(line, trimmed):
			skip = false
		}
		if !skip {
			out = append(out, line)
		}
	}
	return Record{Lines: out}, len(out) != len(r.Lines)
}

// isBlockTerminator matches a two-character block identifier written at column
// zero ("EN", "BO", ...). Data lines are indented with two spaces and never end
// a block, even when their trimmed value is two characters long.
func isBlockTerminator(line, trimmed string) bool {
	return utf8.RuneCountInString(trimmed) == 2 && !strings.HasPrefix(line, "  ")
}

// TrimHeader drops the 12-character layout prefix (2 spaces + 10-character
// producer prefix) from header lines whose trimmed length is at least 25.
// Records shorter than 5 lines are returned unchanged.
func TrimHeader(r Record) (Record, bool) {
	if len(r.Lines) <= headerLines[len(headerLines)-1] {
		return r, false
	}
	out := Record{Lines: append([]string(nil), r.Lines...)}
	changed := false
	for _, i := range headerLines {
		line := out.Lines[i]
		if utf8.RuneCountInString(strings.TrimSpace(line)) < minHeaderLength {
			continue
		}
		out.Lines[i] = ident.DropRunes(line, headerPrefixLen)
		changed = true
	}
	return out, changed
}

// RenamedBase returns base without its producer prefix when base is long
// enough to carry one.
func RenamedBase(base string) (string, bool) {
	if utf8.RuneCountInString(base) < MinNameLength {
		return base, false
	}
	return ident.DropRunes(base, namePrefixLen), true
}
