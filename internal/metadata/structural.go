package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/beamline/internal/ident"
)

// DefaultLengthThreshold is the exclusive upper bound on piece length below
// which identifiers are normalized.
const DefaultLengthThreshold = 279.0

// Gate selects the business predicate guarding the structural rewrite.
type Gate string

const (
	// GateProfileLength requires a qualifying profile group and a piece length
	// under the threshold.
	GateProfileLength Gate = "profile_length"
	// GateProfile requires a qualifying profile group only; every piece is
	// normalized.
	GateProfile Gate = "profile"
)

// ParseGate maps a configuration value to a Gate.
func ParseGate(s string) (Gate, error) {
	switch g := Gate(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GateProfileLength, nil
	case GateProfileLength, GateProfile:
		return g, nil
	}
	return GateProfileLength, fmt.Errorf("metadata: unknown gate %q", s)
}

// Elements names the document elements the structural rewrite inspects.
type Elements struct {
	ProfileGroup string
	ProfileType  string
	PieceInfo    string
	Length       string
	Identifiers  []string
}

// DefaultElements returns the canonical element names.
func DefaultElements() Elements {
	return Elements{
		ProfileGroup: "ProfileGroup",
		ProfileType:  "ProfileType",
		PieceInfo:    "PieceInfo",
		Length:       "Length",
		Identifiers:  append([]string(nil), DefaultTrimElements...),
	}
}

// TreeConfig configures a TreeRewriter.
type TreeConfig struct {
	Elements    Elements
	ProfileType string
	Threshold   float64
	Gate        Gate
	Variant     ident.Variant
}

// TreeResult describes what a structural rewrite did.
type TreeResult struct {
	Qualified bool // some profile group carried the wanted profile type
	Pieces    int  // pieces whose identifiers were normalized
	Skipped   int  // pieces skipped for an unparseable length
	Changed   bool
}

// TreeRewriter applies the structural strategy.
type TreeRewriter struct {
	cfg TreeConfig
}

// NewTreeRewriter fills zero fields of cfg with defaults.
func NewTreeRewriter(cfg TreeConfig) *TreeRewriter {
	def := DefaultElements()
	if cfg.Elements.ProfileGroup == "" {
		cfg.Elements.ProfileGroup = def.ProfileGroup
	}
	if cfg.Elements.ProfileType == "" {
		cfg.Elements.ProfileType = def.ProfileType
	}
	if cfg.Elements.PieceInfo == "" {
		cfg.Elements.PieceInfo = def.PieceInfo
	}
	if cfg.Elements.Length == "" {
		cfg.Elements.Length = def.Length
	}
	if len(cfg.Elements.Identifiers) == 0 {
		cfg.Elements.Identifiers = def.Identifiers
	}
	if cfg.ProfileType == "" {
		cfg.ProfileType = "L"
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultLengthThreshold
	}
	if cfg.Gate == "" {
		cfg.Gate = GateProfileLength
	}
	return &TreeRewriter{cfg: cfg}
}

// Rewrite parses data and normalizes identifiers of qualifying pieces. When
// nothing changes the returned content is nil and res.Changed is false.
func (tr *TreeRewriter) Rewrite(data []byte) ([]byte, TreeResult, error) {
	var res TreeResult
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, res, err
	}

	el := tr.cfg.Elements
	for _, g := range doc.FindAll(el.ProfileGroup) {
		if pt := g.Child(el.ProfileType); pt != nil && strings.TrimSpace(pt.Text()) == tr.cfg.ProfileType {
			res.Qualified = true
			break
		}
	}
	if !res.Qualified {
		return nil, res, nil
	}

	for _, piece := range doc.FindAll(el.PieceInfo) {
		if tr.cfg.Gate == GateProfileLength {
			ln := piece.Child(el.Length)
			if ln == nil {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(ln.Text()), 64)
			if err != nil {
				res.Skipped++
				continue
			}
			if !(v < tr.cfg.Threshold) {
				continue
			}
		}
		touched := false
		for _, name := range el.Identifiers {
			leaf := piece.Child(name)
			if leaf == nil {
				continue
			}
			old := leaf.Text()
			next := ident.Normalize(old, tr.cfg.Variant)
			if next != old && leaf.SetText(next) {
				touched = true
			}
		}
		if touched {
			res.Pieces++
			res.Changed = true
		}
	}

	if !res.Changed {
		return nil, res, nil
	}
	return doc.Bytes(), res, nil
}
