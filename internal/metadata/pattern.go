package metadata

import (
	"fmt"
	"regexp"

	"github.com/starford/beamline/internal/ident"
)

// DefaultNamePrefixes are the manufacturer prefixes stripped from Name elements.
var DefaultNamePrefixes = []string{"W_", "C_", "S_", "HSS_", "L_", "HP_"}

// DefaultTrimElements are the elements whose long values lose the producer prefix.
var DefaultTrimElements = []string{"Filename", "DrawingIdentification", "PieceIdentification"}

const (
	minTrimLength = 25
	trimPrefixLen = 10
)

// PatternConfig configures a PatternRewriter.
type PatternConfig struct {
	NamePrefixes    []string
	RemnantSentinel string
	TrimElements    []string
}

// PatternRewriter applies the text substitution rules. Patterns are compiled
// once by NewPatternRewriter and never mutated, so a rewriter is safe for
// concurrent use.
type PatternRewriter struct {
	names    []*regexp.Regexp
	remnant  *regexp.Regexp
	sentinel string
	trims    []*regexp.Regexp
}

// NewPatternRewriter compiles the rules described by cfg.
func NewPatternRewriter(cfg PatternConfig) (*PatternRewriter, error) {
	if cfg.NamePrefixes == nil {
		cfg.NamePrefixes = DefaultNamePrefixes
	}
	if cfg.TrimElements == nil {
		cfg.TrimElements = DefaultTrimElements
	}
	if cfg.RemnantSentinel == "" {
		cfg.RemnantSentinel = "v"
	}

	pr := &PatternRewriter{
		remnant:  regexp.MustCompile(`(?s)<RemnantLocation>.*?</RemnantLocation>`),
		sentinel: "<RemnantLocation>" + escapeText(cfg.RemnantSentinel) + "</RemnantLocation>",
	}
	for _, p := range cfg.NamePrefixes {
		if p == "" {
			return nil, fmt.Errorf("metadata: empty name prefix")
		}
		// Everything from the start tag up to and including the prefix goes;
		// [^<] keeps a match inside a single Name element.
		re, err := regexp.Compile(`(<Name>)[^<]*?` + regexp.QuoteMeta(p) + `([^<]*</Name>)`)
		if err != nil {
			return nil, fmt.Errorf("metadata: compile prefix %q: %w", p, err)
		}
		pr.names = append(pr.names, re)
	}
	for _, tag := range cfg.TrimElements {
		q := regexp.QuoteMeta(tag)
		re, err := regexp.Compile(fmt.Sprintf(`(<%s>)([^<]{%d,})(</%s>)`, q, minTrimLength, q))
		if err != nil {
			return nil, fmt.Errorf("metadata: compile element %q: %w", tag, err)
		}
		pr.trims = append(pr.trims, re)
	}
	return pr, nil
}

// Rewrite applies every rule in order and reports whether the text changed.
func (pr *PatternRewriter) Rewrite(content string) (string, bool) {
	out := content
	for _, re := range pr.names {
		out = re.ReplaceAllString(out, "${1}${2}")
	}
	out = pr.remnant.ReplaceAllLiteralString(out, pr.sentinel)
	for _, re := range pr.trims {
		out = re.ReplaceAllStringFunc(out, func(m string) string {
			sub := re.FindStringSubmatch(m)
			return sub[1] + ident.DropRunes(sub[2], trimPrefixLen) + sub[3]
		})
	}
	return out, out != content
}
