package metadata

import (
	"fmt"
	"strings"
)

// Strategy selects which rewriters run on a metadata file.
type Strategy string

const (
	StrategyBoth       Strategy = "both"
	StrategyPattern    Strategy = "pattern"
	StrategyStructural Strategy = "structural"
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyBoth, nil
	case StrategyBoth, StrategyPattern, StrategyStructural:
		return st, nil
	}
	return StrategyBoth, fmt.Errorf("metadata: unknown strategy %q", s)
}

// UsesPattern reports whether the pattern rewriter runs.
func (s Strategy) UsesPattern() bool { return s == StrategyBoth || s == StrategyPattern }

// UsesTree reports whether the structural rewriter runs.
func (s Strategy) UsesTree() bool { return s == StrategyBoth || s == StrategyStructural }
