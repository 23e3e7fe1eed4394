// Package ident normalizes dash-delimited piece, drawing and file identifiers.
//
// An identifier has exactly three segments, e.g. "W8722-B012-A007". Anything
// else is returned unchanged. Two variants exist because downstream consumers
// disagree on the output shape:
//
//   - Rich normalizes segments 2 and 3 and keeps the dashes ("W8722-B12-A7").
//   - Legacy normalizes segment 3 only and drops the dashes ("W8722B012A7").
package ident

import (
	"fmt"
	"strings"
	"unicode"
)

// Variant selects the normalization rules and join separator.
type Variant int

const (
	Rich Variant = iota
	Legacy
)

// ParseVariant maps a configuration value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rich":
		return Rich, nil
	case "legacy":
		return Legacy, nil
	}
	return Rich, fmt.Errorf("ident: unknown variant %q", s)
}

func (v Variant) String() string {
	if v == Legacy {
		return "legacy"
	}
	return "rich"
}

// Normalize applies the variant's rules to id.
func Normalize(id string, v Variant) string {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return id
	}

	parts[2] = normalizeTail(parts[2])

	if v == Legacy {
		return strings.Join(parts, "")
	}

	parts[1] = normalizeMiddle(parts[1])
	return strings.Join(parts, "-")
}

// normalizeTail strips zeros after the leading marker character: "A007" -> "A7".
func normalizeTail(seg string) string {
	runes := []rune(seg)
	if len(runes) < 2 {
		return seg
	}
	rest := string(runes[1:])
	if !isDigits(rest) {
		return seg
	}
	return string(runes[0]) + trimZeros(rest)
}

// normalizeMiddle handles "0012" -> "12" and "B012" -> "B12".
func normalizeMiddle(seg string) string {
	if isDigits(seg) {
		return trimZeros(seg)
	}
	if !strings.ContainsFunc(seg, unicode.IsDigit) {
		return seg
	}
	var alpha, num strings.Builder
	for _, r := range seg {
		switch {
		case unicode.IsLetter(r):
			alpha.WriteRune(r)
		case unicode.IsDigit(r):
			num.WriteRune(r)
		}
	}
	return alpha.String() + trimZeros(num.String())
}

// trimZeros drops leading zeros but never the last digit.
func trimZeros(digits string) string {
	out := strings.TrimLeft(digits, "0")
	if out == "" && digits != "" {
		return "0"
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DropRunes returns s without its first n runes. Strings of n runes or fewer
// yield "".
func DropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
