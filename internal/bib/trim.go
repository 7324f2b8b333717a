package bib

import (
	"regexp"
	"strings"
)

var (
	trailingPunct  = regexp.MustCompile(` *[ ,/;:] *$`)
	trailingPeriod = regexp.MustCompile(`( *[\p{L}\p{N}_]{3,})\. *$`)
	outerBrackets  = regexp.MustCompile(`^\[?([^\[\]]+)\]?$`)
)

// TrimPunctuation normalizes a derived bibliographic string:
// a trailing comma/slash/semicolon/colon is removed, a trailing period is
// removed only when preceded by at least three word characters, and one
// matched pair of outer square brackets is removed when the string has no
// internal brackets. The result is whitespace-trimmed.
//
// The rules are applied until a fixpoint, so the function is idempotent.
// Every derived scalar field goes through this one implementation.
func TrimPunctuation(s string) string {
	for {
		trimmed := trimOnce(s)
		if trimmed == s {
			return trimmed
		}
		s = trimmed
	}
}

func trimOnce(s string) string {
	if s == "" {
		return s
	}

	s = trailingPunct.ReplaceAllString(s, "")
	s = trailingPeriod.ReplaceAllString(s, "$1")
	s = outerBrackets.ReplaceAllString(s, "$1")

	return strings.TrimSpace(s)
}
