// Package textnorm provides the lossy text cleanup used while building
// candidate retreats: markup stripping for display text and diacritic-folded
// keys for cross-source deduplication.
package textnorm

import (
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Zs}]+`)
	nonKeyPattern     = regexp.MustCompile(`[^a-z0-9]+`)
)

// StripMarkup removes tag-like substrings, decodes entities and collapses
// whitespace runs. It has no understanding of HTML structure.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return CollapseSpace(s)
}

// CollapseSpace replaces every whitespace run with a single space and trims.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// FoldDiacritics decomposes s and drops combining marks, so "Időpont"
// becomes "Idopont".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeForKey builds a comparison key: lowercase, diacritics folded,
// every run of characters outside [a-z0-9] replaced by one space.
// Only used for dedup keys, never for display.
func NormalizeForKey(s string) string {
	s = FoldDiacritics(strings.ToLower(s))
	s = nonKeyPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DateOnly formats t as YYYY-MM-DD in its own location, or "" when nil.
func DateOnly(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}
