// Package textnorm canonicalizes free text for key generation and
// substring matching. Everything that compares card names, titles, or
// search queries goes through Normalize first.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	wsRun   = regexp.MustCompile(`\s+`)
	jaAlias = regexp.MustCompile(`\b(?:jap|jpn|jp|giapponese)\b`)
	enAlias = regexp.MustCompile(`\b(?:eng|en|english|inglese)\b`)
)

// Normalize lowercases, strips diacritics (NFD decomposition, combining
// marks removed), collapses whitespace runs to single spaces, and trims.
// Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = wsRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// NormalizeQuery applies Normalize and then rewrites language aliases to
// their short forms so "JAP"/"jpn"/"giapponese" all compare as "ja".
func NormalizeQuery(s string) string {
	out := Normalize(s)
	out = jaAlias.ReplaceAllString(out, " ja ")
	out = enAlias.ReplaceAllString(out, " en ")
	out = wsRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
