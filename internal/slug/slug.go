// Package slug derives URL-safe client identifiers from display names.
package slug

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen is the maximum slug length in bytes. Output is ASCII only.
const MaxLen = 50

// Derive lower-cases name, strips diacritics, collapses every run of
// characters outside [a-z0-9] into a single hyphen and trims hyphens from both
// ends. The result is at most MaxLen long. Derive(Derive(x)) == Derive(x).
func Derive(name string) string {
	folded := stripMarks(strings.ToLower(name))

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if isSlugRune(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	out := b.String()
	if len(out) > MaxLen {
		out = out[:MaxLen]
	}
	return strings.Trim(out, "-")
}

// Reserved are slugs that name fixed service routes or reserved subdomains.
// A client with one of them would never reach its own preview.
var Reserved = []string{
	"api", "clients", "setup", "metrics", "preview",
	"www", "admin", "mail", "ftp", "chat-teste",
}

// IsReserved reports whether s is in Reserved or in extra.
func IsReserved(s string, extra ...string) bool {
	return slices.Contains(Reserved, s) || slices.Contains(extra, s)
}

// Valid reports whether s is already a well-formed slug.
func Valid(s string) bool {
	return s != "" && Derive(s) == s
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
