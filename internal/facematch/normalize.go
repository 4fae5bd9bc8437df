package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName folds a name for comparison: no diacritics, lowercase,
// dashes and underscores as spaces, single spaces.
func NormalizePersonName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether every word of query occurs in fullName after normalization.
// An empty query matches everything.
func NameMatches(query, fullName string) bool {
	name := NormalizePersonName(fullName)
	for _, word := range strings.Fields(NormalizePersonName(query)) {
		if !strings.Contains(name, word) {
			return false
		}
	}
	return true
}
