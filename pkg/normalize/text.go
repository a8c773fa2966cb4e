// Package normalize implements the pure, I/O-free normalization functions
// that underpin product deduplication and content-hash versioning: text and
// brand canonicalization, content hashing, and unique product keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// corporateSuffixes is the closed set of trailing corporate suffixes
// stripped from brand names during normalization.
var corporateSuffixes = []string{
	"ltd", "limited", "inc", "incorporated", "corp", "corporation",
	"llc", "llp", "pvt", "private", "co", "company", "industries",
	"foods", "brands", "group",
}

var nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9\s\-]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// Text lowercases, accent-folds, and strips punctuation from s, collapsing
// whitespace to single spaces. It never panics on empty or malformed input.
func Text(s string) string {
	if s == "" {
		return ""
	}
	folded := stripAccents(s)
	folded = strings.ToLower(folded)
	folded = whitespaceRe.ReplaceAllString(folded, " ")
	folded = nonAlphanumericRe.ReplaceAllString(folded, "")
	return strings.TrimSpace(folded)
}

// stripAccents removes combining diacritical marks via NFKD decomposition.
func stripAccents(s string) string {
	t := transform.Chain(norm.NFKD, transform.RemoveFunc(isMn))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// BrandName normalizes a brand name for deduplication: standard text
// normalization followed by removal of a closed set of corporate suffixes.
func BrandName(name string) string {
	n := Text(name)
	for _, suffix := range corporateSuffixes {
		n = trimTrailingWord(n, suffix)
	}
	return strings.TrimSpace(n)
}

// trimTrailingWord removes a single trailing whole-word occurrence of word
// from s, tolerating an optional trailing period already stripped by Text.
func trimTrailingWord(s, word string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	if fields[len(fields)-1] == word {
		return strings.Join(fields[:len(fields)-1], " ")
	}
	return s
}

// ProductName normalizes a product name, optionally stripping a leading
// occurrence of the (already-normalized) brand name.
func ProductName(name, brand string) string {
	n := Text(name)
	if brand == "" {
		return n
	}
	b := Text(brand)
	return strings.TrimSpace(strings.Replace(n, b, "", 1))
}

// Category normalizes a category label, dropping a small set of generic
// trailing terms ("products", "items", "goods") that add no signal.
func Category(category string) string {
	n := Text(category)
	for _, term := range []string{"products", "items", "goods"} {
		n = strings.TrimSpace(strings.ReplaceAll(n, term, ""))
	}
	return whitespaceRe.ReplaceAllString(n, " ")
}
