package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RawListing is the subset of a scraped listing that feeds the content hash
// and unique product key. Fields absent from a source are left at their zero
// value; ContentHash never errors on missing data.
type RawListing struct {
	Retailer      string
	URL           string
	Name          string
	Brand         string
	Price         float64
	PackSize      string
	Description   string
	Ingredients   []string
	Nutrition     map[string]float64
	Claims        []string
	Images        []string
	Category      string
	EAN           string
	RetailerProdID string
}

// contentFields is the canonical projection of a listing used to compute its
// content hash. json.Marshal emits struct fields in declaration order, so the
// field order here fixes the key order; every slice value is pre-sorted by
// the caller.
type contentFields struct {
	Name        string             `json:"name"`
	Brand       string             `json:"brand"`
	Price       float64            `json:"price"`
	Weight      string             `json:"weight"`
	PackSize    string             `json:"pack_size"`
	Description string             `json:"description"`
	Ingredients []string           `json:"ingredients"`
	Nutrition   map[string]float64 `json:"nutrition"`
	Claims      []string           `json:"claims"`
	Images      []string           `json:"images"`
	Category    string             `json:"category"`
}

// ContentHash computes the SHA-256 hex digest of the canonical-JSON
// normalization of a listing's semantic content (spec.md §4.A). Two listings
// that differ only in image query strings, field ordering, or
// whitespace/case are guaranteed to hash identically.
func ContentHash(l RawListing) string {
	fields := contentFields{
		Name:        strings.ToLower(strings.TrimSpace(l.Name)),
		Brand:       normalizeBrandField(l.Brand),
		Price:       l.Price,
		Weight:      strings.TrimSpace(l.PackSize),
		PackSize:    strings.TrimSpace(l.PackSize),
		Description: strings.ToLower(strings.TrimSpace(l.Description)),
		Ingredients: normalizeStringList(l.Ingredients),
		Nutrition:   normalizeNutrition(l.Nutrition),
		Claims:      normalizeStringList(l.Claims),
		Images:      normalizeImageURLs(l.Images),
		Category:    strings.ToLower(strings.TrimSpace(l.Category)),
	}

	payload, err := canonicalJSON(fields)
	if err != nil {
		// contentFields is a fixed, json-safe shape; this cannot fail in
		// practice, but ContentHash must never panic on malformed input.
		payload = []byte("{}")
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON serializes v with sorted map keys and no extraneous
// whitespace, matching Go's default encoding/json behavior for maps (which
// already sorts string keys) and structs (which preserve field order, so the
// contentFields struct above fixes the key order deterministically).
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func normalizeBrandField(brand string) string {
	return strings.ToLower(strings.TrimSpace(BrandName(brand)))
}

func normalizeStringList(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

func normalizeNutrition(nutrition map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(nutrition))
	for k, v := range nutrition {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func normalizeImageURLs(urls []string) []string {
	if len(urls) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		clean := StripURLQuery(raw)
		if clean != "" {
			out = append(out, clean)
		}
	}
	sort.Strings(out)
	return out
}

// StripURLQuery removes query string and fragment from a URL for
// comparison purposes, tolerating malformed URLs by falling back to naive
// string splitting.
func StripURLQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// eanCandidate returns the digit-only form of an EAN/GTIN string when it is
// a checksum-valid GTIN (8/12/13/14 digits), else "".
func eanCandidate(ean string) string {
	return ParseGTIN(ean)
}

// retailerProductID extracts a retailer-specific product id from a listing
// URL for the retailers this system knows about (bigbasket, blinkit, zepto).
// Returns "" when the URL does not match a known pattern.
func retailerProductID(rawURL string) string {
	patterns := []struct {
		prefix string
		re     *regexp.Regexp
	}{
		{"bb_", regexp.MustCompile(`bigbasket\.com/pd/(\d+)`)},
		{"bk_", regexp.MustCompile(`blinkit\.com/prn/[^/]+/prid/(\d+)`)},
		{"ze_", regexp.MustCompile(`zeptonow\.com/pn/[^/]+/pvid/([a-zA-Z0-9\-]+)`)},
	}
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(rawURL); m != nil {
			return p.prefix + m[1]
		}
	}
	return ""
}

// UniqueProductKey derives the deduplication key for a listing, preferring
// EAN/GTIN, then a retailer-specific product id parsed from the URL, then a
// hash over brand|name|pack_size (spec.md §4.A).
func UniqueProductKey(l RawListing) string {
	if ean := eanCandidate(l.EAN); ean != "" {
		return "ean_" + ean
	}
	if l.RetailerProdID != "" {
		if prefix := retailerKeyPrefix(l.URL); prefix != "" {
			return prefix + l.RetailerProdID
		}
	}
	if id := retailerProductID(l.URL); id != "" {
		return id
	}

	basis := fmt.Sprintf("%s|%s|%s",
		normalizeBrandField(l.Brand),
		strings.ToLower(strings.TrimSpace(l.Name)),
		strings.ToLower(strings.TrimSpace(l.PackSize)))
	sum := sha256.Sum256([]byte(basis))
	return "hash_" + hex.EncodeToString(sum[:])[:16]
}

func retailerKeyPrefix(rawURL string) string {
	switch {
	case strings.Contains(rawURL, "bigbasket.com"):
		return "bb_"
	case strings.Contains(rawURL, "blinkit.com"):
		return "bk_"
	case strings.Contains(rawURL, "zeptonow.com"):
		return "ze_"
	default:
		return ""
	}
}

// ShouldCreateNewVersion determines whether a new ProductVersion should be
// created: true iff there is no prior hash or the hashes differ
// (spec.md §4.A). It never inspects previousHash for validity beyond emptiness.
func ShouldCreateNewVersion(current RawListing, previousHash string) (bool, string) {
	currentHash := ContentHash(current)
	if previousHash == "" {
		return true, "no previous version exists"
	}
	if currentHash != previousHash {
		return true, fmt.Sprintf("content changed (hash: %s)", truncate(currentHash, 8))
	}
	return false, fmt.Sprintf("content identical (hash: %s)", truncate(currentHash, 8))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// formatPrice renders a float with stable precision, avoiding
// locale-dependent formatting surprises. It has no caller in this package;
// the dedup-key fallback basis is brand|name|pack_size.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
