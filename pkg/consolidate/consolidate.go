// Package consolidate groups raw listings scraped from multiple retailers
// into a single canonical product record per spec.md §4.B, grounded on
// original_source/app/services/product_consolidator.py's merge rules
// (sources/source_urls, image union, longest description, price range plus
// mode MRP, length+token-coverage name picking) with the cross-encoder name
// ranker replaced by the deterministic fallback the original itself used
// when sentence_transformers was unavailable.
package consolidate

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/labelsquor/squorcore/pkg/normalize"
)

// importantFieldCount is the denominator in the confidence formula
// (spec.md §4.B step 5): name, brand, ingredients, nutrition, images,
// pack_size, category.
const importantFieldCount = 7

// Listing is one retailer's raw scraped snapshot. It embeds the fields
// normalize.RawListing already hashes on, plus MRP, which the content hash
// and unique-product-key deliberately ignore but consolidation still needs
// for the price-consistency rule.
type Listing struct {
	Raw normalize.RawListing
	MRP float64
}

// Group is one consolidated product: either a single listing passed
// through unchanged, or several listings merged by the rules in spec.md
// §4.B step 4.
type Group struct {
	Key             string
	Sources         []string
	SourceURLs      map[string]string
	Name            string
	Brand           string
	Category        string
	PackSize        string
	Description     string
	Ingredients     []string
	Nutrition       map[string]float64
	Claims          []string
	Images          []string
	MinPrice        float64
	MaxPrice        float64
	AvgPrice        float64
	MRP             float64
	ConfidenceScore float64
}

// Dropped records a listing that could not be consolidated and why
// (spec.md §4.B failure semantics).
type Dropped struct {
	Listing Listing
	Reason  string
}

// Result is the output of Consolidate: consolidated groups in first-seen
// order, plus any listings dropped along the way.
type Result struct {
	Groups  []Group
	Dropped []Dropped
}

// Consolidate groups listings by normalize.UniqueProductKey and merges each
// group. It is idempotent under re-invocation with the same inputs in the
// same order (spec.md §4.B invariant): grouping and every merge rule below
// are pure functions of the input slice, with no randomness or wall-clock
// dependency.
func Consolidate(listings []Listing) Result {
	var result Result

	order := make([]string, 0, len(listings))
	buckets := make(map[string][]Listing, len(listings))

	for _, l := range listings {
		name := strings.TrimSpace(l.Raw.Name)
		if name == "" {
			result.Dropped = append(result.Dropped, Dropped{Listing: l, Reason: "missing required field: name"})
			continue
		}
		if strings.TrimSpace(l.Raw.Brand) == "" {
			l.Raw.Brand = firstToken(name)
		}

		key := normalize.UniqueProductKey(l.Raw)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], l)
	}

	for _, key := range order {
		result.Groups = append(result.Groups, mergeGroup(key, buckets[key]))
	}
	return result
}

func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// mergeGroup applies every field-level merge rule to members, then attaches
// a confidence score. A single-member group still runs through the same
// rules (spec.md §4.B step 3's "pass through unchanged" describes the
// values, not a separate code path), keeping the output deterministic and
// uniform regardless of group size.
func mergeGroup(key string, members []Listing) Group {
	g := Group{
		Key:        key,
		SourceURLs: make(map[string]string, len(members)),
	}

	for _, m := range members {
		g.Sources = append(g.Sources, m.Raw.Retailer)
		if m.Raw.URL != "" {
			g.SourceURLs[m.Raw.Retailer] = m.Raw.URL
		}
	}

	g.Brand = pickMostCommon(collectNonEmpty(members, func(l Listing) string { return l.Raw.Brand }))
	g.Category = pickMostCommon(collectNonEmpty(members, func(l Listing) string { return l.Raw.Category }))
	g.Name = pickBestName(members)
	g.Description = longestNonEmpty(collectNonEmpty(members, func(l Listing) string { return l.Raw.Description }))
	g.PackSize = pickPackSize(collectNonEmpty(members, func(l Listing) string { return l.Raw.PackSize }))
	g.Ingredients = unionStrings(members, func(l Listing) []string { return l.Raw.Ingredients })
	g.Claims = unionStrings(members, func(l Listing) []string { return l.Raw.Claims })
	g.Images = unionImages(members)
	g.Nutrition = mergeNutrition(members)

	min, max, avg, consistency := priceStats(members)
	g.MinPrice, g.MaxPrice, g.AvgPrice = min, max, avg
	g.MRP = modeMRP(members)

	g.ConfidenceScore = confidence(members, g, consistency)
	return g
}

func collectNonEmpty(members []Listing, field func(Listing) string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if v := strings.TrimSpace(field(m)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// pickMostCommon returns the most frequent value, ties broken by first
// occurrence, matching the original's frequency-weighted _pick_best_value
// with every listing given equal confidence (this module has no
// per-listing confidence input of its own).
func pickMostCommon(values []string) string {
	if len(values) == 0 {
		return ""
	}
	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := order[0]
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

func longestNonEmpty(values []string) string {
	best := ""
	for _, v := range values {
		if len(v) > len(best) {
			best = v
		}
	}
	return best
}

// specificPackUnits are preferred over coarser units per spec.md §4.B step 4.
var specificPackUnits = map[string]bool{"g": true, "ml": true, "pcs": true, "sachets": true}

var packSizeUnitPattern = regexp.MustCompile(`[\d.]+\s*([a-zA-Z]+)`)

// packSizeUnit extracts the unit token from a pack-size string (e.g. "g"
// from "70g", "kg" from "0.5 kg"), matching the exact unit rather than a
// substring so "kg" is never mistaken for "g".
func packSizeUnit(v string) string {
	m := packSizeUnitPattern.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func pickPackSize(values []string) string {
	if len(values) == 0 {
		return ""
	}
	for _, v := range values {
		if specificPackUnits[packSizeUnit(v)] {
			return v
		}
	}
	return values[0]
}

// unionStrings collects the distinct, order-preserving union of a list
// field across members, case/whitespace-normalized for comparison but
// returned in its first-seen casing.
func unionStrings(members []Listing, field func(Listing) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range members {
		for _, item := range field(m) {
			trimmed := strings.TrimSpace(item)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, trimmed)
		}
	}
	return out
}

func unionImages(members []Listing) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range members {
		for _, raw := range m.Raw.Images {
			clean := normalize.StripURLQuery(raw)
			if clean == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			out = append(out, raw)
		}
	}
	return out
}

// mergeNutrition takes the member with the most populated nutrition map as
// a base, then fills any keys it is missing from the others. This is the
// structured-data analog of the original's longest-text-plus-missing-tokens
// rule, since this module's RawListing already carries nutrition as a
// parsed map rather than raw label text.
func mergeNutrition(members []Listing) map[string]float64 {
	var base map[string]float64
	for _, m := range members {
		if len(m.Raw.Nutrition) > len(base) {
			base = m.Raw.Nutrition
		}
	}
	merged := make(map[string]float64, len(base))
	for k, v := range base {
		merged[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, m := range members {
		for k, v := range m.Raw.Nutrition {
			key := strings.ToLower(strings.TrimSpace(k))
			if _, ok := merged[key]; !ok {
				merged[key] = v
			}
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// pickBestName scores each candidate name by how well it covers the
// vocabulary used across all candidates (a stand-in for "complete product
// name with brand and variant" when no ML ranker is available, per
// spec.md §4.B step 4 and the original's length-based fallback), tie-broken
// by length, then by first occurrence for full determinism.
func pickBestName(members []Listing) string {
	names := collectNonEmpty(members, func(l Listing) string { return l.Raw.Name })
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}

	vocab := make(map[string]bool)
	for _, n := range names {
		for _, tok := range strings.Fields(strings.ToLower(n)) {
			vocab[tok] = true
		}
	}

	type scored struct {
		name     string
		coverage float64
		length   int
		index    int
	}
	candidates := make([]scored, 0, len(names))
	for i, n := range names {
		tokens := strings.Fields(strings.ToLower(n))
		present := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			present[t] = true
		}
		candidates = append(candidates, scored{
			name:     n,
			coverage: float64(len(present)) / float64(len(vocab)),
			length:   len(n),
			index:    i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].coverage != candidates[j].coverage {
			return candidates[i].coverage > candidates[j].coverage
		}
		if candidates[i].length != candidates[j].length {
			return candidates[i].length > candidates[j].length
		}
		return candidates[i].index < candidates[j].index
	})
	return candidates[0].name
}

// priceStats returns (min, max, avg, consistency) over every present price,
// where consistency = max(0, 1 - stdev/mean) per spec.md §4.B step 5, and
// is defined as 1 (perfectly consistent) when fewer than two prices are
// present, matching the original's single-price confidence contribution.
func priceStats(members []Listing) (min, max, avg, consistency float64) {
	var prices []float64
	for _, m := range members {
		if m.Raw.Price > 0 {
			prices = append(prices, m.Raw.Price)
		}
	}
	if len(prices) == 0 {
		return 0, 0, 0, 0
	}

	min, max = prices[0], prices[0]
	sum := 0.0
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
		sum += p
	}
	avg = sum / float64(len(prices))

	if len(prices) < 2 || avg == 0 {
		return min, max, avg, 1
	}

	variance := 0.0
	for _, p := range prices {
		d := p - avg
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(len(prices)-1))
	consistency = 1 - stdev/avg
	if consistency < 0 {
		consistency = 0
	}
	return min, max, avg, consistency
}

// modeMRP returns the most frequent MRP across members, ties broken by
// first occurrence (spec.md §4.B step 4: "keep mrp as most frequent").
func modeMRP(members []Listing) float64 {
	var values []float64
	for _, m := range members {
		if m.MRP > 0 {
			values = append(values, m.MRP)
		}
	}
	if len(values) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(values))
	order := make([]float64, 0, len(values))
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := order[0]
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

// confidence implements spec.md §4.B step 5 exactly:
// 0.3·min(sources/3, 1) + 0.4·(present_important_fields/7) + 0.3·price_consistency.
func confidence(members []Listing, g Group, priceConsistency float64) float64 {
	sourceScore := math.Min(float64(len(members))/3, 1) * 0.3

	present := 0
	if g.Name != "" {
		present++
	}
	if g.Brand != "" {
		present++
	}
	if len(g.Ingredients) > 0 {
		present++
	}
	if len(g.Nutrition) > 0 {
		present++
	}
	if len(g.Images) > 0 {
		present++
	}
	if g.PackSize != "" {
		present++
	}
	if g.Category != "" {
		present++
	}
	completenessScore := (float64(present) / importantFieldCount) * 0.4

	consistencyScore := priceConsistency * 0.3

	score := sourceScore + completenessScore + consistencyScore
	if score > 1 {
		score = 1
	}
	return score
}
