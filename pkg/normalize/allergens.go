package normalize

import "strings"

// allergenKeywords maps a canonical allergen family to the keywords that
// signal its presence in free text. Grounded on the original
// implementation's extract_allergens keyword table.
var allergenKeywords = map[string][]string{
	"milk":       {"milk", "dairy", "lactose", "whey", "casein", "cream", "butter"},
	"eggs":       {"egg", "eggs", "albumin", "mayonnaise"},
	"peanuts":    {"peanut", "peanuts", "groundnut"},
	"tree_nuts":  {"almond", "cashew", "walnut", "pistachio", "hazelnut", "pecan"},
	"wheat":      {"wheat", "gluten", "flour"},
	"soy":        {"soy", "soya", "soybean", "tofu"},
	"fish":       {"fish", "salmon", "tuna", "cod", "anchovy"},
	"shellfish":  {"shrimp", "crab", "lobster", "prawn", "shellfish"},
	"sesame":     {"sesame", "tahini"},
	"mustard":    {"mustard"},
	"celery":     {"celery"},
	"lupin":      {"lupin", "lupine"},
	"molluscs":   {"mollusc", "mollusk", "oyster", "mussel", "squid"},
	"sulphites":  {"sulphite", "sulfite", "sulphur", "sulfur"},
}

// ExtractAllergens scans free text for allergen-family keywords and returns
// the matched families, sorted, deduplicated.
func ExtractAllergens(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var found []string
	for _, family := range sortedAllergenFamilies() {
		for _, keyword := range allergenKeywords[family] {
			if strings.Contains(lower, keyword) {
				found = append(found, family)
				break
			}
		}
	}
	return found
}

func sortedAllergenFamilies() []string {
	// Deterministic order matters for stable test fixtures; the map above
	// is small and fixed, so a literal order is cheaper than sorting.
	return []string{
		"milk", "eggs", "peanuts", "tree_nuts", "wheat", "soy", "fish",
		"shellfish", "sesame", "mustard", "celery", "lupin", "molluscs",
		"sulphites",
	}
}
