package factmapper

import (
	"strings"

	"github.com/labelsquor/squorcore/pkg/models"
)

// claimKeywords buckets claim text into the fixed categories spec.md §4.E
// names, via a keyword dictionary. A claim matching more than one category
// is filed under every category it matches; a claim matching none falls
// into general.
var claimKeywords = map[models.ClaimCategory][]string{
	models.ClaimCategoryQuality:       {"premium", "authentic", "artisan", "high quality", "finest", "traditional"},
	models.ClaimCategoryHealth:        {"low fat", "low sugar", "sugar free", "no added sugar", "high protein", "fortified", "vitamin", "healthy", "diet", "low calorie"},
	models.ClaimCategoryOrigin:        {"made in", "product of", "imported", "local", "farm fresh", "locally sourced"},
	models.ClaimCategoryNegative:      {"no preservatives", "no artificial", "gmo free", "no msg", "chemical free"},
	models.ClaimCategoryEnvironmental: {"recyclable", "biodegradable", "sustainable", "eco-friendly", "compostable", "plastic free"},
}

func categorizeClaims(claims []string) map[models.ClaimCategory][]string {
	categories := map[models.ClaimCategory][]string{}

	for _, claim := range claims {
		lower := strings.ToLower(claim)
		matched := false
		for category, keywords := range claimKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					categories[category] = append(categories[category], claim)
					matched = true
					break
				}
			}
		}
		if !matched {
			categories[models.ClaimCategoryGeneral] = append(categories[models.ClaimCategoryGeneral], claim)
		}
	}

	return categories
}
