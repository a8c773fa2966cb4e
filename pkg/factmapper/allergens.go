package factmapper

import "strings"

// commonAllergens is the fixed keyword set warnings are scanned against,
// grounded on the original implementation's _save_allergens common_allergens
// list.
var commonAllergens = []string{"milk", "wheat", "soy", "nuts", "eggs", "fish", "shellfish"}

// allergenFields is the declared/may-contain split built from warning text.
type allergenFields struct {
	DeclaredList   []string
	MayContainList []string
}

// mapAllergens scans the AI output's warnings for allergen keywords,
// distinguishing a bare mention from "may contain" phrasing (spec.md §4.E).
// Returns nil when no warning mentions a tracked allergen, so a product with
// no allergen info does not close the current row with an empty one.
func mapAllergens(warnings []string) *allergenFields {
	var declared, mayContain []string
	seenDeclared := map[string]bool{}
	seenMayContain := map[string]bool{}

	for _, warning := range warnings {
		lower := strings.ToLower(warning)
		mentionsMayContain := strings.Contains(lower, "may contain")

		for _, allergen := range commonAllergens {
			if !strings.Contains(lower, allergen) {
				continue
			}
			if mentionsMayContain {
				if !seenMayContain[allergen] {
					mayContain = append(mayContain, allergen)
					seenMayContain[allergen] = true
				}
			} else if !seenDeclared[allergen] {
				declared = append(declared, allergen)
				seenDeclared[allergen] = true
			}
		}
	}

	if len(declared) == 0 && len(mayContain) == 0 {
		return nil
	}
	return &allergenFields{DeclaredList: declared, MayContainList: mayContain}
}
