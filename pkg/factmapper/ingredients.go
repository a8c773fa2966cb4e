package factmapper

import (
	"regexp"
	"strings"

	"github.com/labelsquor/squorcore/pkg/models"
)

var (
	additivePattern  = regexp.MustCompile(`(?i)\be\d{3,4}[a-z]?\b|stabilizer|stabiliser|emulsifier|emulgator`)
	allergenTokenRe  = regexp.MustCompile(`(?i)milk|wheat|soy|soya|nut|egg`)
)

// buildIngredientTree separates a normalized ingredient list into the first
// three "main" ingredients, additive-pattern matches, and allergen-keyword
// matches (spec.md §4.E).
func buildIngredientTree(ingredients []string) models.IngredientTree {
	tree := models.IngredientTree{}

	if len(ingredients) > 3 {
		tree.MainIngredients = append([]string{}, ingredients[:3]...)
	} else {
		tree.MainIngredients = append([]string{}, ingredients...)
	}

	for _, ing := range ingredients {
		if additivePattern.MatchString(ing) {
			tree.Additives = append(tree.Additives, ing)
		}
		if allergenTokenRe.MatchString(ing) {
			tree.Allergens = append(tree.Allergens, ing)
		}
	}

	return tree
}

// mapIngredients builds the Ingredients fact row from the raw list. Returns
// nil when the AI result carried no ingredients, in which case the caller
// should skip the write rather than closing the current row with an empty
// one.
func mapIngredients(ingredients []string) *ingredientFields {
	if len(ingredients) == 0 {
		return nil
	}
	return &ingredientFields{
		RawText:        strings.Join(ingredients, ", "),
		NormalizedList: ingredients,
		Tree:           buildIngredientTree(ingredients),
	}
}

type ingredientFields struct {
	RawText        string
	NormalizedList []string
	Tree           models.IngredientTree
}
