package factmapper

// knownNutritionKeys are the fields the AI output documents explicitly
// (prompt.go's schema); anything else lands in the Additional bag so no
// extra detail the model volunteers is silently discarded.
var knownNutritionKeys = map[string]bool{
	"energy_kcal":     true,
	"protein_g":       true,
	"carbs_g":         true,
	"sugar_g":         true,
	"fat_g":           true,
	"saturated_fat_g": true,
	"sodium_mg":       true,
}

// nutritionFields is the split nutrition payload handed to the FactStore.
// The AI schema reports a single flat panel per spec.md §4.D rather than
// separate per-100g/per-serving blocks, so the whole panel is treated as
// per_100g; per_serving stays empty until a future schema revision adds it.
type nutritionFields struct {
	Per100g    map[string]float64
	PerServing map[string]float64
	Additional map[string]float64
}

func mapNutrition(nutrition map[string]float64) *nutritionFields {
	if len(nutrition) == 0 {
		return nil
	}

	per100g := make(map[string]float64, len(nutrition))
	additional := map[string]float64{}
	for k, v := range nutrition {
		if knownNutritionKeys[k] {
			per100g[k] = v
		} else {
			additional[k] = v
		}
	}

	fields := &nutritionFields{Per100g: per100g, PerServing: map[string]float64{}}
	if len(additional) > 0 {
		fields.Additional = additional
	}
	return fields
}
