package aiadapter

import "github.com/labelsquor/squorcore/pkg/models"

// convertSquor scales each 0-5 component to 0-100 and computes the weighted
// overall score and letter grade (spec.md §4.D).
func convertSquor(raw rawSquor) (SquorBreakdown, float64, string) {
	breakdown := SquorBreakdown{
		Safety:         raw.S * 20,
		Quality:        raw.Q * 20,
		Usability:      raw.U * 20,
		Origin:         raw.O * 20,
		Responsibility: raw.R * 20,
		Reasons: map[string]string{
			"safety":         raw.Reasons["s"],
			"quality":        raw.Reasons["q"],
			"usability":      raw.Reasons["u"],
			"origin":         raw.Reasons["o"],
			"responsibility": raw.Reasons["r"],
		},
	}

	components := map[models.SquorComponentKey]float64{
		models.SquorComponentSafety:         breakdown.Safety,
		models.SquorComponentQuality:        breakdown.Quality,
		models.SquorComponentUsability:      breakdown.Usability,
		models.SquorComponentOrigin:         breakdown.Origin,
		models.SquorComponentResponsibility: breakdown.Responsibility,
	}

	overall := models.Overall(components)
	return breakdown, overall, models.Grade(overall)
}

// resolveBestImageIndex clamps the model's 1-based index into range and
// converts it to 0-based, falling back to the first image when the model's
// selection is missing or out of range (spec.md §4.D).
func resolveBestImageIndex(best BestImage, imageCount int) int {
	idx := best.Index - 1
	if idx < 0 || idx >= imageCount {
		return 0
	}
	return idx
}
