// Package factmapper translates a parsed aiadapter.AnalysisResult into the
// five SCD-2 fact families plus the SquorScore/SquorComponent rows for a
// ProductVersion (spec.md §4.E). It owns the mapping rules only; persistence
// is delegated to a FactStore, concretely implemented by pkg/repository on
// top of pgx, grounded on original_source/app/services/ai_pipeline_service.py's
// _save_ingredients/_save_nutrition/_save_allergens/_save_claims/
// _save_certifications/_process_scoring methods.
package factmapper

import (
	"context"

	"github.com/labelsquor/squorcore/pkg/models"
)

// FactStore persists one already-built fact row or score per call. Each
// write is expected to run in its own transaction that closes the
// previously-current row (if any) and opens the new one atomically — the
// SCD-2 "close then open" sequence from spec.md §4.E. A failure writing one
// family must not prevent the Mapper from attempting the others.
type FactStore interface {
	WriteIngredients(ctx context.Context, fact *models.IngredientFact) error
	WriteNutrition(ctx context.Context, fact *models.NutritionFact) error
	WriteAllergens(ctx context.Context, fact *models.AllergenFact) error
	WriteClaims(ctx context.Context, fact *models.ClaimFact) error
	WriteCertifications(ctx context.Context, facts []*models.CertificationFact) error
	WriteSquorScore(ctx context.Context, score *models.SquorScore, components []*models.SquorComponent) error

	// ReaffirmSquorScore touches last_confirmed_at on the current SquorScore
	// for versionID without creating a new row or any new fact rows, used
	// when the AI result is a duplicate-analysis copy (spec.md §4.E).
	ReaffirmSquorScore(ctx context.Context, versionID string) error
}

// FamilyResult records the outcome of mapping one fact family, so the
// caller can log and continue past a single family's failure without losing
// visibility into which ones succeeded.
type FamilyResult struct {
	Family models.FactFamily
	Err    error
}

// MapResult is the aggregate outcome of mapping one AnalysisResult.
type MapResult struct {
	VersionID  string
	Families   []FamilyResult
	Score      *models.SquorScore
	Components []*models.SquorComponent
	Reaffirmed bool
}

// HasErrors reports whether any fact family failed to write.
func (r *MapResult) HasErrors() bool {
	for _, f := range r.Families {
		if f.Err != nil {
			return true
		}
	}
	return false
}
