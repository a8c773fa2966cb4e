package factmapper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/labelsquor/squorcore/pkg/aiadapter"
	"github.com/labelsquor/squorcore/pkg/models"
)

// Mapper writes an AnalysisResult's content into the versioned fact tables
// for one ProductVersion (spec.md §4.E).
type Mapper struct {
	store FactStore
	now   func() time.Time
}

// NewMapper constructs a Mapper over store.
func NewMapper(store FactStore) *Mapper {
	return &Mapper{store: store, now: time.Now}
}

// MapAnalysis writes every fact family and the SQUOR score for versionID.
// When result.DuplicateAnalysis is set, no new fact or score rows are
// written; the existing current score is only reaffirmed (spec.md §4.E).
// A failure in one family does not stop the others from being attempted;
// every family's outcome is reported in the returned MapResult so the
// caller (the scoring stage body) can decide whether the overall stage
// succeeded.
func (m *Mapper) MapAnalysis(ctx context.Context, versionID string, result *aiadapter.AnalysisResult) (*MapResult, error) {
	if result.DuplicateAnalysis {
		err := m.store.ReaffirmSquorScore(ctx, versionID)
		if err != nil {
			slog.Error("failed to reaffirm duplicate analysis", "version_id", versionID, "error", err)
		}
		return &MapResult{VersionID: versionID, Reaffirmed: true}, err
	}

	mapResult := &MapResult{VersionID: versionID}
	now := m.now()

	mapResult.Families = append(mapResult.Families, m.writeIngredients(ctx, versionID, result.Ingredients, now))
	mapResult.Families = append(mapResult.Families, m.writeNutrition(ctx, versionID, result.Nutrition, now))
	mapResult.Families = append(mapResult.Families, m.writeAllergens(ctx, versionID, result.Warnings, now))
	mapResult.Families = append(mapResult.Families, m.writeClaims(ctx, versionID, result.Claims, now))
	mapResult.Families = append(mapResult.Families, m.writeCertifications(ctx, versionID, result.Certifications, now))

	score, components, err := m.writeScore(ctx, versionID, result, now)
	mapResult.Score = score
	mapResult.Components = components
	if err != nil {
		slog.Error("failed to write squor score", "version_id", versionID, "error", err)
		return mapResult, err
	}

	return mapResult, nil
}

func (m *Mapper) writeIngredients(ctx context.Context, versionID string, ingredients []string, now time.Time) FamilyResult {
	res := FamilyResult{Family: models.FactFamilyIngredients}
	fields := mapIngredients(ingredients)
	if fields == nil {
		return res
	}

	fact := &models.IngredientFact{
		SCD2:           models.NewSCD2(uuid.NewString(), versionID, now),
		RawText:        fields.RawText,
		NormalizedList: fields.NormalizedList,
		Tree:           fields.Tree,
	}
	res.Err = m.store.WriteIngredients(ctx, fact)
	if res.Err != nil {
		slog.Error("failed to write ingredients fact", "version_id", versionID, "error", res.Err)
	}
	return res
}

func (m *Mapper) writeNutrition(ctx context.Context, versionID string, nutrition map[string]float64, now time.Time) FamilyResult {
	res := FamilyResult{Family: models.FactFamilyNutrition}
	fields := mapNutrition(nutrition)
	if fields == nil {
		return res
	}

	fact := &models.NutritionFact{
		SCD2:       models.NewSCD2(uuid.NewString(), versionID, now),
		Per100g:    fields.Per100g,
		PerServing: fields.PerServing,
		Additional: fields.Additional,
	}
	res.Err = m.store.WriteNutrition(ctx, fact)
	if res.Err != nil {
		slog.Error("failed to write nutrition fact", "version_id", versionID, "error", res.Err)
	}
	return res
}

func (m *Mapper) writeAllergens(ctx context.Context, versionID string, warnings []string, now time.Time) FamilyResult {
	res := FamilyResult{Family: models.FactFamilyAllergens}
	fields := mapAllergens(warnings)
	if fields == nil {
		return res
	}

	fact := &models.AllergenFact{
		SCD2:           models.NewSCD2(uuid.NewString(), versionID, now),
		DeclaredList:   fields.DeclaredList,
		MayContainList: fields.MayContainList,
	}
	res.Err = m.store.WriteAllergens(ctx, fact)
	if res.Err != nil {
		slog.Error("failed to write allergens fact", "version_id", versionID, "error", res.Err)
	}
	return res
}

func (m *Mapper) writeClaims(ctx context.Context, versionID string, claims []string, now time.Time) FamilyResult {
	res := FamilyResult{Family: models.FactFamilyClaims}
	if len(claims) == 0 {
		return res
	}

	fact := &models.ClaimFact{
		SCD2:       models.NewSCD2(uuid.NewString(), versionID, now),
		RawList:    claims,
		Categories: categorizeClaims(claims),
	}
	res.Err = m.store.WriteClaims(ctx, fact)
	if res.Err != nil {
		slog.Error("failed to write claims fact", "version_id", versionID, "error", res.Err)
	}
	return res
}

func (m *Mapper) writeCertifications(ctx context.Context, versionID string, schemes []string, now time.Time) FamilyResult {
	res := FamilyResult{Family: models.FactFamilyCertifications}
	if len(schemes) == 0 {
		return res
	}

	facts := make([]*models.CertificationFact, 0, len(schemes))
	for _, scheme := range schemes {
		facts = append(facts, &models.CertificationFact{
			SCD2:   models.NewSCD2(uuid.NewString(), versionID, now),
			Scheme: scheme,
		})
	}
	res.Err = m.store.WriteCertifications(ctx, facts)
	if res.Err != nil {
		slog.Error("failed to write certifications fact", "version_id", versionID, "error", res.Err)
	}
	return res
}

func (m *Mapper) writeScore(ctx context.Context, versionID string, result *aiadapter.AnalysisResult, now time.Time) (*models.SquorScore, []*models.SquorComponent, error) {
	score := &models.SquorScore{
		ID:               uuid.NewString(),
		ProductVersionID: versionID,
		Scheme:           "SQUOR_V2",
		Overall:          result.OverallScore,
		Grade:            result.Grade,
		CreatedAt:        now,
	}

	components := []*models.SquorComponent{
		newComponent(score.ID, models.SquorComponentSafety, result.Squor.Safety, result.Squor.Reasons["safety"]),
		newComponent(score.ID, models.SquorComponentQuality, result.Squor.Quality, result.Squor.Reasons["quality"]),
		newComponent(score.ID, models.SquorComponentUsability, result.Squor.Usability, result.Squor.Reasons["usability"]),
		newComponent(score.ID, models.SquorComponentOrigin, result.Squor.Origin, result.Squor.Reasons["origin"]),
		newComponent(score.ID, models.SquorComponentResponsibility, result.Squor.Responsibility, result.Squor.Reasons["responsibility"]),
	}

	if err := m.store.WriteSquorScore(ctx, score, components); err != nil {
		return nil, nil, err
	}
	return score, components, nil
}

func newComponent(scoreID string, key models.SquorComponentKey, value float64, explanation string) *models.SquorComponent {
	return &models.SquorComponent{
		ID:           uuid.NewString(),
		SquorScoreID: scoreID,
		ComponentKey: key,
		Weight:       models.SquorWeights[key],
		Value:        value,
		Explanation:  explanation,
	}
}
