package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/labelsquor/squorcore/pkg/models"
)

// closeCurrent closes out whatever row is currently marked is_current for
// (table, product_version_id), the first half of the SCD-2 "close then
// open" write pattern shared by every fact family.
func closeCurrent(ctx context.Context, tx pgx.Tx, table, productVersionID string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET valid_to = now(), is_current = false
		WHERE product_version_id = $1 AND is_current`, table), productVersionID)
	if err != nil {
		return fmt.Errorf("closing current %s row for version %s: %w", table, productVersionID, err)
	}
	return nil
}

// WriteIngredients closes the current ingredients row for the version and
// opens a new one.
func (r *Repository) WriteIngredients(ctx context.Context, fact *models.IngredientFact) error {
	tree, err := json.Marshal(fact.Tree)
	if err != nil {
		return fmt.Errorf("marshalling ingredient tree: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting ingredients transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := closeCurrent(ctx, tx, "ingredient_facts", fact.ProductVersionID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO ingredient_facts
			(product_version_id, valid_from, is_current, raw_text, normalized_list, tree, last_confirmed_at)
		VALUES ($1, now(), true, $2, $3, $4, $5)
		RETURNING id, valid_from`,
		fact.ProductVersionID, fact.RawText, fact.NormalizedList, tree, fact.LastConfirmedAt,
	).Scan(&fact.ID, &fact.ValidFrom)
	if err != nil {
		return fmt.Errorf("inserting ingredient fact for version %s: %w", fact.ProductVersionID, err)
	}
	fact.IsCurrent = true

	return tx.Commit(ctx)
}

// WriteNutrition closes the current nutrition row for the version and opens
// a new one.
func (r *Repository) WriteNutrition(ctx context.Context, fact *models.NutritionFact) error {
	per100g, err := json.Marshal(fact.Per100g)
	if err != nil {
		return fmt.Errorf("marshalling per-100g nutrition: %w", err)
	}
	perServing, err := json.Marshal(fact.PerServing)
	if err != nil {
		return fmt.Errorf("marshalling per-serving nutrition: %w", err)
	}
	additional, err := json.Marshal(fact.Additional)
	if err != nil {
		return fmt.Errorf("marshalling additional nutrition: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting nutrition transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := closeCurrent(ctx, tx, "nutrition_facts", fact.ProductVersionID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO nutrition_facts (product_version_id, valid_from, is_current, per_100g, per_serving, additional)
		VALUES ($1, now(), true, $2, $3, $4)
		RETURNING id, valid_from`,
		fact.ProductVersionID, per100g, perServing, additional,
	).Scan(&fact.ID, &fact.ValidFrom)
	if err != nil {
		return fmt.Errorf("inserting nutrition fact for version %s: %w", fact.ProductVersionID, err)
	}
	fact.IsCurrent = true

	return tx.Commit(ctx)
}

// WriteAllergens closes the current allergens row for the version and opens
// a new one.
func (r *Repository) WriteAllergens(ctx context.Context, fact *models.AllergenFact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting allergens transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := closeCurrent(ctx, tx, "allergen_facts", fact.ProductVersionID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO allergen_facts (product_version_id, valid_from, is_current, declared_list, may_contain_list)
		VALUES ($1, now(), true, $2, $3)
		RETURNING id, valid_from`,
		fact.ProductVersionID, fact.DeclaredList, fact.MayContainList,
	).Scan(&fact.ID, &fact.ValidFrom)
	if err != nil {
		return fmt.Errorf("inserting allergen fact for version %s: %w", fact.ProductVersionID, err)
	}
	fact.IsCurrent = true

	return tx.Commit(ctx)
}

// WriteClaims closes the current claims row for the version and opens a new
// one.
func (r *Repository) WriteClaims(ctx context.Context, fact *models.ClaimFact) error {
	categories, err := json.Marshal(fact.Categories)
	if err != nil {
		return fmt.Errorf("marshalling claim categories: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting claims transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := closeCurrent(ctx, tx, "claim_facts", fact.ProductVersionID); err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO claim_facts (product_version_id, valid_from, is_current, raw_list, categories)
		VALUES ($1, now(), true, $2, $3)
		RETURNING id, valid_from`,
		fact.ProductVersionID, fact.RawList, categories,
	).Scan(&fact.ID, &fact.ValidFrom)
	if err != nil {
		return fmt.Errorf("inserting claim fact for version %s: %w", fact.ProductVersionID, err)
	}
	fact.IsCurrent = true

	return tx.Commit(ctx)
}

// WriteCertifications closes every currently-current certification row for
// the version (one per scheme) and opens the replacement set in a single
// transaction — certifications are the one fact family where more than one
// row is simultaneously current, so the whole set is replaced atomically
// rather than matched scheme-by-scheme.
func (r *Repository) WriteCertifications(ctx context.Context, facts []*models.CertificationFact) error {
	if len(facts) == 0 {
		return nil
	}
	versionID := facts[0].ProductVersionID

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting certifications transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := closeCurrent(ctx, tx, "certification_facts", versionID); err != nil {
		return err
	}

	for _, fact := range facts {
		err := tx.QueryRow(ctx, `
			INSERT INTO certification_facts (product_version_id, valid_from, is_current, scheme)
			VALUES ($1, now(), true, $2)
			RETURNING id, valid_from`,
			fact.ProductVersionID, fact.Scheme,
		).Scan(&fact.ID, &fact.ValidFrom)
		if err != nil {
			return fmt.Errorf("inserting certification fact %q for version %s: %w", fact.Scheme, versionID, err)
		}
		fact.IsCurrent = true
	}

	return tx.Commit(ctx)
}

// WriteSquorScore upserts the score row for (product_version_id, scheme)
// and replaces its component breakdown wholesale.
func (r *Repository) WriteSquorScore(ctx context.Context, score *models.SquorScore, components []*models.SquorComponent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting squor score transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, `
		INSERT INTO squor_scores (product_version_id, scheme, overall, grade, breakdown)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_version_id, scheme) DO UPDATE
			SET overall = EXCLUDED.overall, grade = EXCLUDED.grade, breakdown = EXCLUDED.breakdown,
			    created_at = now(), last_confirmed_at = NULL
		RETURNING id, created_at`,
		score.ProductVersionID, score.Scheme, score.Overall, score.Grade, score.Breakdown,
	).Scan(&score.ID, &score.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting squor score for version %s: %w", score.ProductVersionID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM squor_components WHERE squor_score_id = $1`, score.ID); err != nil {
		return fmt.Errorf("clearing old squor components for score %s: %w", score.ID, err)
	}

	for _, c := range components {
		c.SquorScoreID = score.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO squor_components (squor_score_id, component_key, weight, value, explanation)
			VALUES ($1, $2, $3, $4, nullif($5, ''))
			RETURNING id`,
			c.SquorScoreID, string(c.ComponentKey), c.Weight, c.Value, c.Explanation,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("inserting squor component %q for score %s: %w", c.ComponentKey, score.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// ReaffirmSquorScore stamps last_confirmed_at on every score row for
// versionID without touching overall/grade/breakdown or inserting anything
// new — used when a re-analysis produced an identical result.
func (r *Repository) ReaffirmSquorScore(ctx context.Context, versionID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE squor_scores SET last_confirmed_at = now() WHERE product_version_id = $1`,
		versionID)
	if err != nil {
		return fmt.Errorf("reaffirming squor score for version %s: %w", versionID, err)
	}
	return nil
}
