package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/normalize"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique_violation.
const pgUniqueViolation = "23505"

// GetItem loads a non-deleted workflow item by id.
func (r *Repository) GetItem(ctx context.Context, workflowID string) (*models.WorkflowItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, product_id, source_page_id, priority, state, stage, retry_count,
		       next_retry_at, last_error, stage_details, created_at, updated_at
		FROM workflow_items
		WHERE id = $1 AND deleted_at IS NULL`, workflowID)

	item, err := scanWorkflowItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("workflow item %s: %w", workflowID, err)
		}
		return nil, fmt.Errorf("loading workflow item %s: %w", workflowID, err)
	}
	return item, nil
}

// SaveItem inserts a new workflow item (when item.ID is empty) or updates an
// existing one in place. Callers always fetch via GetItem before mutating an
// existing item, so the update path never needs a separate existence check.
func (r *Repository) SaveItem(ctx context.Context, item *models.WorkflowItem) error {
	details, err := json.Marshal(item.StageDetails)
	if err != nil {
		return fmt.Errorf("marshalling stage details: %w", err)
	}

	productID := nullableUUID(item.ProductID)
	sourcePageID := nullableUUID(item.SourcePageID)

	if item.ID == "" {
		row := r.pool.QueryRow(ctx, `
			INSERT INTO workflow_items
				(product_id, source_page_id, priority, state, stage, retry_count,
				 next_retry_at, last_error, stage_details)
			VALUES ($1, $2, $3, $4, $5, $6, $7, nullif($8, ''), $9)
			RETURNING id, created_at, updated_at`,
			productID, sourcePageID, item.Priority, string(item.State), string(item.Stage),
			item.RetryCount, item.NextRetryAt, item.LastError, details)
		if err := row.Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return fmt.Errorf("inserting workflow item: %w", err)
		}
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_items
		SET product_id = $1, source_page_id = $2, priority = $3,
		    state = $4, stage = $5, retry_count = $6, next_retry_at = $7,
		    last_error = nullif($8, ''), stage_details = $9, updated_at = now()
		WHERE id = $10 AND deleted_at IS NULL`,
		productID, sourcePageID, item.Priority, string(item.State), string(item.Stage),
		item.RetryCount, item.NextRetryAt, item.LastError, details, item.ID)
	if err != nil {
		return fmt.Errorf("updating workflow item %s: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow item %s: %w", item.ID, pgx.ErrNoRows)
	}
	return nil
}

// RecordTransition appends an audit row for one state change.
func (r *Repository) RecordTransition(ctx context.Context, t *models.WorkflowTransition) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workflow_transitions (workflow_id, from_state, to_state, reason)
		VALUES ($1, $2, $3, nullif($4, ''))`,
		t.WorkflowID, string(t.FromState), string(t.ToState), t.Reason)
	if err != nil {
		return fmt.Errorf("recording transition for workflow %s: %w", t.WorkflowID, err)
	}
	return nil
}

// GetSourcePage loads a crawled source page by id.
func (r *Repository) GetSourcePage(ctx context.Context, sourcePageID string) (*models.SourcePage, error) {
	var sp models.SourcePage
	var extracted []byte
	var rawPrice, rawMRP *float64

	err := r.pool.QueryRow(ctx, `
		SELECT id, retailer, retailer_code, url, content_hash, extracted_data,
		       raw_price, raw_mrp, first_seen_at, last_seen_at
		FROM source_pages
		WHERE id = $1`, sourcePageID).Scan(
		&sp.ID, &sp.Retailer, &sp.RetailerCode, &sp.URL, &sp.ContentHash, &extracted,
		&rawPrice, &rawMRP, &sp.FirstSeenAt, &sp.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("loading source page %s: %w", sourcePageID, err)
	}

	if err := json.Unmarshal(extracted, &sp.ExtractedData); err != nil {
		return nil, fmt.Errorf("unmarshalling extracted data for source page %s: %w", sourcePageID, err)
	}
	if rawPrice != nil {
		sp.RawPrice = *rawPrice
	}
	if rawMRP != nil {
		sp.RawMRP = *rawMRP
	}
	return &sp, nil
}

// FindOrCreateBrand normalizes displayName with normalize.BrandName, uses
// the result as the natural key, and returns the existing brand or creates
// one.
func (r *Repository) FindOrCreateBrand(ctx context.Context, displayName string) (*models.Brand, error) {
	normalized := normalize.BrandName(displayName)

	var b models.Brand
	err := r.pool.QueryRow(ctx, `
		INSERT INTO brands (normalized_name, display_name)
		VALUES ($1, $2)
		ON CONFLICT (normalized_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		RETURNING id, normalized_name, display_name, created_at`,
		normalized, displayName).Scan(&b.ID, &b.NormalizedName, &b.DisplayName, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("finding or creating brand %q: %w", displayName, err)
	}
	return &b, nil
}

// FindOrCreateProduct returns the existing product identified by uniqueKey
// or creates a new one under brandID.
func (r *Repository) FindOrCreateProduct(ctx context.Context, brandID, name, uniqueKey string) (*models.Product, error) {
	var p models.Product
	var retailerIDs []byte

	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (brand_id, name, unique_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (unique_key) DO UPDATE SET unique_key = EXCLUDED.unique_key
		RETURNING id, brand_id, name, unique_key, coalesce(primary_image_url, ''),
		          retailer_product_ids, coalesce(latest_version_id::text, ''),
		          coalesce(latest_content_hash, ''), is_active, created_at, updated_at`,
		brandID, name, uniqueKey).Scan(
		&p.ID, &p.BrandID, &p.Name, &p.UniqueKey, &p.PrimaryImageURL,
		&retailerIDs, &p.LatestVersionID, &p.LatestContentHash, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("finding or creating product %q: %w", uniqueKey, err)
	}

	if err := json.Unmarshal(retailerIDs, &p.RetailerProductIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling retailer product ids for %s: %w", p.ID, err)
	}
	return &p, nil
}

// LatestVersion returns the current version pointed to by
// products.latest_version_id, or nil if the product has no version yet.
func (r *Repository) LatestVersion(ctx context.Context, productID string) (*models.ProductVersion, error) {
	var v models.ProductVersion
	err := r.pool.QueryRow(ctx, `
		SELECT pv.id, pv.product_id, pv.version_seq, pv.content_hash, pv.source, pv.created_at
		FROM product_versions pv
		JOIN products p ON p.latest_version_id = pv.id
		WHERE p.id = $1`, productID).Scan(
		&v.ID, &v.ProductID, &v.VersionSeq, &v.ContentHash, &v.Source, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading latest version for product %s: %w", productID, err)
	}
	return &v, nil
}

// CreateVersion inserts the next sequential ProductVersion for productID and
// points products.latest_version_id/latest_content_hash at it.
func (r *Repository) CreateVersion(ctx context.Context, productID, contentHash string) (*models.ProductVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting version transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var nextSeq int
	if err := tx.QueryRow(ctx, `
		SELECT coalesce(max(version_seq), 0) + 1 FROM product_versions WHERE product_id = $1`,
		productID).Scan(&nextSeq); err != nil {
		return nil, fmt.Errorf("computing next version sequence for product %s: %w", productID, err)
	}

	var v models.ProductVersion
	if err := tx.QueryRow(ctx, `
		INSERT INTO product_versions (product_id, version_seq, content_hash, source)
		VALUES ($1, $2, $3, 'pipeline')
		RETURNING id, product_id, version_seq, content_hash, source, created_at`,
		productID, nextSeq, contentHash).Scan(
		&v.ID, &v.ProductID, &v.VersionSeq, &v.ContentHash, &v.Source, &v.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// Another worker won the (product_id, version_seq) race; the
			// transaction is dead, so finish it via the deferred Rollback
			// and re-read outside it.
			return r.reReadConcurrentVersion(ctx, productID, contentHash, err)
		}
		return nil, fmt.Errorf("inserting product version for product %s: %w", productID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET latest_version_id = $1, latest_content_hash = $2, updated_at = now()
		WHERE id = $3`, v.ID, contentHash, productID); err != nil {
		return nil, fmt.Errorf("updating latest version pointer for product %s: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing version transaction: %w", err)
	}
	return &v, nil
}

// reReadConcurrentVersion handles a unique_violation on (product_id,
// version_seq): two workers discovered the same product concurrently and
// raced to create the next version. If the winner created a version with
// this exact content hash, the race was harmless — re-read and return it so
// the caller continues as though it had created the version itself, rather
// than retrying discovery from scratch. Any other outcome (the winner's
// version has different content) is a genuine anomaly and surfaces as
// pipelineerr.IntegrityConflict.
func (r *Repository) reReadConcurrentVersion(ctx context.Context, productID, contentHash string, cause error) (*models.ProductVersion, error) {
	var v models.ProductVersion
	err := r.pool.QueryRow(ctx, `
		SELECT id, product_id, version_seq, content_hash, source, created_at
		FROM product_versions
		WHERE product_id = $1 AND content_hash = $2
		ORDER BY version_seq DESC
		LIMIT 1`, productID, contentHash).Scan(
		&v.ID, &v.ProductID, &v.VersionSeq, &v.ContentHash, &v.Source, &v.CreatedAt)
	if err != nil {
		return nil, &pipelineerr.IntegrityConflict{Entity: "product_version", Key: productID, Err: cause}
	}
	return &v, nil
}

// LatestSquorScore returns the current SQUOR score for a product version, or
// nil if none has been computed yet.
func (r *Repository) LatestSquorScore(ctx context.Context, productVersionID string) (*models.SquorScore, error) {
	var s models.SquorScore
	err := r.pool.QueryRow(ctx, `
		SELECT id, product_version_id, scheme, overall, grade, breakdown, created_at, last_confirmed_at
		FROM squor_scores
		WHERE product_version_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, productVersionID).Scan(
		&s.ID, &s.ProductVersionID, &s.Scheme, &s.Overall, &s.Grade, &s.Breakdown, &s.CreatedAt, &s.LastConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading latest squor score for version %s: %w", productVersionID, err)
	}
	return &s, nil
}

// ListQuotaExceeded returns up to limit workflow ids currently parked in
// QUOTA_EXCEEDED, oldest first, for ResumeQuotaExceededBatch.
func (r *Repository) ListQuotaExceeded(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM workflow_items
		WHERE state = $1 AND deleted_at IS NULL
		ORDER BY updated_at ASC
		LIMIT $2`, string(models.WorkflowStateQuotaExceeded), limit)
	if err != nil {
		return nil, fmt.Errorf("listing quota-exceeded workflow items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning quota-exceeded workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// letting scanWorkflowItem serve both call sites.
type rowScanner interface {
	Scan(dest ...any) error
}

// nullableUUID turns an empty string into a nil *string, so an optional
// uuid foreign key column receives SQL NULL instead of an empty-string
// literal postgres cannot cast to uuid.
func nullableUUID(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanWorkflowItem(row rowScanner) (*models.WorkflowItem, error) {
	var item models.WorkflowItem
	var productID, sourcePageID, lastError *string
	var details []byte
	var state, stage string

	err := row.Scan(&item.ID, &productID, &sourcePageID, &item.Priority, &state, &stage,
		&item.RetryCount, &item.NextRetryAt, &lastError, &details, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.State = models.WorkflowState(state)
	item.Stage = models.WorkflowStage(stage)
	if productID != nil {
		item.ProductID = *productID
	}
	if sourcePageID != nil {
		item.SourcePageID = *sourcePageID
	}
	if lastError != nil {
		item.LastError = *lastError
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &item.StageDetails); err != nil {
			return nil, fmt.Errorf("unmarshalling stage details: %w", err)
		}
	}
	return &item, nil
}
