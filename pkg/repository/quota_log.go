package repository

import (
	"context"
	"fmt"

	"github.com/labelsquor/squorcore/pkg/models"
)

// InsertQuotaUsageLog records one admitted AI-service call for cost
// tracking. Nothing in this module calls it outside its tests:
// quota.Manager.Record keeps usage and cost in memory only, so no
// QuotaUsageLog row is written during a pipeline run.
func (r *Repository) InsertQuotaUsageLog(ctx context.Context, log *models.QuotaUsageLog) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO quota_usage_log
			(service, workflow_id, input_tokens, output_tokens, image_tokens, cost_usd, pricing_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, occurred_at`,
		log.Service, nullableUUID(log.WorkflowID), log.InputTokens, log.OutputTokens, log.ImageTokens,
		log.CostUSD, log.PricingModel,
	).Scan(&log.ID, &log.OccurredAt)
	if err != nil {
		return fmt.Errorf("inserting quota usage log for service %s: %w", log.Service, err)
	}
	return nil
}
