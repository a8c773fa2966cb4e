package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/labelsquor/squorcore/pkg/models"
)

// SoftDeleteOldWorkflowItems sets deleted_at on completed, failed, or
// cancelled workflow items whose last update is older than retentionDays.
func (r *Repository) SoftDeleteOldWorkflowItems(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_items
		SET deleted_at = now()
		WHERE deleted_at IS NULL
		  AND state = ANY($1)
		  AND updated_at <= $2`,
		[]string{
			string(models.WorkflowStateCompleted),
			string(models.WorkflowStateFailed),
			string(models.WorkflowStateCancelled),
		}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting old workflow items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupOrphanedTransitions deletes WorkflowTransition rows whose parent
// workflow item no longer exists and that are older than ttl. Transitions
// are append-only audit rows; their parent is never actually deleted by
// this module (only soft-deleted), so in practice this targets rows left
// behind by manual/administrative hard deletes rather than normal
// retention, but the contract still holds for either case.
func (r *Repository) CleanupOrphanedTransitions(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM workflow_transitions wt
		WHERE wt.occurred_at <= $1
		  AND NOT EXISTS (SELECT 1 FROM workflow_items wi WHERE wi.id = wt.workflow_id)`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up orphaned transitions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupOldQuotaUsageLogs deletes raw QuotaUsageLog rows older than
// retentionDays.
func (r *Repository) CleanupOldQuotaUsageLogs(ctx context.Context, retentionDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM quota_usage_log WHERE occurred_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up old quota usage logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
