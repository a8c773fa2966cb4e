package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/queue"
)

// claimableStates are the states ClaimNext and FindOrphans treat as still
// eligible for worker processing.
var claimableStates = []string{string(models.WorkflowStateQueued), string(models.WorkflowStateRetrying)}

// CountProcessing returns the number of non-deleted items currently claimed
// by a worker.
func (r *Repository) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM workflow_items
		WHERE state = $1 AND deleted_at IS NULL`,
		string(models.WorkflowStateProcessing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting processing workflow items: %w", err)
	}
	return n, nil
}

// ClaimNext atomically claims the highest-priority, oldest queued or
// retrying item whose retry backoff has elapsed, skipping rows locked by
// concurrent claimants (FOR UPDATE SKIP LOCKED), and marks it PROCESSING.
func (r *Repository) ClaimNext(ctx context.Context, workerID string) (*models.WorkflowItem, error) {
	row := r.pool.QueryRow(ctx, `
		WITH next_item AS (
			SELECT id FROM workflow_items
			WHERE deleted_at IS NULL
			  AND state = ANY($1)
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE workflow_items
		SET state = $2, updated_at = now()
		FROM next_item
		WHERE workflow_items.id = next_item.id
		RETURNING workflow_items.id, workflow_items.product_id, workflow_items.source_page_id,
		          workflow_items.priority, workflow_items.state, workflow_items.stage,
		          workflow_items.retry_count, workflow_items.next_retry_at, workflow_items.last_error,
		          workflow_items.stage_details, workflow_items.created_at, workflow_items.updated_at`,
		claimableStates, string(models.WorkflowStateProcessing))

	item, err := scanWorkflowItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, queue.ErrNoItemsAvailable
		}
		return nil, fmt.Errorf("claiming next workflow item for worker %s: %w", workerID, err)
	}
	return item, nil
}

// Heartbeat bumps updated_at on a PROCESSING item so it is not mistaken for
// an orphan by FindOrphans.
func (r *Repository) Heartbeat(ctx context.Context, itemID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_items SET updated_at = now()
		WHERE id = $1 AND state = $2 AND deleted_at IS NULL`,
		itemID, string(models.WorkflowStateProcessing))
	if err != nil {
		return fmt.Errorf("heartbeating workflow item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("heartbeating workflow item %s: %w", itemID, pgx.ErrNoRows)
	}
	return nil
}

// RecordTerminal applies an ItemExecutor's outcome: either a genuinely
// terminal state, or — when result.Requeue is set — a bounce back to
// RETRYING with an incremented retry count and a backoff deadline.
func (r *Repository) RecordTerminal(ctx context.Context, itemID string, result *queue.ExecutionResult) error {
	var lastError string
	if result.Error != nil {
		lastError = result.Error.Error()
	}

	if result.Requeue {
		nextRetryAt := time.Now().Add(result.RetryWait)
		_, err := r.pool.Exec(ctx, `
			UPDATE workflow_items
			SET state = $1, stage = $2, retry_count = retry_count + 1,
			    next_retry_at = $3, last_error = nullif($4, ''), updated_at = now()
			WHERE id = $5`,
			string(models.WorkflowStateRetrying), string(result.Stage), nextRetryAt, lastError, itemID)
		if err != nil {
			return fmt.Errorf("requeueing workflow item %s: %w", itemID, err)
		}
		return nil
	}

	// A non-terminal State here (QUEUED, RETRYING, QUOTA_EXCEEDED,
	// SUSPENDED) means the executor already persisted its own retry_count
	// and next_retry_at bookkeeping (workflow.Engine does this internally);
	// blindly nulling next_retry_at would wipe out a just-scheduled retry
	// or quota resume time. Only clear it for a genuinely terminal outcome.
	if !isTerminalWorkflowState(result.State) {
		_, err := r.pool.Exec(ctx, `
			UPDATE workflow_items SET last_error = nullif($1, '') WHERE id = $2`,
			lastError, itemID)
		if err != nil {
			return fmt.Errorf("recording non-terminal outcome for workflow item %s: %w", itemID, err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE workflow_items
		SET state = $1, stage = $2, next_retry_at = NULL, last_error = nullif($3, ''), updated_at = now()
		WHERE id = $4`,
		string(result.State), string(result.Stage), lastError, itemID)
	if err != nil {
		return fmt.Errorf("recording terminal state for workflow item %s: %w", itemID, err)
	}
	return nil
}

// isTerminalWorkflowState reports whether state is one RecordTerminal should
// treat as final for this item's current run (i.e. safe to clear
// next_retry_at for). QUEUED/RETRYING/QUOTA_EXCEEDED/SUSPENDED all carry a
// scheduled future wake-up that the caller already persisted.
func isTerminalWorkflowState(state models.WorkflowState) bool {
	switch state {
	case models.WorkflowStateCompleted, models.WorkflowStateFailed,
		models.WorkflowStateCancelled, models.WorkflowStatePartiallyProcessed:
		return true
	default:
		return false
	}
}

// FindOrphans returns PROCESSING items whose last heartbeat is older than
// threshold. A threshold of 0 matches every currently PROCESSING item,
// which CleanupStartupOrphans relies on to recover everything a crashed
// pool left behind.
func (r *Repository) FindOrphans(ctx context.Context, threshold time.Duration) ([]*models.WorkflowItem, error) {
	cutoff := time.Now().Add(-threshold)

	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, source_page_id, priority, state, stage, retry_count,
		       next_retry_at, last_error, stage_details, created_at, updated_at
		FROM workflow_items
		WHERE state = $1 AND deleted_at IS NULL AND updated_at <= $2`,
		string(models.WorkflowStateProcessing), cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying orphaned workflow items: %w", err)
	}
	defer rows.Close()

	var orphans []*models.WorkflowItem
	for rows.Next() {
		item, err := scanWorkflowItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning orphaned workflow item: %w", err)
		}
		orphans = append(orphans, item)
	}
	return orphans, rows.Err()
}

// RequeueOrphan bounces an orphaned item back to RETRYING with reason
// recorded as its last error, available for the next ClaimNext call
// immediately (no backoff delay — the item was never actually processed to
// completion, so there is no reason to penalize it further).
func (r *Repository) RequeueOrphan(ctx context.Context, itemID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflow_items
		SET state = $1, retry_count = retry_count + 1, next_retry_at = NULL,
		    last_error = $2, updated_at = now()
		WHERE id = $3`,
		string(models.WorkflowStateRetrying), reason, itemID)
	if err != nil {
		return fmt.Errorf("requeueing orphaned workflow item %s: %w", itemID, err)
	}
	return nil
}
