package workflow

import (
	"context"
	"fmt"

	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// Retry re-queues a FAILED item for another attempt, passing through
// RETRYING (spec.md §4.F).
func (e *Engine) Retry(ctx context.Context, workflowID string) error {
	return e.withLockedItem(ctx, workflowID, func(item *models.WorkflowItem) error {
		if item.State != models.WorkflowStateFailed {
			return &pipelineerr.BusinessLogicError{Reason: fmt.Sprintf("cannot retry item in state %s", item.State)}
		}
		if err := e.transition(ctx, item, models.WorkflowStateRetrying, "manual retry"); err != nil {
			return err
		}
		return e.transition(ctx, item, models.WorkflowStateQueued, "manual retry")
	})
}

// Cancel moves any non-terminal item to CANCELLED. It takes effect at the
// next state check between stages; an in-flight stage body is not forcibly
// aborted (spec.md §4.F).
func (e *Engine) Cancel(ctx context.Context, workflowID string) error {
	return e.withLockedItem(ctx, workflowID, func(item *models.WorkflowItem) error {
		if IsTerminal(item.State) {
			return &pipelineerr.BusinessLogicError{Reason: fmt.Sprintf("item already terminal in state %s", item.State)}
		}
		return e.transition(ctx, item, models.WorkflowStateCancelled, "manual cancel")
	})
}

// Suspend parks a QUEUED or FAILED item in SUSPENDED with an operator-given
// reason (spec.md §4.F).
func (e *Engine) Suspend(ctx context.Context, workflowID, reason string) error {
	return e.withLockedItem(ctx, workflowID, func(item *models.WorkflowItem) error {
		if item.State != models.WorkflowStateQueued && item.State != models.WorkflowStateFailed {
			return &pipelineerr.BusinessLogicError{Reason: fmt.Sprintf("cannot suspend item in state %s", item.State)}
		}
		return e.transition(ctx, item, models.WorkflowStateSuspended, reason)
	})
}

// ResumeQuotaExceeded re-checks quota for a single QUOTA_EXCEEDED item and,
// if quota is now available, transitions it to PROCESSING and continues
// from its last completed stage, reusing persisted partial results rather
// than repeating discovery (spec.md §4.F).
func (e *Engine) ResumeQuotaExceeded(ctx context.Context, workflowID string) error {
	unlock, ok, err := e.lock.TryLock(ctx, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyLocked
	}
	defer unlock(ctx)

	item, err := e.store.GetItem(ctx, workflowID)
	if err != nil {
		return err
	}
	if item.State != models.WorkflowStateQuotaExceeded {
		return &pipelineerr.BusinessLogicError{Reason: fmt.Sprintf("item not in QUOTA_EXCEEDED, is %s", item.State)}
	}

	const resumeEstimate = 1000
	if err := e.quota.Check(resumeEstimate); err != nil {
		// Still rejected: refresh the wait estimate and stay parked.
		next := e.now().Add(e.quota.WaitTime())
		item.NextRetryAt = &next
		return e.store.SaveItem(ctx, item)
	}

	if err := e.transition(ctx, item, models.WorkflowStateQueued, "quota available, re-queued"); err != nil {
		return err
	}
	if err := e.transition(ctx, item, models.WorkflowStateProcessing, "resumed after quota available"); err != nil {
		return err
	}

	runErr := e.runStages(ctx, item)
	return e.finalize(ctx, item, runErr)
}

// ResumeQuotaExceededBatch scans all QUOTA_EXCEEDED items and resumes each
// in turn while quota remains available, stopping at the first rejection
// rather than thrashing the quota manager (spec.md §4.F).
func (e *Engine) ResumeQuotaExceededBatch(ctx context.Context, limit int) (resumed []string, err error) {
	ids, err := e.store.ListQuotaExceeded(ctx, limit)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := e.quota.Check(1000); err != nil {
			break
		}
		if resumeErr := e.ResumeQuotaExceeded(ctx, id); resumeErr != nil {
			if resumeErr == ErrAlreadyLocked {
				continue
			}
			break
		}
		resumed = append(resumed, id)
	}
	return resumed, nil
}

func (e *Engine) withLockedItem(ctx context.Context, workflowID string, fn func(*models.WorkflowItem) error) error {
	unlock, ok, err := e.lock.TryLock(ctx, workflowID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyLocked
	}
	defer unlock(ctx)

	item, err := e.store.GetItem(ctx, workflowID)
	if err != nil {
		return err
	}
	return fn(item)
}
