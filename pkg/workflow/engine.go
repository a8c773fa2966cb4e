package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/labelsquor/squorcore/pkg/aiadapter"
	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// ErrAlreadyLocked is returned by Process when another worker already holds
// the item's advisory lock; callers should simply move on to the next item.
var ErrAlreadyLocked = errors.New("workflow: item already locked")

// Process claims the advisory lock for workflowID, loads the item, and runs
// it forward through the stage sequencer. It transitions CREATED/QUEUED
// items into PROCESSING before starting and, unless a transition itself
// fails, leaves the item in COMPLETED, FAILED, QUOTA_EXCEEDED, or QUEUED
// with a scheduled retry before returning.
func (e *Engine) Process(ctx context.Context, workflowID string) error {
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
	if item.StageDetails == nil {
		item.StageDetails = models.StageDetails{}
	}

	// queue.ItemStore.ClaimNext already marks the row PROCESSING as part of
	// its skip-locked claim, so an item arriving via the worker pool is
	// already in PROCESSING by the time it is loaded here. Only perform
	// (and audit) the claim transition when that has not happened, e.g. a
	// direct Process call on a QUEUED item outside the worker pool.
	if item.State != models.WorkflowStateProcessing {
		if err := e.transition(ctx, item, models.WorkflowStateProcessing, "claimed by worker"); err != nil {
			return err
		}
	}

	runErr := e.runStages(ctx, item)
	return e.finalize(ctx, item, runErr)
}

// runStages advances item through stageOrder starting at its current stage,
// short-circuiting enrichment/data_mapping/scoring when discovery found a
// byte-identical duplicate listing (spec.md §4.F).
func (e *Engine) runStages(ctx context.Context, item *models.WorkflowItem) error {
	start := stageIndex(item.Stage)
	if start < 0 {
		start = 0
	}

	var analyzed *aiadapter.AnalysisResult
	duplicate, _ := item.StageDetails["duplicate"].(bool)

	for i := start; i < len(stageOrder); i++ {
		stage := stageOrder[i]
		item.Stage = stage
		e.emit(ctx, "stage_started", map[string]any{"workflow_id": item.ID, "stage": string(stage)})

		switch stage {
		case models.StageDiscovery:
			if err := e.runDiscovery(ctx, item); err != nil {
				return stageErrorf(stage, err)
			}
			duplicate, _ = item.StageDetails["duplicate"].(bool)

		case models.StageEnrichment:
			var res *aiadapter.AnalysisResult
			var err error
			if duplicate {
				res, err = e.syntheticDuplicateAnalysis(ctx, item)
			} else {
				res, err = e.runEnrichment(ctx, item)
			}
			if err != nil {
				return stageErrorf(stage, err)
			}
			analyzed = res

		case models.StageDataMapping, models.StageScoring:
			if analyzed == nil {
				return stageErrorf(stage, &pipelineerr.Fatal{Reason: "reached mapping stage without an analysis result"})
			}
			if err := e.runDataMappingAndScoring(ctx, item, analyzed); err != nil {
				return stageErrorf(stage, err)
			}

		case models.StageIndexing:
			if err := e.runIndexing(ctx, item); err != nil {
				return stageErrorf(stage, err)
			}

		case models.StageNotification:
			if err := e.runNotification(ctx, item); err != nil {
				return stageErrorf(stage, err)
			}
		}

		e.emit(ctx, "stage_completed", map[string]any{"workflow_id": item.ID, "stage": string(stage), "duplicate": duplicate})
	}

	return nil
}

// syntheticDuplicateAnalysis builds a stand-in AnalysisResult for a
// content-unchanged item, reading the prior SquorScore rather than calling
// the AI adapter, so data_mapping/scoring still run (and the fact mapper
// reaffirms rather than rewrites) without spending quota (spec.md §4.F).
func (e *Engine) syntheticDuplicateAnalysis(ctx context.Context, item *models.WorkflowItem) (*aiadapter.AnalysisResult, error) {
	versionID, _ := item.StageDetails["version_id"].(string)
	prior, err := e.store.LatestSquorScore(ctx, versionID)
	if err != nil {
		return nil, &pipelineerr.TransientInfra{Op: "latest_squor_score", Err: err}
	}

	result := &aiadapter.AnalysisResult{DuplicateAnalysis: true}
	if prior != nil {
		result.OverallScore = prior.Overall
		result.Grade = prior.Grade
	}
	return result, nil
}

// finalize interprets runErr (nil on success) and drives the item to the
// appropriate terminal-for-now state, persisting it and recording the
// transition.
func (e *Engine) finalize(ctx context.Context, item *models.WorkflowItem, runErr error) error {
	if runErr == nil {
		return e.transition(ctx, item, models.WorkflowStateCompleted, "all stages completed")
	}

	var quotaErr *pipelineerr.QuotaExceeded
	if errors.As(runErr, &quotaErr) {
		return e.suspendForQuota(ctx, item, quotaErr)
	}

	item.LastError = runErr.Error()

	if !pipelineerr.Retryable(runErr) {
		return e.fail(ctx, item, runErr)
	}

	if item.RetryCount >= e.cfg.MaxRetries {
		return e.fail(ctx, item, runErr)
	}

	return e.scheduleRetry(ctx, item)
}

func (e *Engine) fail(ctx context.Context, item *models.WorkflowItem, cause error) error {
	if err := e.transition(ctx, item, models.WorkflowStateFailed, cause.Error()); err != nil {
		return err
	}
	e.emit(ctx, "error_occurred", map[string]any{"workflow_id": item.ID, "error": cause.Error(), "stage": string(item.Stage)})
	return nil
}

// scheduleRetry bumps retry_count, sets next_retry_at to
// base * multiplier^retry_count (capped at RetryMaxDelay), transitions
// through FAILED and RETRYING (the transition table admits RETRYING only
// from FAILED), and lands the item back in QUEUED for a worker to pick up
// once next_retry_at elapses (spec.md §4.F).
func (e *Engine) scheduleRetry(ctx context.Context, item *models.WorkflowItem) error {
	delay := backoffDelay(e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay, item.RetryCount)
	item.RetryCount++
	next := e.now().Add(delay)
	item.NextRetryAt = &next

	if err := e.transition(ctx, item, models.WorkflowStateFailed, item.LastError); err != nil {
		return err
	}
	if err := e.transition(ctx, item, models.WorkflowStateRetrying, "retry scheduled"); err != nil {
		return err
	}
	if err := e.transition(ctx, item, models.WorkflowStateQueued, "scheduled for retry"); err != nil {
		return err
	}
	slog.Info("scheduled retry", "workflow_id", item.ID, "retry_count", item.RetryCount, "next_retry_at", next)
	return nil
}

func backoffDelay(base, cap time.Duration, retryCount int) time.Duration {
	multiplier := math.Pow(2, float64(retryCount))
	delay := time.Duration(float64(base) * multiplier)
	if delay > cap {
		return cap
	}
	return delay
}

// suspendForQuota parks item in QUOTA_EXCEEDED, preserving completed stages
// and any partial results already written, with next_retry_at derived from
// the quota manager's reported wait time, floored at 60s (spec.md §4.F).
func (e *Engine) suspendForQuota(ctx context.Context, item *models.WorkflowItem, cause *pipelineerr.QuotaExceeded) error {
	wait := e.quota.WaitTime()
	if wait < 60*time.Second {
		wait = 60 * time.Second
	}
	next := e.now().Add(wait)

	idx := stageIndex(item.Stage)
	if idx < 0 {
		idx = 0
	}
	completed := stageOrder[:idx]
	completedNames := make([]string, len(completed))
	for i, s := range completed {
		completedNames[i] = string(s)
	}

	item.NextRetryAt = &next
	item.LastError = cause.Error()
	item.StageDetails["quota_status"] = cause.Service
	item.StageDetails["quota_exceeded_at"] = e.now()
	item.StageDetails["estimated_wait_seconds"] = int(wait.Seconds())
	item.StageDetails["completed_stages"] = completedNames
	item.StageDetails["partial_results"] = map[string]any{
		"product_id":   item.ProductID,
		"version_id":   item.StageDetails["version_id"],
		"progress_pct": 100 * float64(len(completed)) / float64(len(stageOrder)),
	}

	if err := e.transition(ctx, item, models.WorkflowStateQuotaExceeded, "quota exceeded: "+cause.Service); err != nil {
		return err
	}
	slog.Warn("suspended for quota", "workflow_id", item.ID, "service", cause.Service, "retry_after", next)
	return nil
}

// transition validates and applies a state change, persists the item, and
// records the audit transition. It is the only place Engine mutates
// item.State.
func (e *Engine) transition(ctx context.Context, item *models.WorkflowItem, to models.WorkflowState, reason string) error {
	from := item.State
	if from != "" && !CanTransition(from, to) {
		return &pipelineerr.Fatal{Reason: "illegal workflow transition " + string(from) + " -> " + string(to)}
	}

	item.State = to
	item.UpdatedAt = e.now()
	if err := e.store.SaveItem(ctx, item); err != nil {
		return &pipelineerr.TransientInfra{Op: "save_item", Err: err}
	}

	if err := e.store.RecordTransition(ctx, &models.WorkflowTransition{
		WorkflowID: item.ID,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		OccurredAt: e.now(),
	}); err != nil {
		slog.Error("failed to record workflow transition", "workflow_id", item.ID, "error", err)
	}

	e.emit(ctx, "state_changed", map[string]any{"workflow_id": item.ID, "from": string(from), "to": string(to), "reason": reason})
	return nil
}
