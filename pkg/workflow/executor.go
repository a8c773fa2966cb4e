package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/queue"
)

// EngineExecutor adapts Engine to queue.ItemExecutor so a worker pool can
// drive Process without knowing anything about advisory locks, stage
// sequencing, or retry/backoff policy. Engine persists every state change
// itself (including retry_count and next_retry_at for a scheduled retry),
// so EngineExecutor reports the resulting state back to the worker rather
// than asking it to requeue: ExecutionResult.Requeue is always false here.
type EngineExecutor struct {
	engine *Engine
}

// NewEngineExecutor constructs an EngineExecutor over engine.
func NewEngineExecutor(engine *Engine) *EngineExecutor {
	return &EngineExecutor{engine: engine}
}

// Execute implements queue.ItemExecutor.
func (x *EngineExecutor) Execute(ctx context.Context, item *models.WorkflowItem) *queue.ExecutionResult {
	runErr := x.engine.Process(ctx, item.ID)

	if runErr != nil && errors.Is(runErr, ErrAlreadyLocked) {
		slog.Warn("workflow item already locked by another worker, yielding", "workflow_id", item.ID)
		return &queue.ExecutionResult{State: item.State, Stage: item.Stage}
	}

	final, err := x.engine.store.GetItem(ctx, item.ID)
	if err != nil {
		return &queue.ExecutionResult{
			State: models.WorkflowStateFailed,
			Stage: item.Stage,
			Error: fmt.Errorf("reloading workflow item %s after processing: %w", item.ID, err),
		}
	}

	return &queue.ExecutionResult{
		State: final.State,
		Stage: final.Stage,
		Error: runErr,
	}
}
