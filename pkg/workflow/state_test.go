package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labelsquor/squorcore/pkg/models"
)

func TestCanTransitionAllowsDocumentedEdges(t *testing.T) {
	cases := []struct {
		from, to models.WorkflowState
	}{
		{models.WorkflowStateCreated, models.WorkflowStateQueued},
		{models.WorkflowStateQueued, models.WorkflowStateProcessing},
		{models.WorkflowStateProcessing, models.WorkflowStateCompleted},
		{models.WorkflowStateProcessing, models.WorkflowStateQuotaExceeded},
		{models.WorkflowStateFailed, models.WorkflowStateRetrying},
		{models.WorkflowStateRetrying, models.WorkflowStateQueued},
		{models.WorkflowStateQuotaExceeded, models.WorkflowStateQueued},
		{models.WorkflowStateSuspended, models.WorkflowStateQueued},
	}
	for _, c := range cases {
		assert.True(t, CanTransition(c.from, c.to), "%s -> %s should be allowed", c.from, c.to)
	}
}

func TestCanTransitionRejectsUndocumentedEdges(t *testing.T) {
	assert.False(t, CanTransition(models.WorkflowStateCompleted, models.WorkflowStateProcessing))
	assert.False(t, CanTransition(models.WorkflowStateCreated, models.WorkflowStateCompleted))
	assert.False(t, CanTransition(models.WorkflowStateQueued, models.WorkflowStateRetrying))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.WorkflowStateCompleted))
	assert.True(t, IsTerminal(models.WorkflowStateCancelled))
	assert.False(t, IsTerminal(models.WorkflowStateProcessing))
	assert.False(t, IsTerminal(models.WorkflowStateQuotaExceeded))
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(models.WorkflowStateProcessing))
	assert.True(t, IsActive(models.WorkflowStateWaiting))
	assert.False(t, IsActive(models.WorkflowStateQueued))
}

func TestCanRetry(t *testing.T) {
	assert.True(t, CanRetry(models.WorkflowStateFailed))
	assert.False(t, CanRetry(models.WorkflowStateQuotaExceeded))
}

func TestStageIndex(t *testing.T) {
	assert.Equal(t, 0, stageIndex(models.StageDiscovery))
	assert.Equal(t, 5, stageIndex(models.StageNotification))
	assert.Equal(t, -1, stageIndex(models.WorkflowStage("image_fetch")))
}
