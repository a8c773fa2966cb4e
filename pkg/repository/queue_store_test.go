package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/queue"
	"github.com/labelsquor/squorcore/pkg/repository"
	testdb "github.com/labelsquor/squorcore/test/database"
)

func TestClaimNext_ReturnsErrNoItemsAvailableWhenQueueEmpty(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	_, err := repo.ClaimNext(ctx, "worker-1")
	assert.ErrorIs(t, err, queue.ErrNoItemsAvailable)
}

func TestClaimNext_PrefersHigherPriorityThenOlder(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	low := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, low))
	high := &models.WorkflowItem{Priority: 9, State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, high))

	claimed, err := repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, models.WorkflowStateProcessing, claimed.State)
}

func TestClaimNext_SkipsItemsWithFutureRetryDeadline(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	notYet := &models.WorkflowItem{
		Priority: 5, State: models.WorkflowStateRetrying, Stage: models.StageEnrichment, NextRetryAt: &future,
	}
	require.NoError(t, repo.SaveItem(ctx, notYet))

	_, err := repo.ClaimNext(ctx, "worker-1")
	assert.ErrorIs(t, err, queue.ErrNoItemsAvailable)
}

func TestHeartbeat_FailsForNonProcessingItem(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, item))

	err := repo.Heartbeat(ctx, item.ID)
	assert.Error(t, err)
}

func TestRecordTerminal_SetsTerminalStateAndClearsRetryDeadline(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageScoring}
	require.NoError(t, repo.SaveItem(ctx, item))
	claimed, err := repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	err = repo.RecordTerminal(ctx, claimed.ID, &queue.ExecutionResult{
		State: models.WorkflowStateCompleted, Stage: models.StageNotification,
	})
	require.NoError(t, err)

	loaded, err := repo.GetItem(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateCompleted, loaded.State)
	assert.Nil(t, loaded.NextRetryAt)
}

func TestRecordTerminal_RequeuesWithIncrementedRetryCountOnFailure(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageScoring}
	require.NoError(t, repo.SaveItem(ctx, item))
	claimed, err := repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	err = repo.RecordTerminal(ctx, claimed.ID, &queue.ExecutionResult{
		Stage: models.StageScoring, Requeue: true, RetryWait: 10 * time.Millisecond,
		Error: errors.New("ai adapter timeout"),
	})
	require.NoError(t, err)

	loaded, err := repo.GetItem(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateRetrying, loaded.State)
	assert.Equal(t, 1, loaded.RetryCount)
	assert.Equal(t, "ai adapter timeout", loaded.LastError)
	require.NotNil(t, loaded.NextRetryAt)
}

func TestRecordTerminal_PreservesNextRetryAtForNonTerminalOutcome(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	// Simulate a workflow.Engine run that already scheduled and persisted
	// its own retry (retry_count bumped, next_retry_at set, state back to
	// QUEUED) before the worker pool calls RecordTerminal.
	future := time.Now().Add(time.Minute)
	item := &models.WorkflowItem{
		Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageEnrichment,
		RetryCount: 1, NextRetryAt: &future, LastError: "transient error",
	}
	require.NoError(t, repo.SaveItem(ctx, item))

	err := repo.RecordTerminal(ctx, item.ID, &queue.ExecutionResult{
		State: models.WorkflowStateQueued, Stage: models.StageEnrichment,
		Error: errors.New("transient error"),
	})
	require.NoError(t, err)

	loaded, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateQueued, loaded.State)
	assert.Equal(t, 1, loaded.RetryCount)
	require.NotNil(t, loaded.NextRetryAt)
	assert.WithinDuration(t, future, *loaded.NextRetryAt, time.Second)
}

func TestFindOrphans_OnlyReturnsStaleProcessingItems(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, item))
	claimed, err := repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	orphans, err := repo.FindOrphans(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, orphans, "a freshly claimed item should not look orphaned against a 1-hour threshold")

	orphans, err = repo.FindOrphans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, claimed.ID, orphans[0].ID)
}

func TestRequeueOrphan_MovesItemBackToRetryingWithReason(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, item))
	claimed, err := repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, repo.RequeueOrphan(ctx, claimed.ID, "orphaned: no heartbeat"))

	loaded, err := repo.GetItem(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateRetrying, loaded.State)
	assert.Equal(t, "orphaned: no heartbeat", loaded.LastError)
	assert.Equal(t, 1, loaded.RetryCount)
}

func TestCountProcessing_CountsOnlyProcessingItems(t *testing.T) {
	client := testdb.NewTestClient(t)
	repo := repository.New(client)
	ctx := context.Background()

	item := &models.WorkflowItem{Priority: 1, State: models.WorkflowStateQueued, Stage: models.StageDiscovery}
	require.NoError(t, repo.SaveItem(ctx, item))

	n, err := repo.CountProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = repo.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	n, err = repo.CountProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
