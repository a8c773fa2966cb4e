package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/models"
)

// fakeStore is an in-memory ItemStore for exercising the worker pool without
// a database.
type fakeStore struct {
	mu         sync.Mutex
	queued     []*models.WorkflowItem
	processing map[string]*models.WorkflowItem
	terminal   map[string]*ExecutionResult
	claims     int32
}

func newFakeStore(items ...*models.WorkflowItem) *fakeStore {
	return &fakeStore{
		queued:     items,
		processing: make(map[string]*models.WorkflowItem),
		terminal:   make(map[string]*ExecutionResult),
	}
}

func (s *fakeStore) CountProcessing(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processing), nil
}

func (s *fakeStore) ClaimNext(ctx context.Context, workerID string) (*models.WorkflowItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) == 0 {
		return nil, ErrNoItemsAvailable
	}
	atomic.AddInt32(&s.claims, 1)
	item := s.queued[0]
	s.queued = s.queued[1:]
	item.State = models.WorkflowStateProcessing
	s.processing[item.ID] = item
	return item, nil
}

func (s *fakeStore) Heartbeat(ctx context.Context, itemID string) error {
	return nil
}

func (s *fakeStore) RecordTerminal(ctx context.Context, itemID string, result *ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, itemID)
	s.terminal[itemID] = result
	return nil
}

func (s *fakeStore) FindOrphans(ctx context.Context, threshold time.Duration) ([]*models.WorkflowItem, error) {
	return nil, nil
}

func (s *fakeStore) RequeueOrphan(ctx context.Context, itemID, reason string) error {
	return nil
}

func (s *fakeStore) terminalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terminal)
}

// fakeExecutor completes every item immediately.
type fakeExecutor struct {
	delay time.Duration
}

func (e *fakeExecutor) Execute(ctx context.Context, item *models.WorkflowItem) *ExecutionResult {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil
		}
	}
	return &ExecutionResult{State: models.WorkflowStateCompleted, Stage: models.StageNotification}
}

func testWorkflowConfig() *config.WorkflowConfig {
	cfg := config.DefaultWorkflowConfig()
	cfg.WorkerCount = 2
	cfg.MaxConcurrentItems = 2
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollIntervalJitter = 0
	cfg.ItemTimeout = time.Second
	cfg.OrphanDetectionInterval = time.Hour
	return cfg
}

func TestWorkerPoolProcessesAllQueuedItems(t *testing.T) {
	items := []*models.WorkflowItem{
		{ID: "item-1", State: models.WorkflowStateQueued},
		{ID: "item-2", State: models.WorkflowStateQueued},
		{ID: "item-3", State: models.WorkflowStateQueued},
	}
	store := newFakeStore(items...)
	pool := NewWorkerPool("test-pool", store, testWorkflowConfig(), &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	require.Eventually(t, func() bool {
		return store.terminalCount() == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()
}

func TestWorkerPoolHealthReportsWorkerCount(t *testing.T) {
	store := newFakeStore()
	pool := NewWorkerPool("test-pool", store, testWorkflowConfig(), &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	defer func() {
		cancel()
		pool.Stop()
	}()

	health := pool.Health(context.Background())
	assert.Equal(t, 2, health.TotalWorkers)
	assert.True(t, health.StoreReachable)
}

func TestWorkerPoolCancelItemViaRegistry(t *testing.T) {
	store := newFakeStore()
	pool := NewWorkerPool("test-pool", store, testWorkflowConfig(), &fakeExecutor{})

	cancelled := false
	pool.RegisterItem("item-x", func() { cancelled = true })

	assert.True(t, pool.CancelItem("item-x"))
	assert.True(t, cancelled)
	assert.False(t, pool.CancelItem("item-does-not-exist"))
}

func TestStartIsIdempotent(t *testing.T) {
	store := newFakeStore()
	pool := NewWorkerPool("test-pool", store, testWorkflowConfig(), &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Start(ctx))
	assert.Len(t, pool.workers, 2)

	pool.Stop()
}
