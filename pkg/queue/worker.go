package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/models"
)

// Worker is a single queue worker that polls for and processes workflow items.
type Worker struct {
	id       string
	poolID   string
	store    ItemStore
	config   *config.WorkflowConfig
	executor ItemExecutor
	registry ItemRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentItemID  string
	itemsProcessed int
	lastActivity   time.Time
}

// ItemRegistry is the subset of WorkerPool used by Worker for cancel-function
// registration.
type ItemRegistry interface {
	RegisterItem(itemID string, cancel context.CancelFunc)
	UnregisterItem(itemID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, poolID string, store ItemStore, cfg *config.WorkflowConfig, executor ItemExecutor, registry ItemRegistry) *Worker {
	return &Worker{
		id:           id,
		poolID:       poolID,
		store:        store,
		config:       cfg,
		executor:     executor,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentItemID:  w.currentItemID,
		ItemsProcessed: w.itemsProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pool_id", w.poolID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoItemsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing item", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims an item, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	processing, err := w.store.CountProcessing(ctx)
	if err != nil {
		return fmt.Errorf("checking processing items: %w", err)
	}
	if processing >= w.config.MaxConcurrentItems {
		return ErrAtCapacity
	}

	item, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return err
	}

	log := slog.With("item_id", item.ID, "worker_id", w.id)
	log.Info("workflow item claimed")

	w.setStatus(WorkerStatusWorking, item.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	itemCtx, cancelItem := context.WithTimeout(ctx, w.config.ItemTimeout)
	defer cancelItem()

	w.registry.RegisterItem(item.ID, cancelItem)
	defer w.registry.UnregisterItem(item.ID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(itemCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, item.ID)

	result := w.executor.Execute(itemCtx, item)

	if result == nil {
		switch {
		case errors.Is(itemCtx.Err(), context.DeadlineExceeded):
			result = &ExecutionResult{
				State: models.WorkflowStateFailed,
				Error: fmt.Errorf("item timed out after %v", w.config.ItemTimeout),
			}
		case errors.Is(itemCtx.Err(), context.Canceled):
			result = &ExecutionResult{
				State: models.WorkflowStateCancelled,
				Error: context.Canceled,
			}
		default:
			result = &ExecutionResult{
				State: models.WorkflowStateFailed,
				Error: fmt.Errorf("executor returned nil result"),
			}
		}
	}

	if result.State == "" && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
		result = &ExecutionResult{
			State: models.WorkflowStateFailed,
			Error: fmt.Errorf("item timed out after %v", w.config.ItemTimeout),
		}
	}
	if result.State == "" && errors.Is(itemCtx.Err(), context.Canceled) {
		result = &ExecutionResult{
			State: models.WorkflowStateCancelled,
			Error: context.Canceled,
		}
	}

	cancelHeartbeat()

	if err := w.store.RecordTerminal(context.Background(), item.ID, result); err != nil {
		log.Error("failed to record workflow item outcome", "error", err)
		return err
	}

	w.mu.Lock()
	w.itemsProcessed++
	w.mu.Unlock()

	log.Info("workflow item processing complete", "state", result.State, "stage", result.Stage)
	return nil
}

// runHeartbeat periodically updates the item's heartbeat timestamp for orphan
// detection.
func (w *Worker) runHeartbeat(ctx context.Context, itemID string) {
	ticker := time.NewTicker(w.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, itemID); err != nil {
				slog.Warn("heartbeat update failed", "item_id", itemID, "error", err)
			}
		}
	}
}

// heartbeatInterval defaults to a quarter of the orphan threshold so at
// least a few heartbeats land before an item would be considered orphaned.
func (w *Worker) heartbeatInterval() time.Duration {
	interval := w.config.OrphanThreshold / 4
	if interval <= 0 {
		return 30 * time.Second
	}
	return interval
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, itemID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentItemID = itemID
	w.lastActivity = time.Now()
}
