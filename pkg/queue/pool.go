package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/labelsquor/squorcore/pkg/config"
)

// WorkerPool manages a pool of queue workers that claim and process
// WorkflowItem rows.
type WorkerPool struct {
	poolID   string
	store    ItemStore
	config   *config.WorkflowConfig
	executor ItemExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Item cancel registry: item_id → cancel function, for manual cancellation.
	activeItems map[string]context.CancelFunc
	mu          sync.RWMutex
	started     bool

	orphans orphanState
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(poolID string, store ItemStore, cfg *config.WorkflowConfig, executor ItemExecutor) *WorkerPool {
	return &WorkerPool{
		poolID:      poolID,
		store:       store,
		config:      cfg,
		executor:    executor,
		workers:     make([]*Worker, 0, cfg.WorkerCount),
		stopCh:      make(chan struct{}),
		activeItems: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pool_id", p.poolID)
		return nil
	}
	p.started = true

	slog.Info("starting worker pool", "pool_id", p.poolID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.poolID, i)
		worker := NewWorker(workerID, p.poolID, p.store, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current item before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool gracefully")

	active := p.getActiveItemIDs()
	if len(active) > 0 {
		slog.Info("waiting for active items to complete", "count", len(active), "item_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("worker pool stopped gracefully")
}

// RegisterItem stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterItem(itemID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeItems[itemID] = cancel
}

// UnregisterItem removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterItem(itemID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeItems, itemID)
}

// CancelItem triggers context cancellation for an item on this pool.
// Returns true if the item was found and cancelled here.
func (p *WorkerPool) CancelItem(itemID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeItems[itemID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	processing, err := p.store.CountProcessing(ctx)
	if err != nil {
		slog.Error("failed to query processing items for health check", "pool_id", p.poolID, "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	storeHealthy := err == nil
	isHealthy := len(p.workers) > 0 && processing <= p.config.MaxConcurrentItems && storeHealthy

	var storeErr string
	if !storeHealthy {
		storeErr = fmt.Sprintf("processing count query failed: %v", err)
	}

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastOrphanScan
	recovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy:        isHealthy,
		StoreReachable:   storeHealthy,
		StoreError:       storeErr,
		WorkerPoolID:     p.poolID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ProcessingItems:  processing,
		MaxConcurrent:    p.config.MaxConcurrentItems,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}

// getActiveItemIDs returns IDs of currently processing items (for logging).
func (p *WorkerPool) getActiveItemIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeItems))
	for id := range p.activeItems {
		ids = append(ids, id)
	}
	return ids
}
