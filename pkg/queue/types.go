// Package queue provides the worker pool that claims and processes
// WorkflowItem rows: goroutine-per-worker polling, skip-locked claiming,
// bounded concurrency, cooperative shutdown, and orphan recovery
// (spec.md §5; grounded on the teacher's session queue).
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/labelsquor/squorcore/pkg/models"
)

// Sentinel errors for queue polling.
var (
	// ErrNoItemsAvailable indicates no queued workflow items are claimable.
	ErrNoItemsAvailable = errors.New("no workflow items available")

	// ErrAtCapacity indicates the global concurrent item limit has been
	// reached.
	ErrAtCapacity = errors.New("at capacity")
)

// ItemStore is the narrow persistence contract the worker pool needs: count
// active items, claim the next queued one under SKIP LOCKED, heartbeat it,
// and record its terminal state. pkg/repository implements this.
type ItemStore interface {
	CountProcessing(ctx context.Context) (int, error)
	ClaimNext(ctx context.Context, workerID string) (*models.WorkflowItem, error)
	Heartbeat(ctx context.Context, itemID string) error
	RecordTerminal(ctx context.Context, itemID string, result *ExecutionResult) error
	FindOrphans(ctx context.Context, threshold time.Duration) ([]*models.WorkflowItem, error)
	RequeueOrphan(ctx context.Context, itemID, reason string) error
}

// ItemExecutor runs a single workflow item through every stage it has left
// to complete (discovery, enrichment, data mapping, scoring, indexing,
// notification). It owns the full per-item lifecycle; the worker only
// handles claiming, heartbeat, terminal status update, and orphan recovery.
type ItemExecutor interface {
	Execute(ctx context.Context, item *models.WorkflowItem) *ExecutionResult
}

// ExecutionResult is the terminal outcome of processing one workflow item.
type ExecutionResult struct {
	State     models.WorkflowState
	Stage     models.WorkflowStage
	Error     error
	Requeue   bool // true if the item should go back to QUEUED/RETRYING rather than a terminal state
	RetryWait time.Duration
}

// PoolHealth reports aggregate worker pool health.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	StoreReachable   bool           `json:"store_reachable"`
	StoreError       string         `json:"store_error,omitempty"`
	WorkerPoolID     string         `json:"worker_pool_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ProcessingItems  int            `json:"processing_items"`
	MaxConcurrent    int            `json:"max_concurrent"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerStatus is a single worker's current activity state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports a single worker's activity state.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	CurrentItemID  string    `json:"current_item_id,omitempty"`
	ItemsProcessed int       `json:"items_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
