package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned workflow items.
// Every pool runs this independently — operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds items stuck in PROCESSING with a stale
// heartbeat and requeues them for retry.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	orphans, err := p.store.FindOrphans(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("failed to query orphaned items: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("detected orphaned workflow items", "count", len(orphans))

	recovered := 0
	failed := 0
	for _, item := range orphans {
		reason := fmt.Sprintf("orphaned: no heartbeat since %s", item.UpdatedAt.Format(time.RFC3339))
		if err := p.store.RequeueOrphan(ctx, item.ID, reason); err != nil {
			slog.Error("failed to requeue orphaned item", "item_id", item.ID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if failed > 0 {
		slog.Warn("orphan recovery completed with failures",
			"total_orphans", len(orphans), "recovered", recovered, "failed", failed)
	}

	return nil
}

// CleanupStartupOrphans performs a one-time recovery, at process startup, of
// items left PROCESSING by a previous crash of this same pool.
func CleanupStartupOrphans(ctx context.Context, store ItemStore, poolID string) error {
	orphans, err := store.FindOrphans(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}

	if len(orphans) == 0 {
		return nil
	}

	slog.Warn("found startup orphans from previous run", "pool_id", poolID, "count", len(orphans))

	for _, item := range orphans {
		reason := fmt.Sprintf("orphaned: pool %s restarted while item was processing", poolID)
		if err := store.RequeueOrphan(ctx, item.ID, reason); err != nil {
			slog.Error("failed to requeue startup orphan", "item_id", item.ID, "error", err)
			continue
		}
		slog.Info("startup orphan recovered", "item_id", item.ID)
	}

	return nil
}
