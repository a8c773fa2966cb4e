// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/labelsquor/squorcore/pkg/config"
)

// RetentionStore is the persistence surface the cleanup service needs.
// Implemented by pkg/repository.
type RetentionStore interface {
	// SoftDeleteOldWorkflowItems sets deleted_at on completed/failed/cancelled
	// workflow items older than retentionDays, returning the count affected.
	SoftDeleteOldWorkflowItems(ctx context.Context, retentionDays int) (int, error)

	// CleanupOrphanedTransitions deletes WorkflowTransition rows whose parent
	// workflow item no longer exists and that are older than ttl.
	CleanupOrphanedTransitions(ctx context.Context, ttl time.Duration) (int, error)

	// CleanupOldQuotaUsageLogs deletes raw QuotaUsageLog rows older than
	// retentionDays.
	CleanupOldQuotaUsageLogs(ctx context.Context, retentionDays int) (int, error)
}

// Service periodically enforces retention policies:
//   - Soft-deletes old workflow items (completed, failed, or cancelled)
//   - Removes orphaned WorkflowTransition rows past their TTL
//   - Prunes old QuotaUsageLog rows
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	store  RetentionStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, store RetentionStore) *Service {
	return &Service{
		config: cfg,
		store:  store,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"workflow_item_retention_days", s.config.WorkflowItemRetentionDays,
		"transition_ttl", s.config.TransitionTTL,
		"quota_usage_log_retention_days", s.config.QuotaUsageLogRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.softDeleteOldWorkflowItems(ctx)
	s.cleanupOrphanedTransitions(ctx)
	s.cleanupOldQuotaUsageLogs(ctx)
}

func (s *Service) softDeleteOldWorkflowItems(_ context.Context) {
	count, err := s.store.SoftDeleteOldWorkflowItems(context.Background(), s.config.WorkflowItemRetentionDays)
	if err != nil {
		slog.Error("Retention: soft-delete workflow items failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: soft-deleted old workflow items", "count", count)
	}
}

func (s *Service) cleanupOrphanedTransitions(_ context.Context) {
	count, err := s.store.CleanupOrphanedTransitions(context.Background(), s.config.TransitionTTL)
	if err != nil {
		slog.Error("Retention: transition cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: cleaned up orphaned transitions", "count", count)
	}
}

func (s *Service) cleanupOldQuotaUsageLogs(_ context.Context) {
	count, err := s.store.CleanupOldQuotaUsageLogs(context.Background(), s.config.QuotaUsageLogRetentionDays)
	if err != nil {
		slog.Error("Retention: quota usage log cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: cleaned up old quota usage logs", "count", count)
	}
}
