package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labelsquor/squorcore/pkg/database"
	"github.com/labelsquor/squorcore/pkg/workflow"
)

// AdvisoryLock implements workflow.Lock with Postgres session-level advisory
// locks (pg_try_advisory_lock/pg_advisory_unlock), keyed by
// workflow.LockID. An advisory lock is bound to the backend connection that
// took it, so TryLock checks out a dedicated connection from the pool and
// holds it until unlock is called.
type AdvisoryLock struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLock constructs an AdvisoryLock over client's connection pool.
func NewAdvisoryLock(client *database.Client) *AdvisoryLock {
	return &AdvisoryLock{pool: client.Pool}
}

// TryLock attempts to acquire the advisory lock for workflowID without
// blocking. The returned unlock function must be called exactly once to
// release both the advisory lock and the checked-out connection.
func (l *AdvisoryLock) TryLock(ctx context.Context, workflowID string) (func(context.Context), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	lockID := workflow.LockID(workflowID)

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("pg_try_advisory_lock for workflow %s: %w", workflowID, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func(unlockCtx context.Context) {
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			slog.Warn("failed to release advisory lock", "workflow_id", workflowID, "error", err)
		}
		conn.Release()
	}
	return unlock, true, nil
}
