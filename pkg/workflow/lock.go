package workflow

import (
	"context"
	"hash/fnv"
	"sync"
)

// Lock acquires the single-writer advisory lock for a workflow item. A
// concrete implementation backed by Postgres `pg_try_advisory_lock` lives in
// pkg/repository; Unlock must be safe to call exactly once per successful
// TryLock.
type Lock interface {
	// TryLock attempts to acquire the lock for workflowID without blocking.
	// ok is false if the lock is already held elsewhere; callers must yield
	// the item rather than wait (spec.md §4.F).
	TryLock(ctx context.Context, workflowID string) (unlock func(context.Context), ok bool, err error)
}

// LockID derives a stable 31-bit lock identifier from a workflow id, fitting
// the range Postgres advisory locks (and this package's in-memory
// implementation) both accept (spec.md §4.F).
func LockID(workflowID string) int32 {
	h := fnv.New32a()
	h.Write([]byte(workflowID))
	return int32(h.Sum32() & 0x7fffffff)
}

// InMemoryLock is a process-local Lock keyed by workflow id, used by tests
// and by single-replica deployments that have no shared Postgres advisory
// lock to reach for.
type InMemoryLock struct {
	mu      sync.Mutex
	holders map[string]bool
}

// NewInMemoryLock constructs an empty InMemoryLock.
func NewInMemoryLock() *InMemoryLock {
	return &InMemoryLock{holders: make(map[string]bool)}
}

func (l *InMemoryLock) TryLock(ctx context.Context, workflowID string) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holders[workflowID] {
		return nil, false, nil
	}
	l.holders[workflowID] = true

	unlock := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.holders, workflowID)
	}
	return unlock, true, nil
}
