package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLockExclusivity(t *testing.T) {
	l := NewInMemoryLock()

	unlock, ok, err := l.TryLock(t.Context(), "wf-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok2, err := l.TryLock(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.False(t, ok2)

	unlock(t.Context())

	_, ok3, err := l.TryLock(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.True(t, ok3)
}

func TestInMemoryLockIndependentKeys(t *testing.T) {
	l := NewInMemoryLock()

	_, ok1, err := l.TryLock(t.Context(), "wf-1")
	require.NoError(t, err)
	require.True(t, ok1)

	_, ok2, err := l.TryLock(t.Context(), "wf-2")
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestLockIDStableAndInRange(t *testing.T) {
	id1 := LockID("wf-1")
	id2 := LockID("wf-1")
	assert.Equal(t, id1, id2)
	assert.GreaterOrEqual(t, id1, int32(0))

	id3 := LockID("wf-2")
	assert.NotEqual(t, id1, id3)
}
