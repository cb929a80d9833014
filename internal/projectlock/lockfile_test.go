package projectlock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitbutlerapp/but/internal/projectlock"
)

func TestProcessLock_excludesSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := projectlock.OpenProcessLock(dir)
	require.NoError(t, err)
	require.NoError(t, first.TryLock())
	defer first.Unlock()

	second, err := projectlock.OpenProcessLock(dir)
	require.NoError(t, err)
	err = second.TryLock()
	assert.ErrorIs(t, err, projectlock.ErrLocked)
}

func TestProcessLock_reacquireAfterUnlock(t *testing.T) {
	dir := t.TempDir()

	l, err := projectlock.OpenProcessLock(dir)
	require.NoError(t, err)
	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())

	l2, err := projectlock.OpenProcessLock(dir)
	require.NoError(t, err)
	require.NoError(t, l2.TryLock())
	require.NoError(t, l2.Unlock())
}
