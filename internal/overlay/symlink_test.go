package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSymlinkPoolAllocFreeRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "b")
	pool, err := NewSymlinkPool(root)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "target-file")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	slot, err := pool.Alloc(target)
	require.NoError(t, err)
	require.Len(t, filepath.Base(slot), 3)

	resolved, err := os.Readlink(slot)
	require.NoError(t, err)
	require.Equal(t, target, resolved)

	require.NoError(t, pool.Free(slot))

	_, err = os.Lstat(slot)
	require.True(t, os.IsNotExist(err))
}

func TestSymlinkPoolTeardown(t *testing.T) {
	root := filepath.Join(t.TempDir(), "b")
	pool, err := NewSymlinkPool(root)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "target-file")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	_, err = pool.Alloc(target)
	require.NoError(t, err)

	pool.Teardown()

	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err))
}
