package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
)

const testUID = "deadbeefcafef00d"

func TestResolveCowAndTmp(t *testing.T) {
	base := t.TempDir()
	root, err := New(base, testUID)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(base, testUID, "cow", "etc", "passwd"), root.ResolveCow("/etc/passwd"))

	tmp, e := root.ResolveTmp("/tmp/foo")
	require.Equal(t, errno.Success, e)
	require.Equal(t, filepath.Join(base, testUID, "tmp", "foo"), tmp)

	_, e = root.ResolveTmp("/etc/passwd")
	require.Equal(t, errno.EINVAL, e)
}

func TestCreateCowParentDirsAndExists(t *testing.T) {
	base := t.TempDir()
	root, err := New(base, testUID)
	require.NoError(t, err)

	require.False(t, root.CowExists("/a/b/c.txt"))

	require.NoError(t, root.CreateCowParentDirs("/a/b/c.txt"))
	require.NoError(t, os.WriteFile(root.ResolveCow("/a/b/c.txt"), []byte("hi"), 0o644))

	require.True(t, root.CowExists("/a/b/c.txt"))
}

func TestRootTombstoneDelegatesToTombstoneSet(t *testing.T) {
	base := t.TempDir()
	root, err := New(base, testUID)
	require.NoError(t, err)

	require.False(t, root.IsTombstoned("/etc/passwd"))

	root.Tombstone("/etc/passwd", KindFile)
	require.True(t, root.IsTombstoned("/etc/passwd"))

	root.ClearTombstone("/etc/passwd")
	require.False(t, root.IsTombstoned("/etc/passwd"))
}

func TestTeardownRemovesSandbox(t *testing.T) {
	base := t.TempDir()
	root, err := New(base, testUID)
	require.NoError(t, err)

	require.NoError(t, root.Teardown())

	_, err = os.Stat(filepath.Join(base, testUID))
	require.True(t, os.IsNotExist(err))
}
