package procns

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
)

func TestOpenProcRootListsVisibleNsTids(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	_, err = NewThread(NewThreadParams{Parent: root, Tid: 101})
	require.NoError(t, err)

	dir, err := OpenProcRoot(root)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, e := dir.Getdents64(buf)
	require.Equal(t, errno.Success, e)
	require.Greater(t, n, 0)
}

func TestOpenProcPidStatusReportsNamespacedIds(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101})
	require.NoError(t, err)

	childNsTid, ok := root.NS.NsTidOf(child)
	require.True(t, ok)

	statusFile, ok := OpenProcPidStatus(root, childNsTid)
	require.True(t, ok)

	buf := make([]byte, 4096)
	n, e := statusFile.Read(buf)
	require.Equal(t, errno.Success, e)
	require.Contains(t, string(buf[:n]), fmt.Sprintf("PPid:\t%d\n", root.AbsTid)) // root namespace: NsTid == AbsTid
}

func TestOpenProcPidDirUnknownNsTidFails(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	_, ok := OpenProcPidDir(root, NsTid(999))
	require.False(t, ok)
}
