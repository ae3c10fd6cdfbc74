package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
)

// countingFile is a minimal File used to observe Close calls.
type countingFile struct {
	unsupported
	closed int
}

func (c *countingFile) Backend() Backend                            { return BackendPassthrough }
func (c *countingFile) Read(buf []byte) (int, errno.Errno)          { return 0, errno.Success }
func (c *countingFile) Write(data []byte) (int, errno.Errno)        { return len(data), errno.Success }
func (c *countingFile) Statx() (Statx, errno.Errno)                 { return Statx{}, errno.Success }
func (c *countingFile) Lseek(o int64, w int) (int64, errno.Errno)   { return 0, errno.Success }
func (c *countingFile) Close() errno.Errno {
	c.closed++
	return errno.Success
}

func TestFdTableLowestFreeFd(t *testing.T) {
	tbl := NewFdTable()

	fd0 := tbl.Install(&countingFile{})
	fd1 := tbl.Install(&countingFile{})
	require.Equal(t, 0, fd0)
	require.Equal(t, 1, fd1)

	require.Equal(t, errno.Success, tbl.Close(fd0))

	fd2 := tbl.Install(&countingFile{})
	require.Equal(t, 0, fd2)
}

func TestFdTableDupThenCloseOriginalKeepsDupAlive(t *testing.T) {
	tbl := NewFdTable()
	f := &countingFile{}
	fd := tbl.Install(f)

	dupFd, e := tbl.Dup(fd)
	require.Equal(t, errno.Success, e)

	require.Equal(t, errno.Success, tbl.Close(fd))
	require.Equal(t, 0, f.closed)

	got, e := tbl.Get(dupFd)
	require.Equal(t, errno.Success, e)
	require.Equal(t, f, got)

	require.Equal(t, errno.Success, tbl.Close(dupFd))
	require.Equal(t, 1, f.closed)
}

func TestFdTableCloneSharesRefsIndependentSlots(t *testing.T) {
	tbl := NewFdTable()
	f := &countingFile{}
	fd := tbl.Install(f)

	clone := tbl.Clone()

	// Closing in the clone must not affect the original's slot.
	require.Equal(t, errno.Success, clone.Close(fd))
	require.Equal(t, 0, f.closed)

	got, e := tbl.Get(fd)
	require.Equal(t, errno.Success, e)
	require.Equal(t, f, got)

	require.Equal(t, errno.Success, tbl.Close(fd))
	require.Equal(t, 1, f.closed)
}

func TestFdTableDup3Cloexec(t *testing.T) {
	tbl := NewFdTable()
	f := &countingFile{}
	fd := tbl.Install(f)

	e := tbl.Dup3(fd, 10, true)
	require.Equal(t, errno.Success, e)

	cloexec, e := tbl.Cloexec(10)
	require.Equal(t, errno.Success, e)
	require.True(t, cloexec)

	require.Equal(t, errno.EINVAL, tbl.Dup3(fd, fd, false))
}

func TestFdTableRefcountInvariant(t *testing.T) {
	tbl := NewFdTable()
	fd := tbl.Install(&countingFile{})

	count, e := tbl.RefCount(fd)
	require.Equal(t, errno.Success, e)
	require.GreaterOrEqual(t, count, int32(1))
}
