package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
)

type fakeOverlay struct {
	base string
}

func (f *fakeOverlay) ResolveCow(path string) string {
	return filepath.Join(f.base, "cow", path)
}

func (f *fakeOverlay) CreateCowParentDirs(path string) error {
	return os.MkdirAll(filepath.Dir(f.ResolveCow(path)), 0o755)
}

func TestCowCreateWriteReadBack(t *testing.T) {
	dir := t.TempDir()
	ov := &fakeOverlay{base: dir}

	hostPath := filepath.Join(dir, "host", "etc", "x")

	f, e := OpenCow(ov, hostPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.Equal(t, errno.Success, e)

	n, e := f.Write([]byte("hello bvisor"))
	require.Equal(t, errno.Success, e)
	require.Equal(t, 12, n)
	require.Equal(t, errno.Success, f.Close())

	f2, e := OpenCow(ov, hostPath, os.O_RDONLY, 0)
	require.Equal(t, errno.Success, e)

	buf := make([]byte, 64)
	n, e = f2.Read(buf)
	require.Equal(t, errno.Success, e)
	require.Equal(t, 12, n)
	require.Equal(t, "hello bvisor", string(buf[:n]))
	require.Equal(t, errno.Success, f2.Close())
}

func TestCowReadOnlyFallsThroughToHostWhenNoCopyExists(t *testing.T) {
	dir := t.TempDir()
	ov := &fakeOverlay{base: dir}

	hostPath := filepath.Join(dir, "real.txt")
	require.NoError(t, os.WriteFile(hostPath, []byte("on host"), 0o644))

	f, e := OpenCow(ov, hostPath, os.O_RDONLY, 0)
	require.Equal(t, errno.Success, e)

	buf := make([]byte, 64)
	n, e := f.Read(buf)
	require.Equal(t, errno.Success, e)
	require.Equal(t, "on host", string(buf[:n]))

	require.False(t, ov.cowExists(hostPath))
}

func (f *fakeOverlay) cowExists(path string) bool {
	_, err := os.Stat(f.ResolveCow(path))
	return err == nil
}
