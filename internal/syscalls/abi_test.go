package syscalls

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/vfs"
)

func TestEncodeStatMirrorsInputFields(t *testing.T) {
	st := vfs.Statx{Mode: unix.S_IFREG | 0o644, Nlink: 1, Size: 1024, Ino: 42}

	raw := encodeStat(st)
	require.Len(t, raw, int(unsafe.Sizeof(unix.Stat_t{})))

	var decoded unix.Stat_t
	copy(structBytes(&decoded), raw)

	require.Equal(t, st.Mode, decoded.Mode)
	require.Equal(t, int64(st.Size), decoded.Size)
	require.Equal(t, st.Ino, decoded.Ino)
}

func TestEncodeStatxSetsExpectedMask(t *testing.T) {
	st := vfs.Statx{Mode: unix.S_IFDIR | 0o755, Nlink: 2, Size: 0, Ino: 7}

	raw := encodeStatx(st)

	var decoded unix.Statx_t
	copy(structBytes(&decoded), raw)

	wantMask := uint32(unix.STATX_TYPE | unix.STATX_MODE | unix.STATX_NLINK | unix.STATX_INO | unix.STATX_SIZE)
	require.Equal(t, wantMask, decoded.Mask)
	require.Equal(t, uint16(st.Mode), decoded.Mode)
	require.Equal(t, st.Nlink, decoded.Nlink)
	require.Equal(t, st.Ino, decoded.Ino)
}
