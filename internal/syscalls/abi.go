package syscalls

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/vfs"
)

// encodeStat renders a vfs.Statx result as a Linux struct stat, in the
// host's own ABI layout (unix.Stat_t already mirrors it field-for-
// field), for fstat/fstatat/newfstatat replies (spec.md §4.9).
func encodeStat(st vfs.Statx) []byte {
	var raw unix.Stat_t

	raw.Mode = st.Mode
	raw.Nlink = uint64(st.Nlink)
	raw.Size = int64(st.Size)
	raw.Ino = st.Ino
	raw.Blksize = 4096
	raw.Blocks = int64((st.Size + 511) / 512)

	return structBytes(&raw)
}

// encodeStatx renders a vfs.Statx result as a Linux struct statx
// (spec.md §4.9 statx).
func encodeStatx(st vfs.Statx) []byte {
	var raw unix.Statx_t

	raw.Mask = unix.STATX_TYPE | unix.STATX_MODE | unix.STATX_NLINK | unix.STATX_INO | unix.STATX_SIZE
	raw.Mode = uint16(st.Mode)
	raw.Nlink = st.Nlink
	raw.Ino = st.Ino
	raw.Size = st.Size
	raw.Blksize = 4096

	return structBytes(&raw)
}

// structBytes views a fixed-layout struct as its raw bytes, the same
// trick the notif package's ioctl wrappers use to hand the kernel a
// pointer to a Go value (spec.md §6).
func structBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
