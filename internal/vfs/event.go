package vfs

import (
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
)

// Event wraps an eventfd, restricted to read/write/close (spec.md
// §4.6).
type Event struct {
	Passthrough
}

// NewEvent creates a new eventfd-backed File with the given initial
// value and flags (unix.EFD_*).
func NewEvent(initval uint, flags int) (*Event, errno.Errno) {
	fd, err := unix.Eventfd(initval, flags)
	if err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	return &Event{Passthrough: *NewPassthrough(fd)}, errno.Success
}

func (e *Event) Backend() Backend { return BackendEvent }

func (e *Event) Statx() (Statx, errno.Errno) {
	return Statx{Mode: unix.S_IFREG | 0o600}, errno.Success
}

func (e *Event) Getdents64(buf []byte) (int, errno.Errno) { return 0, errno.ENOTDIR }

func (e *Event) Ioctl(req uint, arg uint64) (int64, errno.Errno) { return 0, errno.ENOTTY }
