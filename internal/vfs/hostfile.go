package vfs

import (
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
)

// hostFile is the shared plumbing for backends whose storage is a
// real host *os.File (cow, tmp): read/write/close/statx/lseek/
// getdents64 forward to it, with errno translation (spec.md §4.6).
type hostFile struct {
	unsupported

	mu        sync.Mutex
	f         *os.File
	state     state
	guestPath string
}

func newHostFile(f *os.File, guestPath string) hostFile {
	return hostFile{f: f, guestPath: guestPath}
}

// GuestPath returns the guest-visible path this File was opened
// from, for backends (cow, tmp) that track one (spec.md §4.9 fchdir:
// "requires the backend to expose its guest-visible path").
func (h *hostFile) GuestPath() string { return h.guestPath }

func (h *hostFile) Read(buf []byte) (int, errno.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := h.f.Read(buf)
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			return 0, errno.Success
		}

		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

func (h *hostFile) Write(data []byte) (int, errno.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := h.f.Write(data)
	if err != nil && n == 0 {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

func (h *hostFile) Close() errno.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return errno.EBADF
	}

	h.state = stateClosed
	_ = h.f.Close()

	return errno.Success
}

func (h *hostFile) Statx() (Statx, errno.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return Statx{}, errno.EBADF
	}

	var st unix.Stat_t

	if err := unix.Fstat(int(h.f.Fd()), &st); err != nil {
		return Statx{}, errno.FromSyscallErr(err)
	}

	return Statx{Mode: st.Mode, Nlink: uint32(st.Nlink), Size: uint64(st.Size), Ino: st.Ino}, errno.Success
}

func (h *hostFile) Lseek(offset int64, whence int) (int64, errno.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return 0, errno.EBADF
	}

	off, err := h.f.Seek(offset, whence)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return off, errno.Success
}

func (h *hostFile) Getdents64(buf []byte) (int, errno.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := unix.Getdents(int(h.f.Fd()), buf)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}
