package vfs

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
)

// Passthrough wraps a host fd, forwarding every operation 1:1 with
// errno translation (spec.md §4.6).
type Passthrough struct {
	unsupported

	mu    sync.Mutex
	fd    int
	state state
}

// NewPassthrough wraps an already-open host fd.
func NewPassthrough(fd int) *Passthrough {
	return &Passthrough{fd: fd}
}

func (p *Passthrough) Backend() Backend { return BackendPassthrough }

func (p *Passthrough) Read(buf []byte) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := unix.Read(p.fd, buf)
	if err != nil && n <= 0 {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

func (p *Passthrough) Write(data []byte) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := unix.Write(p.fd, data)
	if err != nil && n <= 0 {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

func (p *Passthrough) Close() errno.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return errno.EBADF
	}

	p.state = stateClosed

	// Tests create synthetic fds that were never opened; silently
	// ignore close errors on those (spec.md §4.10).
	_ = unix.Close(p.fd)

	return errno.Success
}

func (p *Passthrough) Statx() (Statx, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return Statx{}, errno.EBADF
	}

	var st unix.Stat_t

	if err := unix.Fstat(p.fd, &st); err != nil {
		return Statx{}, errno.FromSyscallErr(err)
	}

	return Statx{Mode: st.Mode, Nlink: uint32(st.Nlink), Size: uint64(st.Size), Ino: st.Ino}, errno.Success
}

func (p *Passthrough) Lseek(offset int64, whence int) (int64, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return 0, errno.EBADF
	}

	off, err := unix.Seek(p.fd, offset, whence)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return off, errno.Success
}

func (p *Passthrough) Ioctl(req uint, arg uint64) (int64, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return 0, errno.EBADF
	}

	ret, _, sysErr := unix.Syscall(unix.SYS_IOCTL, uintptr(p.fd), uintptr(req), uintptr(arg))
	if sysErr != 0 {
		return 0, errno.FromSyscallErr(sysErr)
	}

	return int64(ret), errno.Success
}

func (p *Passthrough) Getdents64(buf []byte) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateClosed {
		return 0, errno.EBADF
	}

	n, err := unix.Getdents(p.fd, buf)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

// Fd returns the underlying host fd, e.g. for addfd injection.
func (p *Passthrough) Fd() int { return p.fd }
