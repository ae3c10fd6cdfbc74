// Package vfs implements the File contract (spec.md §3 File, §4.6)
// and its backends, plus the per-process FdTable and FsInfo (spec.md
// §3). The File contract is a tagged family over backends —
// passthrough, cow, tmp, synthesized (proc), event, socket — each
// owning its own state; handlers never see backend types directly
// (spec.md §4.10 "Handlers never see backend types directly").
package vfs

import "github.com/canonical/bvisor/internal/errno"

// Backend is the family tag for an open-file object (spec.md §3 File).
type Backend int

const (
	BackendPassthrough Backend = iota
	BackendCow
	BackendTmp
	BackendProc
	BackendEvent
	BackendSocket
)

// Statx mirrors the subset of struct statx fields bvisor's backends
// need to synthesize or forward (spec.md §4.6, §4.7).
type Statx struct {
	Mode  uint32
	Nlink uint32
	Size  uint64
	Ino   uint64
}

// File is the common contract every backend implements (spec.md
// §4.6). Operations a backend does not support return the
// Linux-conventional errno (NOTTY, NOTSOCK, INVAL, ROFS).
type File interface {
	Backend() Backend
	Read(buf []byte) (int, errno.Errno)
	Write(data []byte) (int, errno.Errno)
	Close() errno.Errno
	Statx() (Statx, errno.Errno)
	Lseek(offset int64, whence int) (int64, errno.Errno)
	Ioctl(req uint, arg uint64) (int64, errno.Errno)
	Getdents64(buf []byte) (int, errno.Errno)

	// Socket-only operations; non-socket backends return ENOTSOCK.
	Connect(addr []byte) errno.Errno
	Shutdown(how int) errno.Errno
	SendTo(data []byte, addr []byte) (int, errno.Errno)
	RecvFrom(buf []byte) (int, errno.Errno)
}

// PathAware is implemented by backends that track the guest-visible
// path they were opened from (cow, tmp). fchdir type-asserts a File to
// this to recover a path to chdir into, since the fd itself carries no
// path (spec.md §4.9 fchdir).
type PathAware interface {
	GuestPath() string
}

// state is the File lifecycle state machine (spec.md §4.10):
// open -> closed. A backend is open from construction; there is no
// separate uninitialized state.
type state int

const (
	stateOpen state = iota
	stateClosed
)

// unsupported is embedded by backends to provide ENOTTY/ENOTSOCK
// defaults for operations they don't implement, per spec.md §4.6's
// "backends not supporting an operation return the Linux-conventional
// errno".
type unsupported struct{}

func (unsupported) Ioctl(req uint, arg uint64) (int64, errno.Errno) { return 0, errno.ENOTTY }
func (unsupported) Connect(addr []byte) errno.Errno                { return errno.ENOTSOCK }
func (unsupported) Shutdown(how int) errno.Errno                    { return errno.ENOTSOCK }
func (unsupported) SendTo(data []byte, addr []byte) (int, errno.Errno) {
	return 0, errno.ENOTSOCK
}
func (unsupported) RecvFrom(buf []byte) (int, errno.Errno) { return 0, errno.ENOTSOCK }
func (unsupported) Getdents64(buf []byte) (int, errno.Errno) {
	return 0, errno.ENOTDIR
}
