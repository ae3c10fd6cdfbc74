// Package errno defines the Linux errno taxonomy bvisor replies with.
//
// Every error that crosses the syscall reply boundary (spec.md §4.1,
// §4.11) is one of these values. Backends and handlers work in terms
// of Errno directly; nothing further downstream needs to know it
// originated from a host I/O failure, a parse error, or a deliberate
// PERM block.
package errno

import "golang.org/x/sys/unix"

// Errno is a Linux E-value, as returned to the guest in a reply's
// error field (negated) per the notification ABI in spec.md §6.
type Errno int

// Success is the zero value: a synthetic successful reply carries no Errno.
const Success Errno = 0

// The subset of the Linux errno space bvisor's backends and handlers
// produce. Named after their E-constant, value taken from
// golang.org/x/sys/unix so the table can never drift from the host's
// own definitions.
const (
	EPERM       Errno = Errno(unix.EPERM)
	ENOENT      Errno = Errno(unix.ENOENT)
	ESRCH       Errno = Errno(unix.ESRCH)
	EIO         Errno = Errno(unix.EIO)
	EBADF       Errno = Errno(unix.EBADF)
	ENOMEM      Errno = Errno(unix.ENOMEM)
	EACCES      Errno = Errno(unix.EACCES)
	EEXIST      Errno = Errno(unix.EEXIST)
	ENOTDIR     Errno = Errno(unix.ENOTDIR)
	EISDIR      Errno = Errno(unix.EISDIR)
	EINVAL      Errno = Errno(unix.EINVAL)
	ENFILE      Errno = Errno(unix.ENFILE)
	EMFILE      Errno = Errno(unix.EMFILE)
	ENOTTY      Errno = Errno(unix.ENOTTY)
	EFBIG       Errno = Errno(unix.EFBIG)
	ENOSPC      Errno = Errno(unix.ENOSPC)
	EROFS       Errno = Errno(unix.EROFS)
	ENAMETOOLONG Errno = Errno(unix.ENAMETOOLONG)
	ENOSYS      Errno = Errno(unix.ENOSYS)
	ENOTEMPTY   Errno = Errno(unix.ENOTEMPTY)
	ENOTSOCK    Errno = Errno(unix.ENOTSOCK)
	EOPNOTSUPP  Errno = Errno(unix.EOPNOTSUPP)
	ETIMEDOUT   Errno = Errno(unix.ETIMEDOUT)
)

// Linux returns the positive E-value as the kernel defines it.
func (e Errno) Linux() int {
	return int(e)
}

// Reply returns the value the notification ABI expects in a response's
// error field: the negated errno, per spec.md §6 ("error is the
// negated errno").
func (e Errno) Reply() int32 {
	return -int32(e)
}

func (e Errno) Error() string {
	if e == Success {
		return "success"
	}

	return unix.Errno(e).Error()
}

// FromSyscallErr translates an error returned by a host syscall (an
// unix.Errno, or something wrapping one) into an Errno, defaulting to
// EIO for anything unrecognized per spec.md §4.11 ("host-originated
// errors ... translated to the closest Linux errno").
func FromSyscallErr(err error) Errno {
	if err == nil {
		return Success
	}

	var sysErr unix.Errno
	if e, ok := asErrno(err); ok {
		sysErr = e
	} else {
		return EIO
	}

	return Errno(sysErr)
}

func asErrno(err error) (unix.Errno, bool) {
	type errnoer interface{ Unwrap() error }

	for err != nil {
		if e, ok := err.(unix.Errno); ok {
			return e, true
		}

		u, ok := err.(errnoer)
		if !ok {
			return 0, false
		}

		err = u.Unwrap()
	}

	return 0, false
}
