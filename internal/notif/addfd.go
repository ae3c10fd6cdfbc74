package notif

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/config"
)

// seccompNotifAddfd mirrors struct seccomp_notif_addfd: injects a
// supervisor-held fd into the guest's fd table in response to a live
// notification (spec.md §6, used by pipe2/socket adoption).
type seccompNotifAddfd struct {
	ID        uint64
	Flags     uint32
	SrcFd     uint32
	NewFd     uint32
	NewFdFlags uint32
}

const seccompAddfdFlagSetFd = 1 << 0

// AddFD installs srcFd (open in the supervisor) as newFd (or the
// lowest free fd, if fixed is false) in the guest that raised
// notification id. It returns the fd number the guest now owns.
func (s *Source) AddFD(id uint64, srcFd int, newFd int, fixed bool, cloexec bool) (int, error) {
	req := seccompNotifAddfd{
		ID:    id,
		SrcFd: uint32(srcFd),
	}

	if fixed {
		req.Flags |= seccompAddfdFlagSetFd
		req.NewFd = uint32(newFd)
	}

	if cloexec {
		req.NewFdFlags = unix.O_CLOEXEC
	}

	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), unix.SECCOMP_IOCTL_NOTIF_ADDFD, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		if errno == unix.ENOENT {
			return 0, ErrGuestGone
		}

		return 0, fmt.Errorf("seccomp notif addfd: %w", errno)
	}

	return int(ret), nil
}

// LookupGuestNotifyFD resolves the notification fd slot of a newly
// spawned guest thread via pidfd_open + pidfd_getfd, retrying with
// geometric backoff because the child may not have the fd installed
// yet by the time the supervisor looks (spec.md §6).
func LookupGuestNotifyFD(tid int, guestFd int) (int, error) {
	pidfd, err := unix.PidfdOpen(tid, 0)
	if err != nil {
		return 0, fmt.Errorf("pidfd_open(%d): %w", tid, err)
	}

	defer func() { _ = unix.Close(pidfd) }()

	backoff := time.Duration(config.PidfdLookupInitialBackoffNs) * time.Nanosecond

	var lastErr error

	for attempt := 0; attempt < config.PidfdLookupMaxAttempts; attempt++ {
		fd, err := unix.PidfdGetfd(pidfd, guestFd, 0)
		if err == nil {
			return fd, nil
		}

		lastErr = err
		time.Sleep(backoff)
		backoff = time.Duration(float64(backoff) * config.PidfdLookupBackoffFactor)
	}

	return 0, fmt.Errorf("pidfd_getfd(%d, %d): exhausted retries: %w", tid, guestFd, lastErr)
}
