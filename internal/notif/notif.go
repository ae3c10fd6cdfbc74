// Package notif decodes seccomp user-notifications and encodes
// replies (spec.md §4.1, §6). It wraps golang.org/x/sys/unix's
// SeccompNotif types so nothing above this package deals with the
// raw ioctl layout directly.
//
// Installing the BPF filter and obtaining the notification fd is an
// external collaborator's job (spec.md §1); this package only speaks
// the wire format once handed an fd.
package notif

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Request is a decoded notification: caller TID, syscall number, and
// its six raw arguments (spec.md §4.1).
type Request struct {
	ID         uint64
	CallerTID  int32
	SyscallNr  int32
	Args       [6]uint64
}

// Response carries a reply: either Continue (let the kernel run the
// syscall unchanged), or (Val, Error) where Error<=0 is success and
// Error>0 is a positive errno to negate onto the wire (spec.md §4.1,
// §6).
type Response struct {
	ID      uint64
	Continue bool
	Val     int64
	Error   int32
}

// Success builds a synthetic-success Response.
func Success(id uint64, val int64) Response {
	return Response{ID: id, Val: val}
}

// Fail builds a synthetic-failure Response. errno is the positive
// Linux E-value; it is negated when encoded onto the wire.
func Fail(id uint64, errno int32) Response {
	return Response{ID: id, Error: errno}
}

// ContinueResponse builds a passthrough Response.
func ContinueResponse(id uint64) Response {
	return Response{ID: id, Continue: true}
}

// Source reads notifications from, and writes responses to, a seccomp
// notification fd.
type Source struct {
	fd int
}

// NewSource wraps an already-open notification fd. Ownership of fd
// (closing it on teardown) stays with the caller, matching spec.md
// §1's framing of BPF filter installation (and by extension the fd's
// lifetime) as an external collaborator's concern.
func NewSource(fd int) *Source {
	return &Source{fd: fd}
}

// ErrGuestGone is returned by Receive/Reply when the kernel reports
// NOENT: the filter (and with it the guest) is gone. Spec.md §4.2:
// "terminates cleanly on NOENT/hangup".
var ErrGuestGone = fmt.Errorf("seccomp notification fd: guest gone (ENOENT)")

// Receive blocks until a notification is available and decodes it.
func (s *Source) Receive() (Request, error) {
	var raw unix.SeccompNotif

	err := ioctlNotifRecv(s.fd, &raw)
	if err != nil {
		if err == unix.ENOENT {
			return Request{}, ErrGuestGone
		}

		return Request{}, fmt.Errorf("seccomp notif recv: %w", err)
	}

	req := Request{
		ID:        raw.ID,
		CallerTID: int32(raw.Pid),
		SyscallNr: raw.Data.Nr,
	}

	req.Args[0] = raw.Data.Args[0]
	req.Args[1] = raw.Data.Args[1]
	req.Args[2] = raw.Data.Args[2]
	req.Args[3] = raw.Data.Args[3]
	req.Args[4] = raw.Data.Args[4]
	req.Args[5] = raw.Data.Args[5]

	return req, nil
}

// Reply sends resp back to the kernel. Replying to a stale id fails
// with ENOENT; per spec.md §4.1 that is "guest already exited" and is
// reported via ErrGuestGone so callers can log-not-surface it.
func (s *Source) Reply(resp Response) error {
	raw := unix.SeccompNotifResp{
		ID: resp.ID,
	}

	if resp.Continue {
		raw.Flags = unix.SECCOMP_USER_NOTIF_FLAG_CONTINUE
	} else {
		raw.Val = resp.Val
		raw.Error = -resp.Error
	}

	err := ioctlNotifSend(s.fd, &raw)
	if err != nil {
		if err == unix.ENOENT {
			return ErrGuestGone
		}

		return fmt.Errorf("seccomp notif send: %w", err)
	}

	return nil
}

// IDValid reports whether id still refers to a live notification
// (SECCOMP_IOCTL_NOTIF_ID_VALID).
func (s *Source) IDValid(id uint64) bool {
	return ioctlNotifIDValid(s.fd, id) == nil
}

// Fd returns the underlying notification file descriptor, e.g. to
// poll it for readability (spec.md §4.2) or pass it to AddFD.
func (s *Source) Fd() int { return s.fd }
