package vfs

import (
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
)

// Socket wraps a host socket fd, forwarding the socket-family
// operations (spec.md §4.9: "ioctl/connect/shutdown/sendto/recvfrom/
// sendmsg/recvmsg/socket/socketpair dispatched to the File's
// backend").
type Socket struct {
	Passthrough
}

// NewSocket wraps an already-created host socket fd.
func NewSocket(fd int) *Socket {
	return &Socket{Passthrough: *NewPassthrough(fd)}
}

func (s *Socket) Backend() Backend { return BackendSocket }

func (s *Socket) Getdents64(buf []byte) (int, errno.Errno) { return 0, errno.ENOTDIR }

func (s *Socket) Connect(addr []byte) errno.Errno {
	sa, err := decodeSockaddr(addr)
	if err != nil {
		return errno.EINVAL
	}

	if err := unix.Connect(s.Fd(), sa); err != nil {
		return errno.FromSyscallErr(err)
	}

	return errno.Success
}

func (s *Socket) Shutdown(how int) errno.Errno {
	if err := unix.Shutdown(s.Fd(), how); err != nil {
		return errno.FromSyscallErr(err)
	}

	return errno.Success
}

func (s *Socket) SendTo(data []byte, addr []byte) (int, errno.Errno) {
	if len(addr) == 0 {
		if err := unix.Send(s.Fd(), data, 0); err != nil {
			return 0, errno.FromSyscallErr(err)
		}

		return len(data), errno.Success
	}

	sa, err := decodeSockaddr(addr)
	if err != nil {
		return 0, errno.EINVAL
	}

	if err := unix.Sendto(s.Fd(), data, 0, sa); err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return len(data), errno.Success
}

func (s *Socket) RecvFrom(buf []byte) (int, errno.Errno) {
	n, _, err := unix.Recvfrom(s.Fd(), buf, 0)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}

// decodeSockaddr interprets addr as a sockaddr_un path, the only
// address family bvisor's guests realistically dial from inside the
// sandbox (AF_UNIX control sockets); anything else is rejected with
// EINVAL rather than guessed at.
func decodeSockaddr(addr []byte) (unix.Sockaddr, error) {
	// sockaddr_un is sa_family (u16, host order) followed by sun_path.
	if len(addr) < 2 || byteOrder.Uint16(addr[0:2]) != unix.AF_UNIX {
		return nil, unix.EINVAL
	}

	path := string(trimNul(addr[2:]))
	return &unix.SockaddrUnix{Name: path}, nil
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}

	return b
}
