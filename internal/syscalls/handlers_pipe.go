package syscalls

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/vfs"
)

// handlePipe2 creates a real host pipe and adopts both ends into the
// guest's real fd table via addfd (spec.md §6), then installs matching
// Passthrough entries in the virtual FdTable at the same fd numbers.
// Adopting for real (rather than CONTINUE-ing the syscall unmodified)
// keeps both tables in lockstep the way every other fd-creating
// handler in this package does.
func handlePipe2(ctx *Context) notif.Response {
	flags := int(ctx.Req.Args[1])

	hostFds := make([]int, 2)
	if err := unix.Pipe2(hostFds, flags); err != nil {
		return notif.Fail(ctx.Req.ID, int32(errno.FromSyscallErr(err)))
	}

	cloexec := flags&unix.O_CLOEXEC != 0

	guestFds := make([]int32, 2)

	for i, hostFd := range hostFds {
		guestFd, err := ctx.Notif.AddFD(ctx.Req.ID, hostFd, 0, false, cloexec)
		if err != nil {
			if err == notif.ErrGuestGone {
				return notif.Fail(ctx.Req.ID, int32(errno.ESRCH))
			}

			return notif.Fail(ctx.Req.ID, int32(errno.EIO))
		}

		ctx.Caller.Fds.InstallAt(guestFd, vfs.NewPassthrough(hostFd), cloexec)
		guestFds[i] = int32(guestFd)
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(guestFds[0]))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(guestFds[1]))

	if _, e := ctx.Mem.Write(ctx.Req.Args[0], buf); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}
