package syscalls

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/vfs"
)

// handleEventfd2 installs a real eventfd-backed File (spec.md §4.6
// Event), the one fd-creating handler that never touches a path: the
// router has no say in it.
func handleEventfd2(ctx *Context) notif.Response {
	initval := uint(ctx.Req.Args[0])
	flags := int(ctx.Req.Args[1])

	f, e := vfs.NewEvent(initval, flags)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	fd := ctx.Caller.Fds.Install(f)

	return notif.Success(ctx.Req.ID, int64(fd))
}

// openPassthroughDevice opens one of the router's fixed allow-listed
// device nodes directly against the host (spec.md §4.4 PassthroughDevice).
func openPassthroughDevice(path string, flags int, mode uint32) (vfs.File, errno.Errno) {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	return vfs.NewPassthrough(fd), errno.Success
}

func unixRemove(path string) error {
	if err := unix.Unlink(path); err == nil {
		return nil
	}

	return unix.Rmdir(path)
}

func unixMkdir(path string, mode uint32) error {
	return unix.Mkdir(path, mode)
}

func unixRename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}
