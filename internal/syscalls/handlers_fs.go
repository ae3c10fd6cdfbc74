package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/overlay"
	"github.com/canonical/bvisor/internal/procns"
	"github.com/canonical/bvisor/internal/router"
	"github.com/canonical/bvisor/internal/vfs"
)

const maxPathLen = 4096

// atFdCwd mirrors AT_FDCWD: dirfd meaning "relative to cwd".
const atFdCwd = -100

// resolvePath reads the path argument from guest memory and requires
// it to be absolute (spec.md §4.9 openat: "require absolute"). Guests
// in this sandbox have no meaningful relative-to-dirfd opens since
// only AT_FDCWD is honored and cwd itself only ever holds absolute
// paths.
func resolvePath(ctx *Context, addr uint64) (string, errno.Errno) {
	path, e := ctx.Mem.ReadCString(addr, maxPathLen)
	if e != errno.Success {
		return "", e
	}

	if len(path) == 0 || path[0] != '/' {
		return "", errno.EINVAL
	}

	return router.Normalize(path)
}

// openByDecision opens path per the router's decision, per spec.md
// §4.9 openat's routing table.
func openByDecision(ctx *Context, decision router.Decision, path string, flags int, mode uint32) (vfs.File, errno.Errno) {
	switch decision {
	case router.Block:
		return nil, errno.EPERM

	case router.ProcVirtual:
		return procns.ResolveProcPath(ctx.Caller, path)

	case router.TmpOverlay:
		hostPath, e := ctx.Overlay.ResolveTmp(path)
		if e != errno.Success {
			return nil, e
		}

		return vfs.OpenTmp(hostPath, path, flags, mode)

	case router.PassthroughDevice:
		return openPassthroughDevice(path, flags, mode)

	default: // router.CowOverlay
		if ctx.Overlay.IsTombstoned(path) {
			if flags&unix.O_CREAT == 0 {
				return nil, errno.ENOENT
			}

			ctx.Overlay.ClearTombstone(path)
		}

		return vfs.OpenCow(ctx.Overlay, path, flags, mode)
	}
}

func handleOpenat(ctx *Context) notif.Response {
	dirfd := int32(ctx.Req.Args[0])
	if dirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	flags := int(ctx.Req.Args[2])
	mode := uint32(ctx.Req.Args[3])

	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	// CowOverlay also covers a read-only open when a COW copy already
	// exists; OpenCow itself makes that check (spec.md §4.9 openat).
	f, e := openByDecision(ctx, decision, path, flags, mode)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	fd := ctx.Caller.Fds.Install(f)

	return notif.Success(ctx.Req.ID, int64(fd))
}

const (
	stdin  = 0
	stdout = 1
	stderr = 2
)

func handleClose(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	if fd == stdin || fd == stdout || fd == stderr {
		return notif.ContinueResponse(ctx.Req.ID)
	}

	e := ctx.Caller.Fds.Close(fd)

	return replyErrno(ctx, e)
}

func handleRead(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	if fd == stdin || fd == stdout || fd == stderr {
		return notif.ContinueResponse(ctx.Req.ID)
	}

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	n := int(ctx.Req.Args[2])
	buf := make([]byte, n)

	read, e := f.Read(buf)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	written, e := ctx.Mem.Write(ctx.Req.Args[1], buf[:read])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, int64(written))
}

func handleWrite(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	if fd == stdin || fd == stdout || fd == stderr {
		return notif.ContinueResponse(ctx.Req.ID)
	}

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	n := int(ctx.Req.Args[2])

	data, e := ctx.Mem.Read(ctx.Req.Args[1], n)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	written, e := f.Write(data)

	return replyVal(ctx, int64(written), e)
}

func handleDup(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])

	newFd, e := ctx.Caller.Fds.Dup(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, int64(newFd))
}

func handleDup3(ctx *Context) notif.Response {
	oldFd := int(ctx.Req.Args[0])
	newFd := int(ctx.Req.Args[1])
	flags := int(ctx.Req.Args[2])

	const oCloexec = 0o2000000

	e := ctx.Caller.Fds.Dup3(oldFd, newFd, flags&oCloexec != 0)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, int64(newFd))
}

func handleLseek(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	offset := int64(ctx.Req.Args[1])
	whence := int(ctx.Req.Args[2])

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	off, e := f.Lseek(offset, whence)

	return replyVal(ctx, off, e)
}

func handleFstat(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	st, e := f.Statx()
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if _, e := ctx.Mem.Write(ctx.Req.Args[1], encodeStat(st)); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

func handleFstatat(ctx *Context) notif.Response {
	dirfd := int32(ctx.Req.Args[0])
	if dirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	st, e := statPath(ctx, path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if _, e := ctx.Mem.Write(ctx.Req.Args[2], encodeStat(st)); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

func handleStatx(ctx *Context) notif.Response {
	dirfd := int32(ctx.Req.Args[0])
	if dirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	st, e := statPath(ctx, path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if _, e := ctx.Mem.Write(ctx.Req.Args[4], encodeStatx(st)); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

// statPath opens path read-only through the router just to obtain its
// Statx, then closes it. /proc paths synthesize their own (spec.md
// §4.9: "route by path or fd backend").
func statPath(ctx *Context, path string) (vfs.Statx, errno.Errno) {
	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return vfs.Statx{}, e
	}

	if decision == router.Block {
		return vfs.Statx{}, errno.EPERM
	}

	f, e := openByDecision(ctx, decision, path, 0 /* O_RDONLY */, 0)
	if e != errno.Success {
		return vfs.Statx{}, e
	}

	defer func() { _ = f.Close() }()

	return f.Statx()
}

func handleGetcwd(ctx *Context) notif.Response {
	cwd := ctx.Caller.Fs.Cwd()

	n, e := ctx.Mem.Write(ctx.Req.Args[0], append([]byte(cwd), 0))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, int64(n))
}

func handleChdir(ctx *Context) notif.Response {
	path, e := resolvePath(ctx, ctx.Req.Args[0])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if !ctx.Overlay.IsGuestDir(path) {
		return notif.Fail(ctx.Req.ID, int32(errno.ENOTDIR))
	}

	ctx.Caller.Fs.SetCwd(path)

	return notif.Success(ctx.Req.ID, 0)
}

// handleFchdir recovers the guest-visible path of fd's File (only
// cow/tmp backends track one) and chdirs into it the same way chdir
// itself does (spec.md §4.9 "fchdir").
func handleFchdir(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	aware, ok := f.(vfs.PathAware)
	if !ok {
		return notif.Fail(ctx.Req.ID, int32(errno.ENOTDIR))
	}

	path := aware.GuestPath()
	if !ctx.Overlay.IsGuestDir(path) {
		return notif.Fail(ctx.Req.ID, int32(errno.ENOTDIR))
	}

	ctx.Caller.Fs.SetCwd(path)

	return notif.Success(ctx.Req.ID, 0)
}

func handleFaccessat(ctx *Context) notif.Response {
	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if decision == router.Block {
		return notif.Fail(ctx.Req.ID, int32(errno.EACCES))
	}

	if _, e := statPath(ctx, path); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

const (
	fGetfl = 3
	fGetfd = 1
	fSetfd = 2
)

func handleFcntl(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	cmd := int(ctx.Req.Args[1])

	switch cmd {
	case fGetfl:
		if _, e := ctx.Caller.Fds.Get(fd); e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		return notif.Success(ctx.Req.ID, 0)

	case fGetfd:
		cloexec, e := ctx.Caller.Fds.Cloexec(fd)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		if cloexec {
			return notif.Success(ctx.Req.ID, 1)
		}

		return notif.Success(ctx.Req.ID, 0)

	case fSetfd:
		const fdCloexec = 1

		e := ctx.Caller.Fds.SetCloexec(fd, ctx.Req.Args[2]&fdCloexec != 0)

		return replyErrno(ctx, e)

	default:
		return notif.Fail(ctx.Req.ID, int32(errno.ENOSYS))
	}
}

func handleUnlinkat(ctx *Context) notif.Response {
	dirfd := int32(ctx.Req.Args[0])
	if dirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	switch decision {
	case router.TmpOverlay:
		hostPath, e := ctx.Overlay.ResolveTmp(path)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		return replyErrno(ctx, errno.FromSyscallErr(unixRemove(hostPath)))

	case router.CowOverlay:
		kind := overlay.KindFile
		if ctx.Overlay.IsGuestDir(path) {
			kind = overlay.KindDir
		}

		if err := ctx.Overlay.CreateCowParentDirs(path); err == nil {
			_ = unixRemove(ctx.Overlay.ResolveCow(path))
		}

		ctx.Overlay.Tombstone(path, kind)

		return notif.Success(ctx.Req.ID, 0)

	default:
		return notif.Fail(ctx.Req.ID, int32(errno.EPERM))
	}
}

func handleMkdirat(ctx *Context) notif.Response {
	dirfd := int32(ctx.Req.Args[0])
	if dirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	path, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	mode := uint32(ctx.Req.Args[2])

	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	switch decision {
	case router.TmpOverlay:
		hostPath, e := ctx.Overlay.ResolveTmp(path)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		return replyErrno(ctx, errno.FromSyscallErr(unixMkdir(hostPath, mode)))

	case router.CowOverlay:
		if err := ctx.Overlay.CreateCowParentDirs(path); err != nil {
			return notif.Fail(ctx.Req.ID, int32(errno.FromSyscallErr(err)))
		}

		err := unixMkdir(ctx.Overlay.ResolveCow(path), mode)
		if err == nil {
			ctx.Overlay.ClearTombstone(path)
		}

		return replyErrno(ctx, errno.FromSyscallErr(err))

	default:
		return notif.Fail(ctx.Req.ID, int32(errno.EPERM))
	}
}

func handleRenameat2(ctx *Context) notif.Response {
	oldDirfd := int32(ctx.Req.Args[0])
	newDirfd := int32(ctx.Req.Args[2])

	if oldDirfd != atFdCwd || newDirfd != atFdCwd {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	oldPath, e := resolvePath(ctx, ctx.Req.Args[1])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	newPath, e := resolvePath(ctx, ctx.Req.Args[3])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	oldDecision, e := ctx.Router.Resolve(oldPath)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	newDecision, e := ctx.Router.Resolve(newPath)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	if oldDecision != newDecision || (oldDecision != router.TmpOverlay && oldDecision != router.CowOverlay) {
		return notif.Fail(ctx.Req.ID, int32(errno.EPERM))
	}

	resolve := ctx.Overlay.ResolveCow
	if oldDecision == router.TmpOverlay {
		resolve = func(p string) string {
			h, _ := ctx.Overlay.ResolveTmp(p)
			return h
		}
	} else {
		_ = ctx.Overlay.CreateCowParentDirs(newPath)
	}

	err := unixRename(resolve(oldPath), resolve(newPath))
	if err == nil && oldDecision == router.CowOverlay {
		// The old path is gone and the new one now has content, so the
		// tombstone set must track the move the same way it would a
		// separate unlink-then-create (spec.md §8).
		kind := overlay.KindFile
		if ctx.Overlay.IsGuestDir(newPath) {
			kind = overlay.KindDir
		}

		ctx.Overlay.Tombstone(oldPath, kind)
		ctx.Overlay.ClearTombstone(newPath)
	}

	return replyErrno(ctx, errno.FromSyscallErr(err))
}

func replyErrno(ctx *Context, e errno.Errno) notif.Response {
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

func replyVal(ctx *Context, val int64, e errno.Errno) notif.Response {
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, val)
}
