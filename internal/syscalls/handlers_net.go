package syscalls

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/vfs"
)

func handleIoctl(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	val, e := f.Ioctl(uint(ctx.Req.Args[1]), ctx.Req.Args[2])

	return replyVal(ctx, val, e)
}

func handleConnect(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	addr, e := ctx.Mem.Read(ctx.Req.Args[1], int(ctx.Req.Args[2]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return replyErrno(ctx, f.Connect(addr))
}

func handleShutdown(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return replyErrno(ctx, f.Shutdown(int(ctx.Req.Args[1])))
}

func handleSendto(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	data, e := ctx.Mem.Read(ctx.Req.Args[1], int(ctx.Req.Args[2]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	var addr []byte

	if addrLen := int(ctx.Req.Args[5]); addrLen > 0 && ctx.Req.Args[4] != 0 {
		addr, e = ctx.Mem.Read(ctx.Req.Args[4], addrLen)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}
	}

	n, e := f.SendTo(data, addr)

	return replyVal(ctx, int64(n), e)
}

func handleRecvfrom(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	buf := make([]byte, int(ctx.Req.Args[2]))

	n, e := f.RecvFrom(buf)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	written, e := ctx.Mem.Write(ctx.Req.Args[1], buf[:n])

	return replyVal(ctx, int64(written), e)
}

// msghdrSize is sizeof(struct msghdr) on amd64 (spec.md §6 "same wire
// assumptions as the rest of the bridge layer": little-endian, no
// unsafe struct punning across the guest/supervisor boundary).
const msghdrSize = 56

type decodedMsghdr struct {
	nameAddr uint64
	nameLen  uint32
	iovAddr  uint64
}

func decodeMsghdr(raw []byte) decodedMsghdr {
	return decodedMsghdr{
		nameAddr: binary.LittleEndian.Uint64(raw[0:8]),
		nameLen:  binary.LittleEndian.Uint32(raw[8:12]),
		iovAddr:  binary.LittleEndian.Uint64(raw[16:24]),
	}
}

// handleSendmsg supports a single iovec entry and an optional address;
// ancillary control data is not forwarded (spec.md Non-goals: no
// network namespace, so cmsg-borne fd passing has no destination
// namespace to land in anyway).
func handleSendmsg(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	raw, e := ctx.Mem.Read(ctx.Req.Args[1], msghdrSize)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	hdr := decodeMsghdr(raw)

	iovecs, e := readIovecs(ctx, hdr.iovAddr, 1)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	var data []byte
	if len(iovecs) > 0 {
		data, e = ctx.Mem.Read(iovecs[0].base, int(iovecs[0].len))
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}
	}

	var addr []byte
	if hdr.nameLen > 0 {
		addr, e = ctx.Mem.Read(hdr.nameAddr, int(hdr.nameLen))
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}
	}

	n, e := f.SendTo(data, addr)

	return replyVal(ctx, int64(n), e)
}

// handleRecvmsg mirrors handleSendmsg's single-iovec simplification.
func handleRecvmsg(ctx *Context) notif.Response {
	f, e := ctx.Caller.Fds.Get(int(ctx.Req.Args[0]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	raw, e := ctx.Mem.Read(ctx.Req.Args[1], msghdrSize)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	hdr := decodeMsghdr(raw)

	iovecs, e := readIovecs(ctx, hdr.iovAddr, 1)
	if e != errno.Success || len(iovecs) == 0 {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	buf := make([]byte, iovecs[0].len)

	n, e := f.RecvFrom(buf)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	written, e := ctx.Mem.Write(iovecs[0].base, buf[:n])

	return replyVal(ctx, int64(written), e)
}

// onlyAfUnix is the one socket family bvisor's guests can dial from
// inside the sandbox (spec.md Non-goals: no network namespace).
const onlyAfUnix = unix.AF_UNIX

func handleSocket(ctx *Context) notif.Response {
	domain := int(ctx.Req.Args[0])
	if domain != onlyAfUnix {
		return notif.Fail(ctx.Req.ID, int32(errno.EACCES))
	}

	typ := int(ctx.Req.Args[1])
	proto := int(ctx.Req.Args[2])

	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return notif.Fail(ctx.Req.ID, int32(errno.FromSyscallErr(err)))
	}

	newFd := ctx.Caller.Fds.Install(vfs.NewSocket(fd))

	return notif.Success(ctx.Req.ID, int64(newFd))
}

func handleSocketpair(ctx *Context) notif.Response {
	domain := int(ctx.Req.Args[0])
	if domain != onlyAfUnix {
		return notif.Fail(ctx.Req.ID, int32(errno.EACCES))
	}

	typ := int(ctx.Req.Args[1])
	proto := int(ctx.Req.Args[2])

	fds, err := unix.Socketpair(domain, typ, proto)
	if err != nil {
		return notif.Fail(ctx.Req.ID, int32(errno.FromSyscallErr(err)))
	}

	a := ctx.Caller.Fds.Install(vfs.NewSocket(fds[0]))
	b := ctx.Caller.Fds.Install(vfs.NewSocket(fds[1]))

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(b))

	if _, e := ctx.Mem.Write(ctx.Req.Args[3], buf[:]); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}
