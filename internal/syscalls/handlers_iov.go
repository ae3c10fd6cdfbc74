package syscalls

import (
	"encoding/binary"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

// iovecSize is sizeof(struct iovec) on amd64: a pointer and a size_t,
// both 8 bytes.
const iovecSize = 16

// readIovecs walks the guest's iovec array starting at addr, bounded
// to config.MaxIovecEntries entries (spec.md §4.9 readv/writev).
func readIovecs(ctx *Context, addr uint64, count int) ([]struct {
	base uint64
	len  uint64
}, errno.Errno) {
	if count > ctx.Config.MaxIovecEntries {
		count = ctx.Config.MaxIovecEntries
	}

	raw, e := ctx.Mem.Read(addr, count*iovecSize)
	if e != errno.Success {
		return nil, e
	}

	out := make([]struct {
		base uint64
		len  uint64
	}, count)

	for i := 0; i < count; i++ {
		off := i * iovecSize
		out[i].base = binary.LittleEndian.Uint64(raw[off : off+8])
		out[i].len = binary.LittleEndian.Uint64(raw[off+8 : off+16])
	}

	return out, errno.Success
}

// handleReadv reads into the supervisor's staging buffer once per
// iovec, each read capped at the staging buffer's size, and copies the
// bytes out to that iovec; it stops at the first empty or short read
// (spec.md §4.9).
func handleReadv(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	if fd == stdin || fd == stdout || fd == stderr {
		return notif.ContinueResponse(ctx.Req.ID)
	}

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	iovecs, e := readIovecs(ctx, ctx.Req.Args[1], int(ctx.Req.Args[2]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	staging := make([]byte, ctx.Config.StagingBufferSize)

	var total int64

	for _, iov := range iovecs {
		want := int(iov.len)
		if want > len(staging) {
			want = len(staging)
		}

		n, e := f.Read(staging[:want])
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		if n == 0 {
			break
		}

		written, e := ctx.Mem.Write(iov.base, staging[:n])
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		total += int64(written)

		if n < want {
			break
		}
	}

	return notif.Success(ctx.Req.ID, total)
}

// handleWritev writes the guest's iovecs to the file with one write
// per iovec, each capped at the staging buffer's size, and stops at the
// first short write (spec.md §4.9).
func handleWritev(ctx *Context) notif.Response {
	fd := int(ctx.Req.Args[0])
	if fd == stdin || fd == stdout || fd == stderr {
		return notif.ContinueResponse(ctx.Req.ID)
	}

	f, e := ctx.Caller.Fds.Get(fd)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	iovecs, e := readIovecs(ctx, ctx.Req.Args[1], int(ctx.Req.Args[2]))
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	staging := make([]byte, ctx.Config.StagingBufferSize)

	var total int64

	for _, iov := range iovecs {
		want := int(iov.len)
		if want > len(staging) {
			want = len(staging)
		}

		data, e := ctx.Mem.Read(iov.base, want)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		n, e := f.Write(data)
		if e != errno.Success {
			return notif.Fail(ctx.Req.ID, int32(e))
		}

		total += int64(n)

		if n < want {
			break
		}
	}

	return notif.Success(ctx.Req.ID, total)
}
