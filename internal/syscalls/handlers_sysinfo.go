package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

// utsname mirrors struct new_utsname's wire layout (six NUL-padded
// 65-byte fields), synthesized rather than read via unix.Uname so the
// guest never learns the host's real kernel release or hostname
// (spec.md §4.9 "uname / sysinfo").
type utsname struct {
	Sysname    [65]byte
	Nodename   [65]byte
	Release    [65]byte
	Version    [65]byte
	Machine    [65]byte
	Domainname [65]byte
}

func utsField(s string) [65]byte {
	var out [65]byte
	copy(out[:], s)

	return out
}

func handleUname(ctx *Context) notif.Response {
	raw := utsname{
		Sysname:    utsField("Linux"),
		Nodename:   utsField("bvisor-guest"),
		Release:    utsField("bvisor-guest"),
		Version:    utsField("#1"),
		Machine:    utsField("x86_64"),
		Domainname: utsField("(none)"),
	}

	if _, e := ctx.Mem.Write(ctx.Req.Args[0], structBytes(&raw)); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

// handleSysinfo reports zeroed resource counters (spec.md §4.9): real
// load/memory figures would leak host capacity to the guest.
func handleSysinfo(ctx *Context) notif.Response {
	var raw unix.Sysinfo_t

	if _, e := ctx.Mem.Write(ctx.Req.Args[0], structBytes(&raw)); e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	return notif.Success(ctx.Req.ID, 0)
}

// handleExecve validates the target program through the router
// (opening it, usually via the COW overlay, the same as any other
// path lookup) and then CONTINUEs so the kernel performs the real
// image replacement with the guest's own argv/envp (spec.md §4.9
// "open the program via the router ... and replace the guest image").
func handleExecve(ctx *Context) notif.Response {
	path, e := resolvePath(ctx, ctx.Req.Args[0])
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	decision, e := ctx.Router.Resolve(path)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	f, e := openByDecision(ctx, decision, path, unix.O_RDONLY, 0)
	if e != errno.Success {
		return notif.Fail(ctx.Req.ID, int32(e))
	}

	_ = f.Close()

	return notif.ContinueResponse(ctx.Req.ID)
}
