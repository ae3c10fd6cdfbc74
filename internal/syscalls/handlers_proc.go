package syscalls

import (
	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/procns"
)

// handleExit and handleExitGroup both tear down the caller's Thread
// and its descendants per spec.md §4.8 "Thread exit cascades"; for
// exit_group, other members of the caller's thread group are not torn
// down here. Both then CONTINUE so the kernel actually terminates the
// task (spec.md §4.9) — a synthetic success here would leave the
// guest thread running after it asked to die.
func handleExit(ctx *Context) notif.Response {
	tearDown(ctx, ctx.Caller)

	return notif.ContinueResponse(ctx.Req.ID)
}

func handleExitGroup(ctx *Context) notif.Response {
	tearDown(ctx, ctx.Caller)

	return notif.ContinueResponse(ctx.Req.ID)
}

func tearDown(ctx *Context, t *procns.Thread) {
	t.Exit()
	ctx.Threads.Remove(t.AbsTid)
}

// handleTkill and handleKill are not delivery mechanisms here — the
// guest's real signal delivery is unaffected by interception; bvisor
// only needs to resolve the caller-namespace nstid argument to the
// target Thread the kernel's own tkill/kill (run via CONTINUE) will
// signal (spec.md §4.9). tkill additionally tears the target Thread
// down here, before the kernel delivers the (typically fatal) signal,
// so bvisor's own bookkeeping doesn't lag a thread it already knows
// is on its way out.
func handleTkill(ctx *Context) notif.Response {
	target := procns.NsTid(ctx.Req.Args[0])

	t, ok := ctx.Caller.NS.ThreadByNsTid(target)
	if !ok {
		return notif.Fail(ctx.Req.ID, int32(errno.ESRCH))
	}

	tearDown(ctx, t)

	return notif.ContinueResponse(ctx.Req.ID)
}

func handleKill(ctx *Context) notif.Response {
	// Non-positive pids (broadcast to a group, or to every process the
	// caller may signal) have no meaning in bvisor's single-thread-tree
	// model (spec.md §4.9, §8 scenario 5).
	pid := int64(ctx.Req.Args[0])
	if pid <= 0 {
		return notif.Fail(ctx.Req.ID, int32(errno.EINVAL))
	}

	target := procns.NsTid(pid)

	if _, ok := ctx.Caller.NS.ThreadByNsTid(target); !ok {
		return notif.Fail(ctx.Req.ID, int32(errno.ESRCH))
	}

	return notif.ContinueResponse(ctx.Req.ID)
}
