package syscalls

import "github.com/canonical/bvisor/internal/notif"

// handleGetpid returns the caller's nstgid in its own namespace
// (spec.md §4.9 getpid).
func handleGetpid(ctx *Context) notif.Response {
	return notif.Success(ctx.Req.ID, int64(ctx.Caller.NsTgid()))
}

// handleGetppid returns the caller's parent thread-group leader's
// nstgid in the caller's namespace, or 0 if not visible (spec.md §4.9
// getppid).
func handleGetppid(ctx *Context) notif.Response {
	return notif.Success(ctx.Req.ID, int64(ctx.Caller.NsPpid()))
}

// handleGettid returns the caller's own nstid in its own namespace
// (spec.md §4.9 gettid).
func handleGettid(ctx *Context) notif.Response {
	return notif.Success(ctx.Req.ID, int64(ctx.Caller.NsTid()))
}
