package syscalls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/procns"
)

func TestIdentityHandlersReportNamespacedIds(t *testing.T) {
	ctx, root := newTestContext(t, notif.Request{})

	child, err := procns.NewThread(procns.NewThreadParams{
		Parent: root,
		Tid:    root.AbsTid + 1,
		Cwd:    "/",
		Root:   "/",
	})
	require.NoError(t, err)

	childCtx := &Context{
		Req:     ctx.Req,
		Caller:  child,
		Mem:     ctx.Mem,
		Threads: ctx.Threads,
		Router:  ctx.Router,
		Overlay: ctx.Overlay,
		Config:  ctx.Config,
		Log:     ctx.Log,
	}

	resp := handleGetpid(childCtx)
	require.Equal(t, int64(child.AbsTid), resp.Val) // root namespace: NsTid == AbsTid

	resp = handleGetppid(childCtx)
	require.Equal(t, int64(root.AbsTid), resp.Val)

	resp = handleGettid(childCtx)
	require.Equal(t, int64(child.AbsTid), resp.Val)

	resp = handleGetpid(ctx)
	require.Equal(t, int64(root.AbsTid), resp.Val)
}
