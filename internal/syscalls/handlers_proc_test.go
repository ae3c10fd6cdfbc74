package syscalls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/procns"
)

func TestExitTearsDownCallerAndDeregisters(t *testing.T) {
	ctx, caller := newTestContext(t, notif.Request{})

	resp := handleExit(ctx)
	require.True(t, resp.Continue) // the kernel must run the real exit

	_, ok := ctx.Threads.Get(caller.AbsTid)
	require.False(t, ok)
}

func TestTkillUnknownTargetFailsEsrch(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{Args: [6]uint64{9999}})

	resp := handleTkill(ctx)
	require.Equal(t, int32(errno.ESRCH), resp.Error)
}

func TestTkillKnownTargetTearsDownAndContinues(t *testing.T) {
	ctx, root := newTestContext(t, notif.Request{})

	child, err := procns.NewThread(procns.NewThreadParams{
		Parent: root,
		Tid:    root.AbsTid + 1,
		Cwd:    "/",
		Root:   "/",
	})
	require.NoError(t, err)

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(child.AbsTid)}}
	resp := handleTkill(ctx)
	require.True(t, resp.Continue)

	require.False(t, root.NS.Contains(child))
}

func TestKillRejectsNonPositivePid(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{Args: [6]uint64{uint64(int64(-1))}})

	resp := handleKill(ctx)
	require.Equal(t, int32(errno.EINVAL), resp.Error)
}
