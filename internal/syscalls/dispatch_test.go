package syscalls

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

func TestDispatchUnknownSyscallReturnsNosys(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{SyscallNr: 999999})

	resp := Dispatch(ctx)

	require.False(t, resp.Continue)
	require.Equal(t, int32(errno.ENOSYS), resp.Error)
}

func TestDispatchGetpidRoutesThroughTable(t *testing.T) {
	ctx, caller := newTestContext(t, notif.Request{SyscallNr: unix.SYS_GETPID})

	resp := Dispatch(ctx)

	require.Equal(t, int64(caller.AbsTid), resp.Val) // root namespace: NsTid == AbsTid
}

func TestDispatchContinueEntryPassesThrough(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{SyscallNr: unix.SYS_GETUID})

	resp := Dispatch(ctx)

	require.True(t, resp.Continue)
}
