package syscalls

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

func TestSocketRejectsNonUnixDomain(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(unix.AF_INET), uint64(unix.SOCK_STREAM), 0}}

	resp := handleSocket(ctx)
	require.Equal(t, int32(errno.EACCES), resp.Error)
}

func TestSocketInstallsAfUnixSocket(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(unix.AF_UNIX), uint64(unix.SOCK_STREAM), 0}}

	resp := handleSocket(ctx)
	require.Zero(t, resp.Error)
	require.GreaterOrEqual(t, resp.Val, int64(0))
}

func TestEventfd2InstallsEventBackedFd(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{0, 0}}

	resp := handleEventfd2(ctx)
	require.Zero(t, resp.Error)
	require.GreaterOrEqual(t, resp.Val, int64(0))

	f, e := ctx.Caller.Fds.Get(int(resp.Val))
	require.Equal(t, errno.Success, e)

	st, e := f.Statx()
	require.Equal(t, errno.Success, e)
	require.Equal(t, uint32(unix.S_IFREG|0o600), st.Mode)
}

func TestSocketpairWritesBothFdsToGuestMemory(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	out := make([]byte, 8)
	outAddr := guestBuf(out)

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(unix.AF_UNIX), uint64(unix.SOCK_STREAM), 0, outAddr}}

	resp := handleSocketpair(ctx)
	require.Zero(t, resp.Error)

	a := binary.LittleEndian.Uint32(out[0:4])
	b := binary.LittleEndian.Uint32(out[4:8])
	require.NotEqual(t, a, b)
}
