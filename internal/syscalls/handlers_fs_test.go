package syscalls

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

func TestOpenWriteReadCloseRoundTripsThroughTmpOverlay(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/tmp/greeting\x00")
	pathAddr := guestBuf(path)

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), pathAddr, uint64(unix.O_RDWR | unix.O_CREAT), 0o644}}
	resp := handleOpenat(ctx)
	require.False(t, resp.Continue)
	require.Zero(t, resp.Error)

	fd := int(resp.Val)

	payload := []byte("hello, sandbox")
	payloadAddr := guestBuf(payload)

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(fd), payloadAddr, uint64(len(payload))}}
	resp = handleWrite(ctx)
	require.Zero(t, resp.Error)
	require.Equal(t, int64(len(payload)), resp.Val)

	ctx.Req = notif.Request{ID: 3, Args: [6]uint64{uint64(fd), 0, 0}}
	resp = handleLseek(ctx)
	require.Zero(t, resp.Error)

	readBuf := make([]byte, len(payload))
	readAddr := guestBuf(readBuf)

	ctx.Req = notif.Request{ID: 4, Args: [6]uint64{uint64(fd), readAddr, uint64(len(readBuf))}}
	resp = handleRead(ctx)
	require.Zero(t, resp.Error)
	require.Equal(t, int64(len(payload)), resp.Val)
	require.Equal(t, payload, readBuf)

	ctx.Req = notif.Request{ID: 5, Args: [6]uint64{uint64(fd)}}
	resp = handleClose(ctx)
	require.Zero(t, resp.Error)
}

func TestOpenatRejectsRelativeDirfd(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/tmp/x\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{5, guestBuf(path), uint64(unix.O_RDONLY)}}

	resp := handleOpenat(ctx)
	require.Equal(t, int32(errno.EINVAL), resp.Error)
}

func TestUnlinkatAndMkdiratRouteThroughHostFs(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	dirPath := []byte("/tmp/newdir\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(dirPath), 0o755}}
	resp := handleMkdirat(ctx)
	require.Zero(t, resp.Error)

	const atRemovedirFlag = 0x200

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(atFdCwd), guestBuf(dirPath), atRemovedirFlag}}
	resp = handleUnlinkat(ctx)
	require.Zero(t, resp.Error)
}

func TestDupInstallsIndependentFd(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/tmp/dup-me\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.O_RDWR | unix.O_CREAT)}}
	resp := handleOpenat(ctx)
	require.Zero(t, resp.Error)
	fd := int(resp.Val)

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(fd)}}
	resp = handleDup(ctx)
	require.Zero(t, resp.Error)
	require.NotEqual(t, int64(fd), resp.Val)
}

func TestUnlinkatTombstonesCowPathAndCreatClearsIt(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/etc/removed-by-guest\x00")

	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.O_WRONLY | unix.O_CREAT), 0o644}}
	resp := handleOpenat(ctx)
	require.Zero(t, resp.Error)
	fd := int(resp.Val)

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(fd)}}
	resp = handleClose(ctx)
	require.Zero(t, resp.Error)

	ctx.Req = notif.Request{ID: 3, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), 0}}
	resp = handleUnlinkat(ctx)
	require.Zero(t, resp.Error)

	require.True(t, ctx.Overlay.IsTombstoned("/etc/removed-by-guest"))

	// A read-only open must now see the path as gone, even though
	// nothing on the underlying host filesystem actually changed.
	ctx.Req = notif.Request{ID: 4, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.O_RDONLY)}}
	resp = handleOpenat(ctx)
	require.Equal(t, int32(errno.ENOENT), resp.Error)

	// Recreating with O_CREAT clears the tombstone again.
	ctx.Req = notif.Request{ID: 5, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.O_WRONLY | unix.O_CREAT), 0o644}}
	resp = handleOpenat(ctx)
	require.Zero(t, resp.Error)
	require.False(t, ctx.Overlay.IsTombstoned("/etc/removed-by-guest"))
}

func TestFchdirRecoversGuestPathFromCowBackedDir(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	dirPath := []byte("/etc/fchdir-target\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(dirPath), 0o755}}
	resp := handleMkdirat(ctx)
	require.Zero(t, resp.Error)

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(atFdCwd), guestBuf(dirPath), uint64(unix.O_RDONLY)}}
	resp = handleOpenat(ctx)
	require.Zero(t, resp.Error)
	fd := int(resp.Val)

	ctx.Req = notif.Request{ID: 3, Args: [6]uint64{uint64(fd)}}
	resp = handleFchdir(ctx)
	require.Zero(t, resp.Error)
	require.Equal(t, "/etc/fchdir-target", ctx.Caller.Fs.Cwd())
}

func TestFchdirRejectsFdWithNoTrackedPath(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/dev/null\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.O_RDONLY)}}
	resp := handleOpenat(ctx)
	require.Zero(t, resp.Error)
	fd := int(resp.Val)

	ctx.Req = notif.Request{ID: 2, Args: [6]uint64{uint64(fd)}}
	resp = handleFchdir(ctx)
	require.Equal(t, int32(errno.ENOTDIR), resp.Error)
}

func TestFaccessatUnknownPathFails(t *testing.T) {
	ctx, _ := newTestContext(t, notif.Request{})

	path := []byte("/tmp/does-not-exist\x00")
	ctx.Req = notif.Request{ID: 1, Args: [6]uint64{uint64(atFdCwd), guestBuf(path), uint64(unix.F_OK)}}

	resp := handleFaccessat(ctx)
	require.Equal(t, int32(errno.ENOENT), resp.Error)
}
