package syscalls

import (
	"os"
	"testing"
	"unsafe"

	"github.com/canonical/bvisor/internal/blog"
	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/gmem"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/overlay"
	"github.com/canonical/bvisor/internal/procns"
	"github.com/canonical/bvisor/internal/router"
)

// selfBridge targets the test process's own address space. Handlers
// only ever pread/pwrite through /proc/[tid]/mem, so the test process
// standing in for the guest is indistinguishable from a real one as
// far as gmem.Bridge is concerned.
func selfBridge() *gmem.Bridge {
	return gmem.New(os.Getpid())
}

// guestBuf returns a byte slice and its address as the test process's
// own memory would appear to a gmem.Bridge reading/writing it. The
// slice is kept alive by the caller for the test's duration.
func guestBuf(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func newTestContext(t *testing.T, req notif.Request) (*Context, *procns.Thread) {
	t.Helper()

	threads := procns.NewThreads(procns.AbsTid(os.Getpid()))

	caller, err := threads.RegisterRoot("/", "/", 0o022)
	if err != nil {
		t.Fatalf("newTestContext: RegisterRoot: %v", err)
	}

	root, err := overlay.New(t.TempDir(), "testsb")
	if err != nil {
		t.Fatalf("newTestContext: overlay.New: %v", err)
	}
	t.Cleanup(func() { _ = root.Teardown() })

	req.ID = 1

	return &Context{
		Req:     req,
		Caller:  caller,
		Mem:     selfBridge(),
		Threads: threads,
		Router:  router.New(),
		Overlay: root,
		Config:  config.Default(),
		Log:     blog.Discard(blog.ComponentSupervisor),
	}, caller
}
