package procns

import (
	"sync"

	"github.com/canonical/bvisor/internal/svcerr"
)

// Threads is the supervisor-wide registry of known threads, keyed by
// AbsTid (spec.md §4.8 "Lazy registration").
type Threads struct {
	mu     sync.Mutex
	byTid  map[AbsTid]*Thread
	rootID AbsTid
}

// NewThreads creates an empty registry. rootTid is the sandbox's
// initial guest thread; the kernel probe refuses to register anything
// whose parent chain does not terminate at rootTid (spec.md §4.8
// "leave the sandbox subtree").
func NewThreads(rootTid AbsTid) *Threads {
	return &Threads{byTid: map[AbsTid]*Thread{}, rootID: rootTid}
}

// Get returns the thread registered under tid, if any.
func (r *Threads) Get(tid AbsTid) (*Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byTid[tid]

	return t, ok
}

// RegisterRoot registers the sandbox's initial guest thread, which has
// no parent and owns a fresh root Namespace (spec.md §4.8).
func (r *Threads) RegisterRoot(cwd, root string, umask uint32) (*Thread, error) {
	r.mu.Lock()
	if t, ok := r.byTid[r.rootID]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	t, err := NewThread(NewThreadParams{Tid: r.rootID, Cwd: cwd, Root: root, Umask: umask})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byTid[r.rootID] = t
	r.mu.Unlock()

	return t, nil
}

// Remove drops tid from the registry after its Thread has exited.
func (r *Threads) Remove(tid AbsTid) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byTid, tid)
}

// Resolve returns the thread registered under tid, lazily registering
// it (and any unregistered ancestors) via the kernel probe when it is
// not yet known (spec.md §4.8 "Lazy registration").
func (r *Threads) Resolve(tid AbsTid) (*Thread, error) {
	if t, ok := r.Get(tid); ok {
		return t, nil
	}

	return r.probeAndRegister(tid, 0)
}

// SyncNewThreads scans /proc for threads the kernel has spawned under
// the sandbox's task subtree but the registry has not yet observed
// (spec.md §4.7 "Before resolving /proc/<pid> ... sync_new_threads").
func (r *Threads) SyncNewThreads() error {
	root, ok := r.Get(r.rootID)
	if !ok {
		return nil
	}

	tids, err := taskSubtree(root.AbsTid)
	if err != nil {
		return err
	}

	for _, tid := range tids {
		if _, ok := r.Get(tid); ok {
			continue
		}

		if _, err := r.probeAndRegister(tid, 0); err != nil {
			continue // unreachable/raced exit; skip rather than fail the whole sync
		}
	}

	return nil
}

const maxProbeHops = 4096 // generous bound on parent-chain walks; mirrors MAX_NS_DEPTH's role of preventing unbounded recursion

// probeAndRegister resolves tid's parent chain up to an already
// registered ancestor (or the registry's root), consulting the kernel
// probe at each hop, then constructs and registers every thread along
// the way (spec.md §4.8).
func (r *Threads) probeAndRegister(tid AbsTid, hops int) (*Thread, error) {
	if hops > maxProbeHops {
		return nil, svcerr.New(svcerr.KindNotInSandbox, "parent chain exceeds probe hop bound")
	}

	if t, ok := r.Get(tid); ok {
		return t, nil
	}

	info, err := probeThread(tid)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.KindNotInSandbox, "kernel probe failed", err)
	}

	if info.ppid == 0 {
		return nil, svcerr.New(svcerr.KindNotInSandbox, "thread has left the sandbox subtree")
	}

	parent, err := r.probeAndRegister(info.ppid, hops+1)
	if err != nil {
		return nil, err
	}

	flags := CloneFlags(0)

	if sameFilesTable, err := kcmpFilesShared(tid, info.ppid); err == nil && sameFilesTable {
		flags |= FlagFiles
	}

	childNsInode, err1 := pidNsInode(tid)
	parentNsInode, err2 := pidNsInode(info.ppid)
	if err1 == nil && err2 == nil && childNsInode != parentNsInode {
		flags |= FlagNewPid
	}

	if info.tgid != tid {
		flags |= FlagThread
	}

	t, err := NewThread(NewThreadParams{
		Parent: parent,
		Tid:    tid,
		Flags:  flags,
		Cwd:    parent.Fs.Cwd(),
		Root:   parent.Fs.Root(),
		Umask:  parent.Fs.Umask(),
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byTid[tid] = t
	r.mu.Unlock()

	return t, nil
}
