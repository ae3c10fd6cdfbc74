package procns

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/svcerr"
	"github.com/canonical/bvisor/internal/vfs"
)

// CloneFlags is the raw clone(2) flags word a handler decodes (spec.md
// §4.8).
type CloneFlags uint64

const (
	FlagNewUser = CloneFlags(unix.CLONE_NEWUSER)
	FlagNewNet  = CloneFlags(unix.CLONE_NEWNET)
	FlagNewNs   = CloneFlags(unix.CLONE_NEWNS)
	FlagNewPid  = CloneFlags(unix.CLONE_NEWPID)
	FlagThread  = CloneFlags(unix.CLONE_THREAD)
	FlagParent  = CloneFlags(unix.CLONE_PARENT)
	FlagFiles   = CloneFlags(unix.CLONE_FILES)
	FlagFs      = CloneFlags(unix.CLONE_FS)
)

func (f CloneFlags) has(bit CloneFlags) bool { return f&bit != 0 }

// Thread is a per-thread node in the process tree (spec.md §3
// Thread). Parent links are weak (pure lookups); a thread is owned
// exclusively by its parent's children set (spec.md §9).
type Thread struct {
	AbsTid AbsTid

	Group *ThreadGroup
	NS    *Namespace
	Fds   *vfs.FdTable
	Fs    *vfs.FsInfo

	parent *Thread // weak

	mu       sync.Mutex
	children map[AbsTid]*Thread
}

// Parent returns t's parent, or nil for the sandbox's init thread.
func (t *Thread) Parent() *Thread { return t.parent }

// IsNamespaceRoot reports whether t is a namespace root: no parent, or
// its parent's namespace differs from its own (spec.md §3 Thread
// invariant).
func (t *Thread) IsNamespaceRoot() bool {
	return t.parent == nil || t.parent.NS != t.NS
}

// addChild records child under t's children set.
func (t *Thread) addChild(child *Thread) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.children == nil {
		t.children = map[AbsTid]*Thread{}
	}

	t.children[child.AbsTid] = child
}

// removeChild drops child from t's children set.
func (t *Thread) removeChild(child *Thread) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.children, child.AbsTid)
}

// Children returns a snapshot of t's children.
func (t *Thread) Children() []*Thread {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Thread, 0, len(t.children))
	for _, c := range t.children {
		out = append(out, c)
	}

	return out
}

// NewThreadParams groups the inputs to NewThread.
type NewThreadParams struct {
	Parent *Thread // nil for the sandbox's initial guest thread
	Tid    AbsTid
	Flags  CloneFlags
	Cwd    string
	Root   string
	Umask  uint32
}

// NewThread creates a new Thread per spec.md §4.8: it allocates a
// fresh ThreadGroup if none is inherited, a fresh Namespace if none is
// inherited, and a fresh FdTable/FsInfo if none is inherited, then
// registers itself in its thread_group and namespace (cascading to
// every ancestor namespace).
func NewThread(p NewThreadParams) (*Thread, error) {
	if p.Flags.has(FlagNewUser) || p.Flags.has(FlagNewNet) || p.Flags.has(FlagNewNs) {
		return nil, svcerr.New(svcerr.KindUnsupportedCloneFlag, "user/net/mount namespaces are not supported")
	}

	t := &Thread{AbsTid: p.Tid}

	if err := t.attachGroup(p); err != nil {
		return nil, err
	}

	if err := t.attachNamespace(p); err != nil {
		return nil, err
	}

	t.attachFds(p)
	t.attachFs(p)

	owner := p.Parent
	if p.Flags.has(FlagParent) && p.Parent != nil && p.Parent.parent != nil {
		owner = p.Parent.parent
	}

	t.parent = owner
	if owner != nil {
		owner.addChild(t)
	}

	t.Group.AddMember(t)
	t.NS.Register(t)

	return t, nil
}

func (t *Thread) attachGroup(p NewThreadParams) error {
	if p.Flags.has(FlagThread) && p.Parent != nil {
		p.Parent.Group.Incr()
		t.Group = p.Parent.Group
		return nil
	}

	var parentGroup *ThreadGroup
	if p.Parent != nil {
		parentGroup = p.Parent.Group
	}

	t.Group = NewThreadGroup(p.Tid, parentGroup)

	return nil
}

func (t *Thread) attachNamespace(p NewThreadParams) error {
	if p.Flags.has(FlagNewPid) {
		var parentNs *Namespace
		if p.Parent != nil {
			parentNs = p.Parent.NS
		} else {
			parentNs = NewRootNamespace()
		}

		ns, err := NewChildNamespace(parentNs)
		if err != nil {
			return err
		}

		t.NS = ns

		return nil
	}

	if p.Parent != nil {
		p.Parent.NS.Incr()
		t.NS = p.Parent.NS
		return nil
	}

	t.NS = NewRootNamespace()

	return nil
}

func (t *Thread) attachFds(p NewThreadParams) {
	if p.Flags.has(FlagFiles) && p.Parent != nil {
		p.Parent.Fds.Incr()
		t.Fds = p.Parent.Fds
		return
	}

	if p.Parent != nil {
		t.Fds = p.Parent.Fds.Clone()
		return
	}

	t.Fds = vfs.NewFdTable()
}

func (t *Thread) attachFs(p NewThreadParams) {
	if p.Flags.has(FlagFs) && p.Parent != nil {
		p.Parent.Fs.Incr()
		t.Fs = p.Parent.Fs
		return
	}

	if p.Parent != nil {
		t.Fs = p.Parent.Fs.Clone()
		return
	}

	t.Fs = vfs.NewFsInfo(p.Cwd, p.Root, p.Umask)
}

// NsTid returns t's own id as visible in its namespace (spec.md §4.9
// gettid).
func (t *Thread) NsTid() NsTid {
	id, _ := t.NS.NsTidOf(t)
	return id
}

// NsTgid returns t's thread-group leader's id as visible in t's
// namespace (spec.md §4.9 getpid).
func (t *Thread) NsTgid() NsTid {
	id, _ := t.NS.NsTidOfAbs(AbsTid(t.Group.Leader))
	return id
}

// NsPpid returns t's parent thread-group leader's id as visible in
// t's namespace, or 0 if the parent is not visible there (spec.md
// §4.9 getppid).
func (t *Thread) NsPpid() NsTid {
	return resolvePpidNsTid(t, t)
}

// Exit deinitializes t: it cascades to every descendant in post-order
// (each namespace root destroyed after its own children), unregisters
// from thread_group and namespace (and ancestors), then releases
// shared references (spec.md §4.8 "Thread exit cascades").
func (t *Thread) Exit() {
	for _, child := range t.Children() {
		child.Exit()
	}

	if t.parent != nil {
		t.parent.removeChild(t)
	}

	t.Group.RemoveMember(t)
	t.Group.Decr()

	t.NS.Unregister(t)
	t.NS.Decr()

	t.Fds.Decr()
	t.Fs.Decr()
}
