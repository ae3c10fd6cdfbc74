// Package procns implements the virtual process/namespace tree
// (spec.md §3 Thread/ThreadGroup/Namespace, §4.8) and the kernel probe
// that recovers real process relationships lazily from /proc
// (spec.md §4.8, "Kernel probe").
package procns

import (
	"sync"
	"sync/atomic"

	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/svcerr"
)

// NsTid is a thread id as seen from inside one particular namespace
// (spec.md GLOSSARY).
type NsTid int32

// AbsTid is a kernel-assigned thread id, visible from the outermost
// namespace (spec.md GLOSSARY).
type AbsTid int32

// Namespace is a refcounted PID-namespace object mapping visible
// threads to per-namespace TIDs (spec.md §3 Namespace). It is
// hierarchical with a parent link; a thread registered in namespace N
// is also registered in every ancestor of N, each under its own NsTid
// (spec.md §3 invariant).
type Namespace struct {
	refcount int32
	parent   *Namespace
	depth    int

	mu      sync.Mutex
	byNsTid map[NsTid]*Thread
	byAbs   map[AbsTid]NsTid
	next    NsTid
}

// NewRootNamespace creates a namespace with no parent.
func NewRootNamespace() *Namespace {
	return &Namespace{refcount: 1, byNsTid: map[NsTid]*Thread{}, byAbs: map[AbsTid]NsTid{}, next: 1}
}

// NewChildNamespace creates a namespace nested under parent (a
// CLONE_NEWPID child), bounded by config.MaxNsDepth (spec.md §3:
// "bounded by MAX_NS_DEPTH").
func NewChildNamespace(parent *Namespace) (*Namespace, error) {
	if parent.depth+1 >= config.MaxNsDepth {
		return nil, svcerr.New(svcerr.KindInvalidPath, "namespace nesting exceeds MAX_NS_DEPTH")
	}

	parent.Incr()

	return &Namespace{
		refcount: 1,
		parent:   parent,
		depth:    parent.depth + 1,
		byNsTid:  map[NsTid]*Thread{},
		byAbs:    map[AbsTid]NsTid{},
		next:     1,
	}, nil
}

// Incr takes a reference (a namespace root is kept alive by its
// descendants, spec.md §9: "Parent pointers on Namespace ... are
// strong").
func (n *Namespace) Incr() { atomic.AddInt32(&n.refcount, 1) }

// Decr releases a reference, cascading to the parent namespace when
// this was the last one.
func (n *Namespace) Decr() {
	if atomic.AddInt32(&n.refcount, -1) > 0 {
		return
	}

	if n.parent != nil {
		n.parent.Decr()
	}
}

// Parent returns the namespace's parent, or nil if it is a root.
func (n *Namespace) Parent() *Namespace { return n.parent }

// Depth returns the namespace's nesting depth (0 for a root).
func (n *Namespace) Depth() int { return n.depth }

// Register assigns t a fresh NsTid in n and cascades the registration
// into every ancestor of n under its own fresh NsTid (spec.md §3,
// §4.8). The root namespace has no parent of its own to translate
// ids for, so within it NsTid is AbsTid itself (spec.md GLOSSARY:
// AbsTid "is the NsTid visible from the outermost (root) namespace");
// only namespaces nested via CLONE_NEWPID count up from 1.
func (n *Namespace) Register(t *Thread) NsTid {
	n.mu.Lock()

	var id NsTid
	if n.parent == nil {
		id = NsTid(t.AbsTid)
	} else {
		id = n.next
		n.next++
	}

	n.byNsTid[id] = t
	n.byAbs[t.AbsTid] = id
	n.mu.Unlock()

	if n.parent != nil {
		n.parent.Register(t)
	}

	return id
}

// Unregister removes t from n and cascades identically up the
// ancestor chain (spec.md §3).
func (n *Namespace) Unregister(t *Thread) {
	n.mu.Lock()
	if id, ok := n.byAbs[t.AbsTid]; ok {
		delete(n.byNsTid, id)
		delete(n.byAbs, t.AbsTid)
	}
	n.mu.Unlock()

	if n.parent != nil {
		n.parent.Unregister(t)
	}
}

// Contains reports whether t is registered in n (spec.md §8 invariant:
// "T.namespace.contains(T)").
func (n *Namespace) Contains(t *Thread) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, ok := n.byAbs[t.AbsTid]

	return ok
}

// NsTidOf returns t's id within n, if visible.
func (n *Namespace) NsTidOf(t *Thread) (NsTid, bool) {
	return n.NsTidOfAbs(t.AbsTid)
}

// NsTidOfAbs returns the NsTid that abs is visible under within n, if
// it is registered there.
func (n *Namespace) NsTidOfAbs(abs AbsTid) (NsTid, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, ok := n.byAbs[abs]

	return id, ok
}

// ThreadByNsTid looks up the thread visible as id within n.
func (n *Namespace) ThreadByNsTid(id NsTid) (*Thread, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.byNsTid[id]

	return t, ok
}

// VisibleNsTids returns every NsTid currently visible in n, for
// getdents64 on /proc (spec.md §4.7).
func (n *Namespace) VisibleNsTids() []NsTid {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]NsTid, 0, len(n.byNsTid))
	for id := range n.byNsTid {
		out = append(out, id)
	}

	return out
}

// Same reports whether n and other are the same namespace object
// (used by the kernel probe's NEWPID inference, spec.md §4.8).
func (n *Namespace) Same(other *Namespace) bool { return n == other }
