package procns

import (
	"sync"
	"sync/atomic"
)

// AbsTgid is a thread-group id, equal to its leader thread's AbsTid
// (spec.md §3 ThreadGroup, GLOSSARY).
type AbsTgid int32

// ThreadGroup is a refcounted group of threads sharing a TGID
// (spec.md §3 ThreadGroup). It tracks its leader and an optional
// parent group (used to compute PPid).
type ThreadGroup struct {
	Leader   AbsTgid
	refcount int32
	parent   *ThreadGroup

	mu      sync.Mutex
	members map[AbsTid]*Thread
}

// NewThreadGroup creates a group led by leader, optionally nested
// under parent (spec.md §3: "tgid equals leader.tid").
func NewThreadGroup(leader AbsTid, parent *ThreadGroup) *ThreadGroup {
	if parent != nil {
		parent.Incr()
	}

	return &ThreadGroup{
		Leader:   AbsTgid(leader),
		refcount: 1,
		parent:   parent,
		members:  map[AbsTid]*Thread{},
	}
}

// Incr takes a reference.
func (g *ThreadGroup) Incr() { atomic.AddInt32(&g.refcount, 1) }

// Decr releases a reference, cascading to the parent group when this
// was the last one.
func (g *ThreadGroup) Decr() {
	if atomic.AddInt32(&g.refcount, -1) > 0 {
		return
	}

	if g.parent != nil {
		g.parent.Decr()
	}
}

// Parent returns the group's parent (for PPid), or nil.
func (g *ThreadGroup) Parent() *ThreadGroup { return g.parent }

// AddMember registers t as a member (spec.md §3 invariant: "leader is
// a member").
func (g *ThreadGroup) AddMember(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.members[t.AbsTid] = t
}

// RemoveMember unregisters t.
func (g *ThreadGroup) RemoveMember(t *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.members, t.AbsTid)
}

// IsMember reports whether t belongs to g.
func (g *ThreadGroup) IsMember(t *Thread) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.members[t.AbsTid]

	return ok
}
