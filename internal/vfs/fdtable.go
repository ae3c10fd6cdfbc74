package vfs

import (
	"sync"
	"sync/atomic"

	"github.com/canonical/bvisor/internal/errno"
)

// slot is one FdTable entry: a shared Ref plus its own per-slot
// cloexec bit (spec.md §3 FdTable).
type slot struct {
	ref     *Ref
	cloexec bool
}

// FdTable is the per-process indexed map from virtual fd to open-file
// reference (spec.md §3 FdTable). It is refcounted for CLONE_FILES
// sharing; every clone/open takes a ref, every close/exit releases
// one (spec.md §3 Ownership summary).
type FdTable struct {
	refcount int32

	mu    sync.Mutex
	slots map[int]*slot
}

// NewFdTable returns an empty FdTable with a refcount of 1.
func NewFdTable() *FdTable {
	return &FdTable{refcount: 1, slots: map[int]*slot{}}
}

// Incr takes an additional reference (CLONE_FILES sharing).
func (t *FdTable) Incr() { atomic.AddInt32(&t.refcount, 1) }

// Decr releases a reference, closing every slot's File when the last
// reference drops.
func (t *FdTable) Decr() {
	if atomic.AddInt32(&t.refcount, -1) > 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for fd := range t.slots {
		t.closeLocked(fd)
	}
}

// Clone returns a deep copy of the table: same slots, same File refs
// (each incremented), independent cloexec bits and fd keys (spec.md
// §4.8: "FdTable is cloned (deep copy of slots; File refs incremented)").
func (t *FdTable) Clone() *FdTable {
	t.mu.Lock()
	defer t.mu.Unlock()

	clone := NewFdTable()

	for fd, s := range t.slots {
		s.ref.Incr()
		clone.slots[fd] = &slot{ref: s.ref, cloexec: s.cloexec}
	}

	return clone
}

// lowestFreeLocked returns the smallest non-negative integer absent
// from the table's keys (spec.md §3 FdTable invariant).
func (t *FdTable) lowestFreeLocked() int {
	fd := 0
	for {
		if _, ok := t.slots[fd]; !ok {
			return fd
		}

		fd++
	}
}

// Install inserts file at the lowest free fd and returns it.
func (t *FdTable) Install(file File) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.lowestFreeLocked()
	t.slots[fd] = &slot{ref: NewRef(file)}

	return fd
}

// InstallAt inserts file at exactly fd, closing whatever was
// previously there (used by pipe2 to adopt fds at the numbers the
// kernel assigned them).
func (t *FdTable) InstallAt(fd int, file File, cloexec bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.slots[fd]; ok {
		t.closeLocked(fd)
	}

	t.slots[fd] = &slot{ref: NewRef(file), cloexec: cloexec}
}

// Get returns the File at fd.
func (t *FdTable) Get(fd int) (File, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[fd]
	if !ok {
		return nil, errno.EBADF
	}

	return s.ref.File(), errno.Success
}

// Dup duplicates fd onto the lowest free slot, sharing the same Ref
// (spec.md §8: "dup(f) then close(f'): subsequent ops on f still
// succeed; only the final close releases the File").
func (t *FdTable) Dup(fd int) (int, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[fd]
	if !ok {
		return 0, errno.EBADF
	}

	s.ref.Incr()
	newFd := t.lowestFreeLocked()
	t.slots[newFd] = &slot{ref: s.ref}

	return newFd, errno.Success
}

// Dup3 duplicates oldFd onto newFd, honoring O_CLOEXEC. Dup3ing a fd
// onto itself is EINVAL, matching dup3(2).
func (t *FdTable) Dup3(oldFd, newFd int, cloexec bool) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	if oldFd == newFd {
		return errno.EINVAL
	}

	s, ok := t.slots[oldFd]
	if !ok {
		return errno.EBADF
	}

	if _, ok := t.slots[newFd]; ok {
		t.closeLocked(newFd)
	}

	s.ref.Incr()
	t.slots[newFd] = &slot{ref: s.ref, cloexec: cloexec}

	return errno.Success
}

// Close removes fd from the table and releases its reference.
func (t *FdTable) Close(fd int) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.slots[fd]; !ok {
		return errno.EBADF
	}

	return t.closeLocked(fd)
}

func (t *FdTable) closeLocked(fd int) errno.Errno {
	s := t.slots[fd]
	delete(t.slots, fd)

	return s.ref.Decr()
}

// SetCloexec sets or clears fd's cloexec bit (F_SETFD).
func (t *FdTable) SetCloexec(fd int, cloexec bool) errno.Errno {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[fd]
	if !ok {
		return errno.EBADF
	}

	s.cloexec = cloexec

	return errno.Success
}

// Cloexec reports fd's cloexec bit.
func (t *FdTable) Cloexec(fd int) (bool, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[fd]
	if !ok {
		return false, errno.EBADF
	}

	return s.cloexec, errno.Success
}

// CloseOnExec closes every slot whose cloexec bit is set (exec
// handler support).
func (t *FdTable) CloseOnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, s := range t.slots {
		if s.cloexec {
			t.closeLocked(fd)
		}
	}
}

// RefCount returns fd's current reference count, for the spec.md §8
// invariant check ("F.get(f).refcount >= 1").
func (t *FdTable) RefCount(fd int) (int32, errno.Errno) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[fd]
	if !ok {
		return 0, errno.EBADF
	}

	return s.ref.Count(), errno.Success
}
