package vfs

import (
	"sync/atomic"

	"github.com/canonical/bvisor/internal/errno"
)

// Ref is a reference-counted handle on a File (spec.md §3: "Own
// refcount... closed and freed when refcount drops to zero or
// explicit close completes the last reference").
type Ref struct {
	file  File
	count int32
}

// NewRef wraps file with an initial reference count of 1.
func NewRef(file File) *Ref {
	return &Ref{file: file, count: 1}
}

// File returns the underlying File.
func (r *Ref) File() File { return r.file }

// Incr takes an additional reference (e.g. dup, or a new FdTable slot
// sharing this Ref via CLONE_FILES).
func (r *Ref) Incr() {
	atomic.AddInt32(&r.count, 1)
}

// Count returns the current reference count (spec.md §8 invariant:
// "for all fds f in F: F.get(f).refcount >= 1").
func (r *Ref) Count() int32 {
	return atomic.LoadInt32(&r.count)
}

// Decr releases a reference; when it is the last one, it closes the
// underlying File and returns the Close result. Otherwise it returns
// errno.Success without touching the backend (spec.md §4.9 close:
// "drops final ref if any").
func (r *Ref) Decr() errno.Errno {
	if atomic.AddInt32(&r.count, -1) > 0 {
		return errno.Success
	}

	return r.file.Close()
}
