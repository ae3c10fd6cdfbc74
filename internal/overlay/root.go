// Package overlay implements the per-sandbox overlay root (spec.md
// §3 OverlayRoot, §4.5): a host directory tree holding the COW
// staging area and the guest's private /tmp, plus the tombstone set
// and symlink pool that cooperate with it.
package overlay

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/errno"
)

// hostPathMax mirrors PATH_MAX: a cow/ join that would exceed it gets
// a short symlink pool slot standing in for it instead (spec.md §6).
const hostPathMax = 4096

// Root is the per-sandbox overlay directory tree (spec.md §4.5):
//
//	<base>/<uid>/cow/<absolute-path>   mirrors host paths the guest writes.
//	<base>/<uid>/tmp/<path-minus-/tmp> is the guest's private /tmp.
type Root struct {
	UID  string
	base string // <base>/<uid>

	tombstones *Tombstones

	symlinkMu sync.Mutex
	symlinks  *SymlinkPool // lazily built: most sandboxes never need a slot
}

// NewUID derives a 16-lowercase-hex-character sandbox UID from a
// uuid.New() (spec.md §4.5, §6), using the teacher's own
// github.com/google/uuid dependency rather than a hand-rolled
// crypto/rand helper.
func NewUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// New creates the overlay root's cow/ and tmp/ subtrees under
// base/uid. In tests uid is a fixed literal to keep paths
// deterministic (spec.md §4.5).
func New(base, uid string) (*Root, error) {
	root := &Root{UID: uid, base: filepath.Join(base, uid), tombstones: NewTombstones()}

	for _, sub := range []string{"cow", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root.base, sub), 0o700); err != nil {
			return nil, fmt.Errorf("overlay: create %s subtree: %w", sub, err)
		}
	}

	return root, nil
}

// Teardown recursively removes the sandbox's entire UID subtree
// (spec.md §3 OverlayRoot lifecycle), along with any symlink pool
// slots this sandbox allocated.
func (r *Root) Teardown() error {
	r.symlinkMu.Lock()
	if r.symlinks != nil {
		r.symlinks.Teardown()
	}
	r.symlinkMu.Unlock()

	return os.RemoveAll(r.base)
}

// ResolveCow maps an absolute guest path p onto its location under
// cow/ (spec.md §4.5). When that join would exceed PATH_MAX, a short
// symlink pool slot pointing at the real location stands in for it
// (spec.md §6 "Symlink pool").
func (r *Root) ResolveCow(p string) string {
	long := filepath.Join(r.base, "cow", p)
	if len(long) <= hostPathMax {
		return long
	}

	return r.shortCowPath(long)
}

// shortCowPath allocates a new symlink pool slot for an overlong cow/
// path on every call (slots are not reused for a path seen before),
// falling back to long itself when the pool cannot be created or is
// exhausted.
func (r *Root) shortCowPath(long string) string {
	r.symlinkMu.Lock()
	defer r.symlinkMu.Unlock()

	if r.symlinks == nil {
		pool, err := NewSymlinkPool(config.SymlinkPoolRoot)
		if err != nil {
			return long
		}

		r.symlinks = pool
	}

	slot, err := r.symlinks.Alloc(long)
	if err != nil {
		return long
	}

	return slot
}

// Tombstone records p as deleted, hiding it from the guest even
// though it may still exist on the host (spec.md §3, §4.5, §8).
func (r *Root) Tombstone(p string, kind Kind) {
	r.tombstones.Add(p, kind)
}

// ClearTombstone undoes Tombstone, e.g. when a CREAT or mkdir
// recreates a previously-deleted path (spec.md §8).
func (r *Root) ClearTombstone(p string) {
	r.tombstones.Clear(p)
}

// IsTombstoned reports whether p, or an ancestor directory of p, has
// been tombstoned (spec.md §3, §8).
func (r *Root) IsTombstoned(p string) bool {
	return r.tombstones.IsTombstoned(p)
}

// ResolveTmp maps an absolute guest path p, which must start with
// /tmp, onto its location under tmp/ (spec.md §4.5). Returns EINVAL
// if p does not start with /tmp.
func (r *Root) ResolveTmp(p string) (string, errno.Errno) {
	if p != "/tmp" && !strings.HasPrefix(p, "/tmp/") {
		return "", errno.EINVAL
	}

	rest := strings.TrimPrefix(p, "/tmp")
	return filepath.Join(r.base, "tmp", rest), errno.Success
}

// CreateCowParentDirs creates every ancestor directory of p under
// cow/ (spec.md §4.5).
func (r *Root) CreateCowParentDirs(p string) error {
	dir := filepath.Dir(r.ResolveCow(p))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("overlay: create cow parent dirs for %s: %w", p, err)
	}

	return nil
}

// CowExists reports whether p has a COW copy on disk.
func (r *Root) CowExists(p string) bool {
	_, err := os.Lstat(r.ResolveCow(p))
	return err == nil
}

// TmpExists reports whether p (under /tmp) exists in the private tmp
// tree.
func (r *Root) TmpExists(p string) bool {
	resolved, e := r.ResolveTmp(p)
	if e != errno.Success {
		return false
	}

	_, err := os.Lstat(resolved)
	return err == nil
}

// IsGuestDir reports whether the guest sees p as a directory: the COW
// overlay is consulted first, then the real filesystem (spec.md
// §4.5).
func (r *Root) IsGuestDir(p string) bool {
	if fi, err := os.Stat(r.ResolveCow(p)); err == nil {
		return fi.IsDir()
	}

	fi, err := os.Stat(p)
	if err != nil {
		return false
	}

	return fi.IsDir()
}
