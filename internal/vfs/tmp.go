package vfs

import (
	"os"
	"path/filepath"

	"github.com/canonical/bvisor/internal/errno"
)

// Tmp is the private-/tmp backend (spec.md §4.6): opens under the
// sandbox's private tmp subtree, creating parent directories as
// needed.
type Tmp struct {
	hostFile
}

func (t *Tmp) Backend() Backend { return BackendTmp }

// OpenTmp opens hostTmpPath (already resolved via overlay.Root.ResolveTmp)
// with the given flags, creating parent directories first. guestPath is
// the unresolved path the guest used to reach it, recoverable later via
// GuestPath (spec.md §4.9 fchdir).
func OpenTmp(hostTmpPath, guestPath string, flags int, mode uint32) (*Tmp, errno.Errno) {
	if err := os.MkdirAll(filepath.Dir(hostTmpPath), 0o755); err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	f, err := os.OpenFile(hostTmpPath, flags, os.FileMode(mode))
	if err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	return &Tmp{hostFile: newHostFile(f, guestPath)}, errno.Success
}
