package vfs

import (
	"errors"
	"io"
	"os"

	"github.com/pkg/xattr"

	"github.com/canonical/bvisor/internal/errno"
)

// Cow is the copy-on-write backend (spec.md §4.6). On open-for-read,
// if no COW copy exists the host file is opened read-only; on
// open-for-write, O_CREAT, or O_TRUNC, the host file is copied into
// the COW location first.
type Cow struct {
	hostFile
}

func (c *Cow) Backend() Backend { return BackendCow }

// OverlayPaths is the minimal interface Cow needs from
// overlay.Root, so vfs depends only on the two path-resolution
// methods rather than the whole overlay package's lifecycle surface.
type OverlayPaths interface {
	ResolveCow(path string) string
	CreateCowParentDirs(path string) error
}

const (
	wantsWrite = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC
)

// OpenCow opens path through the COW overlay (spec.md §4.6). hostPath
// is the real filesystem path to mirror; cowPath is where the COW
// copy lives or will be created.
func OpenCow(overlay OverlayPaths, hostPath string, flags int, mode uint32) (*Cow, errno.Errno) {
	cowPath := overlay.ResolveCow(hostPath)

	_, cowExists := os.Stat(cowPath)
	alreadyCow := cowExists == nil

	if flags&wantsWrite == 0 && !alreadyCow {
		// Read-only open of a path with no COW copy yet: read straight
		// through to the host file, per spec.md §4.6.
		f, err := os.OpenFile(hostPath, os.O_RDONLY, 0)
		if err != nil {
			return nil, errno.FromSyscallErr(err)
		}

		return &Cow{hostFile: newHostFile(f, hostPath)}, errno.Success
	}

	if !alreadyCow {
		if err := overlay.CreateCowParentDirs(hostPath); err != nil {
			return nil, errno.FromSyscallErr(err)
		}

		if err := copyUp(hostPath, cowPath); err != nil {
			return nil, errno.FromSyscallErr(err)
		}
	}

	f, err := os.OpenFile(cowPath, flags, os.FileMode(mode))
	if err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	return &Cow{hostFile: newHostFile(f, hostPath)}, errno.Success
}

// copyUp copies src (a real host file, if it exists) into dst,
// preserving mode and xattrs (security.capability, user.*) the way
// LXD's idmap package preserves capability xattrs when shifting
// ownership, minus the uid shift itself (no user namespaces here).
func copyUp(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Nothing to mirror yet; O_CREAT will make a fresh file.
			return nil
		}

		return err
	}

	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	preserveXattrs(src, dst)

	return nil
}

func preserveXattrs(src, dst string) {
	names, err := xattr.List(src)
	if err != nil {
		return
	}

	for _, name := range names {
		value, err := xattr.Get(src, name)
		if err != nil {
			continue
		}

		_ = xattr.Set(dst, name, value)
	}
}
