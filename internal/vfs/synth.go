package vfs

import (
	"sync"

	"github.com/canonical/bvisor/internal/dirent"
	"github.com/canonical/bvisor/internal/errno"
)

var byteOrder = dirent.ByteOrder

const direntReclenOffset = dirent.ReclenOffset

// Synthesized is the backend for content the supervisor manufactures
// rather than reads from a real file — today, every /proc virtual
// file and directory (spec.md §4.7: "content is synthesized at open
// time"). Its content is frozen at construction, giving it snapshot
// semantics for free: a subsequent fork does not change an
// already-opened file (spec.md §4.7).
type Synthesized struct {
	unsupported

	mu      sync.Mutex
	content []byte // for regular files: bytes; for directories: pre-encoded dirents
	offset  int64
	statx   Statx
	isDir   bool
	state   state
}

// NewSynthesizedFile builds a regular-file Synthesized backend with a
// frozen content snapshot and the given statx result.
func NewSynthesizedFile(content []byte, statx Statx) *Synthesized {
	return &Synthesized{content: content, statx: statx}
}

// NewSynthesizedDir builds a directory Synthesized backend whose
// Getdents64 serves pre-encoded dirents (spec.md §4.7).
func NewSynthesizedDir(dirents []byte, statx Statx) *Synthesized {
	return &Synthesized{content: dirents, statx: statx, isDir: true}
}

func (s *Synthesized) Backend() Backend { return BackendProc }

func (s *Synthesized) Read(buf []byte) (int, errno.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, errno.EBADF
	}

	if s.isDir {
		return 0, errno.EISDIR
	}

	if s.offset >= int64(len(s.content)) {
		return 0, errno.Success
	}

	n := copy(buf, s.content[s.offset:])
	s.offset += int64(n)

	return n, errno.Success
}

func (s *Synthesized) Write(data []byte) (int, errno.Errno) {
	return 0, errno.EROFS
}

func (s *Synthesized) Close() errno.Errno {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return errno.EBADF
	}

	s.state = stateClosed

	return errno.Success
}

func (s *Synthesized) Statx() (Statx, errno.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return Statx{}, errno.EBADF
	}

	return s.statx, errno.Success
}

// Lseek computes arithmetically against the frozen snapshot (spec.md
// §4.9: "proc-File computes arithmetically against its snapshot").
func (s *Synthesized) Lseek(offset int64, whence int) (int64, errno.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, errno.EBADF
	}

	var newOffset int64

	switch whence {
	case 0: // SEEK_SET
		newOffset = offset
	case 1: // SEEK_CUR
		newOffset = s.offset + offset
	case 2: // SEEK_END
		newOffset = int64(len(s.content)) + offset
	default:
		return 0, errno.EINVAL
	}

	if newOffset < 0 {
		return 0, errno.EINVAL
	}

	s.offset = newOffset

	return newOffset, errno.Success
}

// Getdents64 serves dirents starting at the file's current offset,
// advancing it by however many whole records fit in buf. This lets
// callers page through more entries than fit in a single buffer
// across repeated calls, per spec.md §9's note that a conforming
// directory iterator must emit all visible entries across multiple
// calls using the caller's cursor.
func (s *Synthesized) Getdents64(buf []byte) (int, errno.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, errno.EBADF
	}

	if !s.isDir {
		return 0, errno.ENOTDIR
	}

	if s.offset >= int64(len(s.content)) {
		return 0, errno.Success
	}

	n := copyWholeDirents(buf, s.content[s.offset:])
	if n == 0 && len(buf) > 0 {
		return 0, errno.EINVAL // buf too small for even one record
	}

	s.offset += int64(n)

	return n, errno.Success
}

// copyWholeDirents copies as many complete linux_dirent64 records
// from src into dst as fit, stopping before a record it cannot fit
// whole so a caller's cursor-based pagination (spec.md §9) never sees
// a truncated record.
func copyWholeDirents(dst, src []byte) int {
	copied := 0

	for copied < len(src) {
		if copied+direntReclenOffset+2 > len(src) {
			break
		}

		reclen := int(byteOrder.Uint16(src[copied+direntReclenOffset : copied+direntReclenOffset+2]))
		if reclen <= 0 || copied+reclen > len(src) {
			break
		}

		if copied+reclen > len(dst) {
			break
		}

		copy(dst[copied:copied+reclen], src[copied:copied+reclen])
		copied += reclen
	}

	return copied
}
