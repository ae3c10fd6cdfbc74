// Package gmem bridges the supervisor's address space to a guest
// thread's, for syscall arguments that are pointers (spec.md: "Guest-
// memory bridge"). It works by pread/pwrite against
// /proc/[tid]/mem, the same mechanism ptrace(PEEKDATA)/POKEDATA users
// rely on but without attaching.
package gmem

import (
	"bytes"
	"fmt"
	"os"

	"github.com/canonical/bvisor/internal/errno"
)

// Bridge reads and writes a single guest thread's address space.
type Bridge struct {
	tid int
}

// New returns a Bridge targeting tid. The caller's notification must
// still be outstanding (the guest is paused) for the read/write to be
// meaningful, per spec.md §2 ("the guest is paused on each intercepted
// syscall until the supervisor replies").
func New(tid int) *Bridge {
	return &Bridge{tid: tid}
}

func (b *Bridge) memPath() string {
	return fmt.Sprintf("/proc/%d/mem", b.tid)
}

// Read copies n bytes starting at guest address addr into a new slice.
func (b *Bridge) Read(addr uint64, n int) ([]byte, errno.Errno) {
	f, err := os.OpenFile(b.memPath(), os.O_RDONLY, 0)
	if err != nil {
		return nil, errno.FromSyscallErr(err)
	}

	defer func() { _ = f.Close() }()

	buf := make([]byte, n)

	read, err := f.ReadAt(buf, int64(addr))
	if err != nil && read == 0 {
		return nil, errno.FromSyscallErr(err)
	}

	return buf[:read], errno.Success
}

// ReadCString reads a NUL-terminated string starting at addr, up to
// maxLen bytes (inclusive of the terminator). Exceeding maxLen without
// finding a terminator fails with ENAMETOOLONG, the same way the path
// router's fixed-size normalization buffer does (spec.md §4.4, §8).
func (b *Bridge) ReadCString(addr uint64, maxLen int) (string, errno.Errno) {
	const chunk = 256

	f, err := os.OpenFile(b.memPath(), os.O_RDONLY, 0)
	if err != nil {
		return "", errno.FromSyscallErr(err)
	}

	defer func() { _ = f.Close() }()

	var out []byte

	off := int64(addr)

	for len(out) < maxLen {
		want := chunk
		if remaining := maxLen - len(out); remaining < want {
			want = remaining
		}

		buf := make([]byte, want)

		n, rerr := f.ReadAt(buf, off)
		if n == 0 && rerr != nil {
			return "", errno.FromSyscallErr(rerr)
		}

		buf = buf[:n]
		if idx := bytes.IndexByte(buf, 0); idx >= 0 {
			out = append(out, buf[:idx]...)
			return string(out), errno.Success
		}

		out = append(out, buf...)
		off += int64(n)

		if n < want {
			break
		}
	}

	return "", errno.ENAMETOOLONG
}

// Write copies data into the guest's address space starting at addr,
// returning the number of bytes written (a short write is valid, per
// spec.md §4.10).
func (b *Bridge) Write(addr uint64, data []byte) (int, errno.Errno) {
	f, err := os.OpenFile(b.memPath(), os.O_WRONLY, 0)
	if err != nil {
		return 0, errno.FromSyscallErr(err)
	}

	defer func() { _ = f.Close() }()

	n, err := f.WriteAt(data, int64(addr))
	if err != nil && n == 0 {
		return 0, errno.FromSyscallErr(err)
	}

	return n, errno.Success
}
