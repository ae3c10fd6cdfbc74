package procns

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/dirent"
	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/vfs"
)

const (
	statxDirMode  = unix.S_IFDIR | 0o555
	statxFileMode = unix.S_IFREG | 0o444
)

// OpenProcRoot builds the synthesized /proc directory as visible from
// caller's namespace: ".", "..", "self", and one entry per NsTid
// visible there (spec.md §4.7).
func OpenProcRoot(caller *Thread) (*vfs.Synthesized, error) {
	id, ok := caller.NS.NsTidOf(caller)
	if !ok {
		return nil, fmt.Errorf("procns: caller not registered in its own namespace")
	}

	entries := []dirent.Entry{
		{Ino: 1, Type: unix.DT_DIR, Name: "."},
		{Ino: 1, Type: unix.DT_DIR, Name: ".."},
		{Ino: uint64(id) + 1, Type: unix.DT_LNK, Name: "self"},
	}

	for _, nsTid := range caller.NS.VisibleNsTids() {
		entries = append(entries, dirent.Entry{
			Ino:  uint64(nsTid) + 1,
			Type: unix.DT_DIR,
			Name: fmt.Sprintf("%d", nsTid),
		})
	}

	content := dirent.Encode(entries, 0)

	return vfs.NewSynthesizedDir(content, vfs.Statx{
		Mode:  statxDirMode,
		Nlink: 2,
		Size:  0,
		Ino:   1,
	}), nil
}

// OpenProcPidDir builds the synthesized /proc/<pid> directory for the
// thread visible under nsTid in caller's namespace: ".", "..",
// "status" (spec.md §4.7).
func OpenProcPidDir(caller *Thread, nsTid NsTid) (*vfs.Synthesized, bool) {
	if _, ok := caller.NS.ThreadByNsTid(nsTid); !ok {
		return nil, false
	}

	entries := []dirent.Entry{
		{Ino: uint64(nsTid) + 1, Type: unix.DT_DIR, Name: "."},
		{Ino: 1, Type: unix.DT_DIR, Name: ".."},
		{Ino: uint64(nsTid) + 2, Type: unix.DT_REG, Name: "status"},
	}

	content := dirent.Encode(entries, 0)

	return vfs.NewSynthesizedDir(content, vfs.Statx{
		Mode:  statxDirMode,
		Nlink: 2,
		Size:  0,
		Ino:   uint64(nsTid) + 1,
	}), true
}

// OpenProcPidStatus builds the synthesized /proc/<pid>/status file
// content for the thread visible under nsTid in caller's namespace.
// Pid/Tgid/PPid are reported in caller's namespace, matching the real
// kernel's per-namespace status semantics (spec.md §4.9 getpid/getppid).
func OpenProcPidStatus(caller *Thread, nsTid NsTid) (*vfs.Synthesized, bool) {
	target, ok := caller.NS.ThreadByNsTid(nsTid)
	if !ok {
		return nil, false
	}

	nsTgid, _ := caller.NS.NsTidOfAbs(AbsTid(target.Group.Leader))
	ppidNsTid := resolvePpidNsTid(caller, target)

	body := fmt.Sprintf("Name:\tbvisor-guest\nPid:\t%d\nTgid:\t%d\nPPid:\t%d\n", nsTid, nsTgid, ppidNsTid)

	return vfs.NewSynthesizedFile([]byte(body), vfs.Statx{
		Mode:  statxFileMode,
		Nlink: 1,
		Size:  uint64(len(body)),
		Ino:   uint64(nsTid) + 2,
	}), true
}

// ResolveProcPath opens the synthesized file or directory a
// normalized /proc path names, as visible from caller's namespace
// (spec.md §4.7). "self" is resolved to caller's own NsTid.
func ResolveProcPath(caller *Thread, path string) (vfs.File, errno.Errno) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 1 && segs[0] == "" {
		segs = nil
	}

	if len(segs) == 0 {
		f, err := OpenProcRoot(caller)
		if err != nil {
			return nil, errno.ENOENT
		}

		return f, errno.Success
	}

	nsTid, ok := resolveProcPidSegment(caller, segs[0])
	if !ok {
		return nil, errno.ENOENT
	}

	switch len(segs) {
	case 1:
		f, ok := OpenProcPidDir(caller, nsTid)
		if !ok {
			return nil, errno.ENOENT
		}

		return f, errno.Success
	case 2:
		if segs[1] != "status" {
			return nil, errno.ENOENT
		}

		f, ok := OpenProcPidStatus(caller, nsTid)
		if !ok {
			return nil, errno.ENOENT
		}

		return f, errno.Success
	default:
		return nil, errno.ENOENT
	}
}

func resolveProcPidSegment(caller *Thread, seg string) (NsTid, bool) {
	if seg == "self" {
		return caller.NS.NsTidOf(caller)
	}

	n, err := strconv.Atoi(seg)
	if err != nil || n <= 0 {
		return 0, false
	}

	id := NsTid(n)
	if _, ok := caller.NS.ThreadByNsTid(id); !ok {
		return 0, false
	}

	return id, true
}

// resolvePpidNsTid computes target's parent-thread-group-leader's
// NsTid as visible in caller's namespace, or 0 if the parent group
// has no leader visible there (spec.md §4.9 getppid).
func resolvePpidNsTid(caller *Thread, target *Thread) NsTid {
	parentGroup := target.Group.Parent()
	if parentGroup == nil {
		return 0
	}

	id, _ := caller.NS.NsTidOfAbs(AbsTid(parentGroup.Leader))

	return id
}
