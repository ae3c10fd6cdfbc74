package procns

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// threadInfo is what the kernel probe recovers from /proc/[tid]/status
// (spec.md §4.8 "Kernel probe").
type threadInfo struct {
	ppid AbsTid
	tgid AbsTid
}

// probeThread reads /proc/[tid]/status and extracts PPid and Tgid.
func probeThread(tid AbsTid) (threadInfo, error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(int(tid)), "status"))
	if err != nil {
		return threadInfo{}, err
	}
	defer f.Close()

	var info threadInfo

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()

		switch {
		case strings.HasPrefix(line, "PPid:"):
			v, err := parseStatusInt(line)
			if err != nil {
				return threadInfo{}, err
			}

			info.ppid = AbsTid(v)
		case strings.HasPrefix(line, "Tgid:"):
			v, err := parseStatusInt(line)
			if err != nil {
				return threadInfo{}, err
			}

			info.tgid = AbsTid(v)
		}
	}

	if err := sc.Err(); err != nil {
		return threadInfo{}, err
	}

	return info, nil
}

func parseStatusInt(line string) (int64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("procns: malformed status line %q", line)
	}

	return strconv.ParseInt(fields[1], 10, 64)
}

// pidNsInode returns the inode number backing tid's PID-namespace
// symlink (/proc/[tid]/ns/pid), used to infer CLONE_NEWPID by
// comparing parent and child namespace identities (spec.md §4.8).
func pidNsInode(tid AbsTid) (uint64, error) {
	link, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(int(tid)), "ns", "pid"))
	if err != nil {
		return 0, err
	}

	// Format is "pid:[4026531836]".
	open := strings.IndexByte(link, '[')
	end := strings.IndexByte(link, ']')
	if open < 0 || end < 0 || end < open {
		return 0, fmt.Errorf("procns: malformed ns link %q", link)
	}

	return strconv.ParseUint(link[open+1:end], 10, 64)
}

// kcmpTypeFiles is KCMP_FILES, the kcmp(2) resource type comparing two
// processes' file descriptor tables for identity.
const kcmpTypeFiles = 2

// kcmpFilesShared reports whether a and b share the same file
// descriptor table, via the kcmp(2) syscall (spec.md §4.8 "FILES by
// kcmp returning equal").
func kcmpFilesShared(a, b AbsTid) (bool, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_KCMP, uintptr(a), uintptr(b), uintptr(kcmpTypeFiles), 0, 0, 0)
	if errno != 0 {
		return false, errno
	}

	return ret == 0, nil
}

// taskSubtree lists the processes in root's real kernel process tree:
// every numeric /proc entry (root included) whose PPid chain, read from
// /proc/[pid]/status, reaches root. Only top-level /proc entries are
// scanned and /proc/[pid]/task is not walked, so threads other than
// thread-group leaders are not listed.
func taskSubtree(root AbsTid) ([]AbsTid, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var all []AbsTid

	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}

		all = append(all, AbsTid(tid))
	}

	ppidOf := map[AbsTid]AbsTid{}
	for _, tid := range all {
		info, err := probeThread(tid)
		if err != nil {
			continue // thread exited mid-scan
		}

		ppidOf[tid] = info.ppid
	}

	var inSubtree []AbsTid

	for _, tid := range all {
		cur := tid
		for hops := 0; hops < maxProbeHops; hops++ {
			if cur == root {
				inSubtree = append(inSubtree, tid)
				break
			}

			next, ok := ppidOf[cur]
			if !ok || next == 0 {
				break
			}

			cur = next
		}
	}

	return inSubtree, nil
}
