// Package router implements the path router (spec.md §4.4): it
// normalizes an arbitrary path and classifies it into one of a fixed
// set of routing decisions via a static, directory-aware prefix tree.
package router

import (
	"strings"

	"github.com/canonical/bvisor/internal/errno"
)

// Decision is a routing outcome for a normalized path.
type Decision int

const (
	// Block means the path is hard-denied (EPERM).
	Block Decision = iota
	// CowOverlay routes through the per-sandbox copy-on-write tree.
	CowOverlay
	// TmpOverlay routes through the guest's private /tmp.
	TmpOverlay
	// ProcVirtual routes through synthesized /proc content.
	ProcVirtual
	// PassthroughDevice routes straight to a real host device node.
	PassthroughDevice
)

func (d Decision) String() string {
	switch d {
	case Block:
		return "block"
	case CowOverlay:
		return "cow-overlay"
	case TmpOverlay:
		return "tmp-overlay"
	case ProcVirtual:
		return "proc-virtual"
	case PassthroughDevice:
		return "passthrough-device"
	default:
		return "unknown"
	}
}

// maxPathLen bounds the normalization buffer (spec.md §4.4, §8:
// "Path length = buffer capacity succeeds; one byte more returns
// NAMETOOLONG").
const maxPathLen = 4096

type node struct {
	children map[string]*node
	decision Decision
	isLeaf   bool
}

// Router holds the static prefix tree and its per-subtree defaults.
type Router struct {
	root *node
}

// New builds the router with bvisor's fixed ruleset (spec.md §4.4).
func New() *Router {
	r := &Router{root: &node{children: map[string]*node{}}}

	r.insert("/sys", Block)
	r.insert("/run", Block)
	r.insert("/dev/null", PassthroughDevice)
	r.insert("/dev/zero", PassthroughDevice)
	r.insert("/dev/random", PassthroughDevice)
	r.insert("/dev/urandom", PassthroughDevice)
	r.insert("/dev", Block) // fallback for all other /dev/*
	r.insert("/proc", ProcVirtual)
	r.insert("/tmp/.bvisor", Block)
	r.insert("/tmp", TmpOverlay) // fallback for all other /tmp/*
	r.root.decision = CowOverlay // anything else
	r.root.isLeaf = true

	return r
}

func (r *Router) insert(path string, d Decision) {
	segs := segments(path)

	n := r.root
	for _, s := range segs {
		child, ok := n.children[s]
		if !ok {
			child = &node{children: map[string]*node{}}
			n.children[s] = child
		}

		n = child
	}

	n.decision = d
	n.isLeaf = true
}

func segments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "/")
}

// Resolve normalizes path and returns its routing decision. Per
// spec.md §8, Resolve(p) == Resolve(Normalize(p)) always, and
// normalization never permits escape above "/".
func (r *Router) Resolve(path string) (Decision, errno.Errno) {
	norm, e := Normalize(path)
	if e != errno.Success {
		return Block, e
	}

	return r.resolveNormalized(norm), errno.Success
}

func (r *Router) resolveNormalized(path string) Decision {
	segs := segments(path)

	n := r.root
	best := r.root.decision

	for _, s := range segs {
		child, ok := n.children[s]
		if !ok {
			return best
		}

		n = child
		if n.isLeaf {
			best = n.decision
		}
	}

	return best
}

// Normalize resolves "." and ".." lexically against "/", forbidding
// any escape above root, and bounds the result to maxPathLen (spec.md
// §4.4).
func Normalize(path string) (string, errno.Errno) {
	if len(path) > maxPathLen {
		return "", errno.ENAMETOOLONG
	}

	if path == "" || path[0] != '/' {
		return "", errno.EINVAL
	}

	parts := strings.Split(path, "/")
	stack := make([]string, 0, len(parts))

	for _, p := range parts {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			// Escaping above "/" is simply absorbed, never an error:
			// the kernel's own namei does the same for "/..".
		default:
			stack = append(stack, p)
		}
	}

	out := "/" + strings.Join(stack, "/")
	if len(out) > maxPathLen {
		return "", errno.ENAMETOOLONG
	}

	return out, errno.Success
}
