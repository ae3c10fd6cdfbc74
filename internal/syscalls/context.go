// Package syscalls implements the dispatch table and handlers for the
// syscall subset bvisor virtualizes (spec.md §4.3, §4.9). Each handler
// receives a Context carrying everything it needs to decode arguments
// from guest memory, route paths, and reply.
package syscalls

import (
	"github.com/canonical/bvisor/internal/blog"
	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/gmem"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/overlay"
	"github.com/canonical/bvisor/internal/procns"
	"github.com/canonical/bvisor/internal/router"
)

// Context is everything a handler needs to service one notification
// (spec.md §4.10): the decoded request, the caller's Thread (already
// resolved via the kernel probe if it was previously unknown), a
// memory bridge scoped to the caller, and the supervisor's shared,
// read-mostly collaborators.
type Context struct {
	Req    notif.Request
	Caller *procns.Thread
	Mem    *gmem.Bridge

	Threads *procns.Threads
	Router  *router.Router
	Overlay *overlay.Root
	Config  config.Config
	Log     *blog.Logger

	// Notif is the seccomp notification source req came from, needed
	// only by handlers that inject a supervisor-held fd into the
	// guest's real fd table via addfd (spec.md §6; pipe2 adoption).
	Notif *notif.Source
}
