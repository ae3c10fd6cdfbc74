// Package supervisor wires the notification codec, guest-memory
// bridge, path router, overlay filesystem and syscall dispatcher into
// the single-reader/parallel-dispatch loop spec.md §4.2 describes:
// one seccomp notification fd feeds a bounded pool of concurrent
// handlers, each free to reply out of order.
package supervisor

import (
	"fmt"

	"github.com/canonical/bvisor/internal/blog"
	"github.com/canonical/bvisor/internal/config"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/overlay"
	"github.com/canonical/bvisor/internal/procns"
	"github.com/canonical/bvisor/internal/router"
)

// Params groups the inputs New needs to stand up a Supervisor. The
// notification fd and the sandbox's initial guest thread both come
// from an external collaborator (BPF filter installation and fork
// orchestration are out of scope, spec.md §1).
type Params struct {
	NotifFd int
	RootTid int

	Cwd   string
	Root  string
	Umask uint32

	OverlayBase string

	Config config.Config
	Log    *blog.Logger
}

// Supervisor owns one sandbox's worth of state: the process/namespace
// tree, the overlay filesystem root, and the notification source
// driving the dispatch loop (spec.md §3 "the supervisor").
type Supervisor struct {
	cfg config.Config
	log *blog.Logger

	src     *notif.Source
	overlay *overlay.Root
	threads *procns.Threads
	router  *router.Router
}

// New constructs a Supervisor. It creates the overlay root's on-disk
// subtree and registers the sandbox's initial guest thread, but does
// not start the dispatch loop; call Run for that.
func New(p Params) (*Supervisor, error) {
	cfg := p.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}

	log := p.Log
	if log == nil {
		log = blog.New(blog.ComponentSupervisor)
	}

	base := p.OverlayBase
	if base == "" {
		base = cfg.OverlayBase
	}

	root, err := overlay.New(base, overlay.NewUID())
	if err != nil {
		return nil, fmt.Errorf("supervisor: create overlay root: %w", err)
	}

	threads := procns.NewThreads(procns.AbsTid(p.RootTid))
	if _, err := threads.RegisterRoot(p.Cwd, p.Root, p.Umask); err != nil {
		return nil, fmt.Errorf("supervisor: register root thread: %w", err)
	}

	return &Supervisor{
		cfg:     cfg,
		log:     log,
		src:     notif.NewSource(p.NotifFd),
		overlay: root,
		threads: threads,
		router:  router.New(),
	}, nil
}

// Close tears down the overlay root's on-disk subtree (spec.md §3
// OverlayRoot lifecycle). It does not close the notification fd,
// whose ownership stays with the caller (spec.md §1).
func (s *Supervisor) Close() error {
	return s.overlay.Teardown()
}
