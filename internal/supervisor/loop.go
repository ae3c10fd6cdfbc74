package supervisor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/gmem"
	"github.com/canonical/bvisor/internal/notif"
	"github.com/canonical/bvisor/internal/procns"
	"github.com/canonical/bvisor/internal/syscalls"
)

// Run reads notifications off the supervisor's source until the guest
// exits or ctx is canceled, dispatching each one to its own goroutine
// bounded by config.MaxInflight in-flight handlers (spec.md §4.2:
// "guests proceed independently; no head-of-line blocking"). A
// single-iteration call is on purpose: this is not a retrying server
// loop, it ends the moment the sandbox does.
func (s *Supervisor) Run(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(s.cfg.MaxInflight))

	g, gctx := errgroup.WithContext(ctx)

	for {
		if err := s.pollReadable(); err != nil {
			if errors.Is(err, notif.ErrGuestGone) {
				break
			}

			return err
		}

		req, err := s.src.Receive()
		if err != nil {
			if errors.Is(err, notif.ErrGuestGone) {
				break
			}

			return err
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break // context canceled while waiting for a dispatch slot
		}

		g.Go(func() error {
			defer sem.Release(1)

			s.handleOne(req)

			return nil
		})
	}

	return g.Wait()
}

// pollReadable blocks until the notification fd is readable or
// reports hangup. The recv ioctl's own internal wait doesn't reliably
// observe the seccomp filter dying on every kernel; polling first
// means a dead filter is always seen as ErrGuestGone rather than a
// recv that blocks forever (spec.md §4.2).
func (s *Supervisor) pollReadable() error {
	fds := []unix.PollFd{{Fd: int32(s.src.Fd()), Events: unix.POLLIN}}

	for {
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return fmt.Errorf("poll notification fd: %w", err)
		}

		if fds[0].Revents&unix.POLLHUP != 0 {
			return notif.ErrGuestGone
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			return nil
		}
	}
}

// handleOne resolves req's caller, builds its dispatch Context, and
// replies. A reply that races the guest's own exit is logged and
// dropped rather than treated as a loop-ending failure (spec.md §4.1
// "guest already exited").
func (s *Supervisor) handleOne(req notif.Request) {
	caller, err := s.threads.Resolve(procns.AbsTid(req.CallerTID))
	if err != nil {
		s.log.Warnf("resolve caller tid=%d: %v", req.CallerTID, err)

		s.reply(notif.Fail(req.ID, int32(errno.ESRCH)))

		return
	}

	ctx := &syscalls.Context{
		Req:     req,
		Caller:  caller,
		Mem:     gmem.New(int(req.CallerTID)),
		Threads: s.threads,
		Router:  s.router,
		Overlay: s.overlay,
		Config:  s.cfg,
		Log:     s.log.WithField("tid", req.CallerTID),
		Notif:   s.src,
	}

	s.reply(syscalls.Dispatch(ctx))
}

func (s *Supervisor) reply(resp notif.Response) {
	if err := s.src.Reply(resp); err != nil {
		if errors.Is(err, notif.ErrGuestGone) {
			s.log.Debugf("reply id=%d: guest already gone", resp.ID)
			return
		}

		s.log.Errorf("reply id=%d: %v", resp.ID, err)
	}
}
