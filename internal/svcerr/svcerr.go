// Package svcerr defines the internal failure-kind taxonomy used
// inside the supervisor's core registries (spec.md §7). Handlers
// translate these into errno.Errno at the reply boundary; nothing
// below the handler layer should ever construct an errno.Errno
// directly from one of these.
package svcerr

import (
	"errors"
	"fmt"

	"github.com/canonical/bvisor/internal/errno"
)

// Kind identifies one of the internal failure taxonomy members from
// spec.md §7.
type Kind int

const (
	KindNotInRegistry Kind = iota
	KindNotInSandbox
	KindParseError
	KindBufferTooSmall
	KindInvalidPath
	KindUnsupportedCloneFlag
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotInRegistry:
		return "not in registry"
	case KindNotInSandbox:
		return "not in sandbox"
	case KindParseError:
		return "parse error"
	case KindBufferTooSmall:
		return "buffer too small"
	case KindInvalidPath:
		return "invalid path"
	case KindUnsupportedCloneFlag:
		return "unsupported clone flag"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is an internal-kind failure, optionally wrapping a cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err, if it (or something it wraps) is
// an *Error.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}

	return 0, false
}

// ToErrno maps an internal Kind to the Linux errno a handler should
// reply with. This is the single place spec.md §7's "every internal
// kind is mapped by the handler to a Linux errno" happens.
func ToErrno(err error) errno.Errno {
	kind, ok := KindOf(err)
	if !ok {
		return errno.FromSyscallErr(err)
	}

	switch kind {
	case KindNotInRegistry, KindNotInSandbox:
		return errno.ESRCH
	case KindParseError, KindInvalidPath, KindUnsupportedCloneFlag:
		return errno.EINVAL
	case KindBufferTooSmall:
		return errno.ENAMETOOLONG
	case KindTimeout:
		return errno.ETIMEDOUT
	default:
		return errno.EIO
	}
}
