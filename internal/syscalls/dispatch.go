package syscalls

import (
	"golang.org/x/sys/unix"

	"github.com/canonical/bvisor/internal/errno"
	"github.com/canonical/bvisor/internal/notif"
)

// Outcome tags how a dispatch table entry resolves a syscall (spec.md
// §4.3): a handler runs and produces the reply itself, the kernel runs
// the syscall unmodified, or the guest gets a fixed PERM/NOSYS.
type Outcome int

const (
	OutcomeHandled Outcome = iota
	OutcomeContinue
	OutcomePerm
	OutcomeNosys
)

// Handler services one notification and returns the reply to send.
type Handler func(ctx *Context) notif.Response

// entry is one dispatch table row.
type entry struct {
	outcome Outcome
	handler Handler
}

// table is the compile-time syscall-number -> behavior map (spec.md
// §4.3, §4.9). Numbers are the teacher's own golang.org/x/sys/unix
// SYS_* constants, so the table can never drift from the host ABI.
var table = map[int32]entry{
	unix.SYS_GETPID:  {outcome: OutcomeHandled, handler: handleGetpid},
	unix.SYS_GETPPID: {outcome: OutcomeHandled, handler: handleGetppid},
	unix.SYS_GETTID:  {outcome: OutcomeHandled, handler: handleGettid},

	unix.SYS_GETUID: {outcome: OutcomeContinue},
	unix.SYS_GETGID: {outcome: OutcomeContinue},

	unix.SYS_OPENAT: {outcome: OutcomeHandled, handler: handleOpenat},
	unix.SYS_CLOSE:  {outcome: OutcomeHandled, handler: handleClose},

	unix.SYS_READ:  {outcome: OutcomeHandled, handler: handleRead},
	unix.SYS_WRITE: {outcome: OutcomeHandled, handler: handleWrite},

	unix.SYS_READV:  {outcome: OutcomeHandled, handler: handleReadv},
	unix.SYS_WRITEV: {outcome: OutcomeHandled, handler: handleWritev},

	unix.SYS_DUP:  {outcome: OutcomeHandled, handler: handleDup},
	unix.SYS_DUP3: {outcome: OutcomeHandled, handler: handleDup3},

	unix.SYS_PIPE2:    {outcome: OutcomeHandled, handler: handlePipe2},
	unix.SYS_EVENTFD2: {outcome: OutcomeHandled, handler: handleEventfd2},

	unix.SYS_FSTAT:      {outcome: OutcomeHandled, handler: handleFstat},
	unix.SYS_NEWFSTATAT: {outcome: OutcomeHandled, handler: handleFstatat},
	unix.SYS_STATX:      {outcome: OutcomeHandled, handler: handleStatx},

	unix.SYS_LSEEK: {outcome: OutcomeHandled, handler: handleLseek},

	unix.SYS_GETCWD:  {outcome: OutcomeHandled, handler: handleGetcwd},
	unix.SYS_CHDIR:   {outcome: OutcomeHandled, handler: handleChdir},
	unix.SYS_FCHDIR:  {outcome: OutcomeHandled, handler: handleFchdir},

	unix.SYS_FACCESSAT: {outcome: OutcomeHandled, handler: handleFaccessat},

	unix.SYS_FCNTL: {outcome: OutcomeHandled, handler: handleFcntl},

	unix.SYS_IOCTL:      {outcome: OutcomeHandled, handler: handleIoctl},
	unix.SYS_CONNECT:    {outcome: OutcomeHandled, handler: handleConnect},
	unix.SYS_SHUTDOWN:   {outcome: OutcomeHandled, handler: handleShutdown},
	unix.SYS_SENDTO:     {outcome: OutcomeHandled, handler: handleSendto},
	unix.SYS_RECVFROM:   {outcome: OutcomeHandled, handler: handleRecvfrom},
	unix.SYS_SENDMSG:    {outcome: OutcomeHandled, handler: handleSendmsg},
	unix.SYS_RECVMSG:    {outcome: OutcomeHandled, handler: handleRecvmsg},
	unix.SYS_SOCKET:     {outcome: OutcomeHandled, handler: handleSocket},
	unix.SYS_SOCKETPAIR: {outcome: OutcomeHandled, handler: handleSocketpair},

	unix.SYS_UNAME:   {outcome: OutcomeHandled, handler: handleUname},
	unix.SYS_SYSINFO: {outcome: OutcomeHandled, handler: handleSysinfo},

	unix.SYS_EXIT:       {outcome: OutcomeHandled, handler: handleExit},
	unix.SYS_EXIT_GROUP: {outcome: OutcomeHandled, handler: handleExitGroup},
	unix.SYS_TKILL:      {outcome: OutcomeHandled, handler: handleTkill},
	unix.SYS_KILL:       {outcome: OutcomeHandled, handler: handleKill},

	unix.SYS_EXECVE: {outcome: OutcomeHandled, handler: handleExecve},

	unix.SYS_UNLINKAT:  {outcome: OutcomeHandled, handler: handleUnlinkat},
	unix.SYS_MKDIRAT:   {outcome: OutcomeHandled, handler: handleMkdirat},
	unix.SYS_RENAMEAT2: {outcome: OutcomeHandled, handler: handleRenameat2},

	// Memory/signal/scheduling syscalls bvisor has no reason to
	// intercept: they never touch the path router, FdTable, or
	// namespace tree, so the kernel runs them unmodified (spec.md
	// SUPPLEMENTED FEATURES).
	unix.SYS_BRK:          {outcome: OutcomeContinue},
	unix.SYS_MMAP:         {outcome: OutcomeContinue},
	unix.SYS_RT_SIGACTION: {outcome: OutcomeContinue},
	unix.SYS_FUTEX:        {outcome: OutcomeContinue},
	unix.SYS_NANOSLEEP:    {outcome: OutcomeContinue},
	unix.SYS_GETRANDOM:    {outcome: OutcomeContinue},
	unix.SYS_PRCTL:        {outcome: OutcomeContinue},

	// Hard-blocked: each would let the guest escape or inspect the
	// sandbox boundary itself (spec.md §4.3 PERM).
	unix.SYS_PTRACE:          {outcome: OutcomePerm},
	unix.SYS_MOUNT:           {outcome: OutcomePerm},
	unix.SYS_CHROOT:          {outcome: OutcomePerm},
	unix.SYS_PIVOT_ROOT:      {outcome: OutcomePerm},
	unix.SYS_SETNS:           {outcome: OutcomePerm},
	unix.SYS_UNSHARE:         {outcome: OutcomePerm},
	unix.SYS_SECCOMP:         {outcome: OutcomePerm},
	unix.SYS_BPF:             {outcome: OutcomePerm},
	unix.SYS_KEXEC_LOAD:      {outcome: OutcomePerm},
	unix.SYS_KEXEC_FILE_LOAD: {outcome: OutcomePerm},
	unix.SYS_INIT_MODULE:     {outcome: OutcomePerm},
	unix.SYS_PRLIMIT64:       {outcome: OutcomePerm},
	unix.SYS_PERSONALITY:     {outcome: OutcomePerm},
}

// Dispatch resolves req against the table and produces its reply.
// Syscall numbers the table has no entry for fall back to NOSYS,
// matching the kernel's own behavior for an unimplemented syscall
// (spec.md §4.3 "default").
func Dispatch(ctx *Context) notif.Response {
	e, ok := table[ctx.Req.SyscallNr]
	if !ok {
		return notif.Fail(ctx.Req.ID, int32(errno.ENOSYS))
	}

	switch e.outcome {
	case OutcomeContinue:
		return notif.ContinueResponse(ctx.Req.ID)
	case OutcomePerm:
		return notif.Fail(ctx.Req.ID, int32(errno.EPERM))
	case OutcomeNosys:
		return notif.Fail(ctx.Req.ID, int32(errno.ENOSYS))
	default:
		return e.handler(ctx)
	}
}
