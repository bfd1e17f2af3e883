package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	seccomp "github.com/seccomp/libseccomp-golang"
)

// AgentKind names the step agent types the policy is keyed on (mirrors
// pkg/workflow's AgentKind without importing it, to keep sandbox
// dependency-free of the engine).
type AgentKind string

const (
	AgentLLM           AgentKind = "llm"
	AgentFilesystem    AgentKind = "filesystem"
	AgentHTTP          AgentKind = "http"
	AgentToolExecutor  AgentKind = "tool_executor"
	AgentWebhook       AgentKind = "webhook"
	AgentDatabase      AgentKind = "database"
)

// essentialSyscalls is the broad allowlist installed for every agent
// kind: I/O, memory, signals, time, poll/epoll, network (spec.md §4.5).
var essentialSyscalls = []string{
	"read", "write", "readv", "writev", "pread64", "pwrite64",
	"open", "openat", "close", "fstat", "stat", "lstat", "newfstatat",
	"mmap", "munmap", "mprotect", "brk", "madvise",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
	"clock_gettime", "gettimeofday", "nanosleep", "clock_nanosleep",
	"poll", "ppoll", "epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait",
	"socket", "connect", "accept4", "bind", "listen", "getsockopt", "setsockopt",
	"sendto", "recvfrom", "sendmsg", "recvmsg", "shutdown",
	"exit", "exit_group", "futex", "getpid", "gettid", "getrandom",
	"fcntl", "ioctl", "lseek", "dup", "dup2", "dup3",
}

// absoluteBlocklist is never allowed regardless of agent kind, even if
// an agent-specific policy would otherwise add it (spec.md §4.5).
var absoluteBlocklist = []string{
	"mount", "umount2", "ptrace", "kexec_load", "bpf", "setns",
	"keyctl", "reboot", "init_module", "delete_module", "pivot_root",
	"swapon", "swapoff", "acct", "quotactl",
}

// agentExtraSyscalls extends the essential set per agent kind, where the
// agent's own side effects need something beyond the shared baseline.
var agentExtraSyscalls = map[AgentKind][]string{
	AgentFilesystem:   {"unlink", "unlinkat", "rename", "renameat", "renameat2", "mkdir", "mkdirat", "chmod", "fchmod", "truncate", "ftruncate"},
	AgentToolExecutor: {"execve", "execveat", "clone", "clone3", "wait4", "waitid", "kill", "pipe", "pipe2", "vfork"},
	AgentDatabase:     {"getsockname", "getpeername"},
}

var (
	installOnce   sync.Once
	installResult error
	installMode   Mode
)

// ApplyPolicy installs a process-global seccomp-bpf filter keyed on the
// agent's allowed syscall set. The filter is install-once: a second call
// in the same process is a no-op, matching spec.md §4.5's
// "process-global and install-once" contract.
//
// cageActive controls degradation policy (DESIGN.md's Open Question
// decision): when the cage is ACTIVE, a failed install on Linux+root is
// fatal; otherwise it degrades to policy-based mode with a logged
// warning.
func ApplyPolicy(kind AgentKind, cageActive bool, logger *slog.Logger) (Mode, error) {
	if logger == nil {
		logger = slog.Default()
	}

	installOnce.Do(func() {
		installMode, installResult = installFilter(kind, logger)
	})

	if installResult != nil && cageActive && runtime.GOOS == "linux" && os.Geteuid() == 0 {
		return installMode, fmt.Errorf("sandbox: seccomp filter required under ACTIVE cage but unavailable: %w", installResult)
	}

	return installMode, nil
}

func installFilter(kind AgentKind, logger *slog.Logger) (Mode, error) {
	if runtime.GOOS != "linux" {
		logger.Warn("sandbox: seccomp unavailable on this platform, degrading to policy-based mode", "os", runtime.GOOS)
		return ModePolicyBased, fmt.Errorf("seccomp requires linux, got %s", runtime.GOOS)
	}
	if os.Geteuid() != 0 {
		logger.Warn("sandbox: seccomp filter install requires root, degrading to policy-based mode")
		return ModePolicyBased, fmt.Errorf("seccomp requires root")
	}

	filter, err := seccomp.NewFilter(seccomp.ActErrno.SetReturnCode(int16(1) /* EPERM */))
	if err != nil {
		logger.Warn("sandbox: creating seccomp filter failed, degrading to policy-based mode", "error", err)
		return ModePolicyBased, fmt.Errorf("creating seccomp filter: %w", err)
	}

	allowed := append([]string{}, essentialSyscalls...)
	allowed = append(allowed, agentExtraSyscalls[kind]...)

	blocked := make(map[string]bool, len(absoluteBlocklist))
	for _, name := range absoluteBlocklist {
		blocked[name] = true
	}

	for _, name := range allowed {
		if blocked[name] {
			continue
		}
		call, resolveErr := seccomp.GetSyscallFromName(name)
		if resolveErr != nil {
			// Syscall not present on this architecture; skip rather
			// than fail the whole filter.
			continue
		}
		if err := filter.AddRule(call, seccomp.ActAllow); err != nil {
			logger.Warn("sandbox: adding seccomp rule failed, degrading to policy-based mode", "syscall", name, "error", err)
			return ModePolicyBased, fmt.Errorf("adding rule for %s: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		logger.Warn("sandbox: loading seccomp filter failed, degrading to policy-based mode", "error", err)
		return ModePolicyBased, fmt.Errorf("loading seccomp filter: %w", err)
	}

	logger.Info("sandbox: seccomp-bpf filter installed", "agent_kind", kind, "allowed_syscalls", len(allowed))
	return ModeKernelHard, nil
}

// Violation is a blocked-syscall-at-runtime report (spec.md §4.5
// "Violation handling"). The kernel itself enforces the block (EPERM);
// this type exists for the audit event the engine writes once it
// observes the resulting agent error.
type Violation struct {
	AgentKind AgentKind
	Syscall   string
	Severity  string
}

func NewViolation(kind AgentKind, syscallName string) Violation {
	return Violation{AgentKind: kind, Syscall: syscallName, Severity: "HIGH"}
}
