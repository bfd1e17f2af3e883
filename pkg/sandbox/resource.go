// Package sandbox implements the Resource Sandbox and Syscall
// Interceptor (spec.md §4.5, Components F and G).
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// Mode reports whether kernel-level isolation was actually installed or
// the sandbox degraded to policy-based enforcement (spec.md §4.5
// "Degradation rules").
type Mode string

const (
	ModeKernelHard   Mode = "kernel-hard"
	ModePolicyBased  Mode = "policy-based"
)

const cgroupRoot = "/sys/fs/cgroup/akios"

// ResourceLimits are the quotas enforced by EnforceLimits, per spec.md §6
// config keys (cpu_limit, memory_limit_mb, max_open_files).
type ResourceLimits struct {
	CPUFraction  float64 // (0,1]
	MemoryBytes  int64
	MaxOpenFiles int
}

// ResourceSandbox installs cgroups v2 quotas for the current process,
// writing directly to cgroupfs (see DESIGN.md's Stdlib Justifications —
// no cgroups client library exists in the retrieved corpus; cgroupfs
// itself is the kernel ABI).
type ResourceSandbox struct {
	workflowID string
	logger     *slog.Logger
	mode       Mode
}

// NewResourceSandbox returns a sandbox scoped to one workflow run.
func NewResourceSandbox(workflowID string, logger *slog.Logger) *ResourceSandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceSandbox{workflowID: workflowID, logger: logger}
}

// Mode reports the posture EnforceLimits settled into.
func (s *ResourceSandbox) Mode() Mode { return s.mode }

// EnforceLimits attempts to install cgroups v2 limits for the current
// process. On unavailability (non-Linux, no cgroups, non-root, a
// container without cgroup write access) it does NOT fail the process:
// it transitions to policy-based mode and returns that decision for the
// caller to audit (per spec.md §4.5, the ledger write itself is the
// caller's responsibility so sandbox has no audit dependency).
func (s *ResourceSandbox) EnforceLimits(limits ResourceLimits) error {
	if runtime.GOOS != "linux" {
		s.mode = ModePolicyBased
		s.logger.Warn("sandbox: cgroups v2 unavailable on this platform, degrading to policy-based mode", "os", runtime.GOOS)
		return nil
	}

	dir := filepath.Join(cgroupRoot, s.workflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.mode = ModePolicyBased
		s.logger.Warn("sandbox: cannot create cgroup directory, degrading to policy-based mode", "error", err)
		return nil
	}

	writes := map[string]string{
		"cpu.max":    cpuMaxValue(limits.CPUFraction),
		"memory.max": fmt.Sprintf("%d", limits.MemoryBytes),
		"pids.max":   fmt.Sprintf("%d", limits.MaxOpenFiles),
	}

	for file, value := range writes {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
			s.mode = ModePolicyBased
			s.logger.Warn("sandbox: writing cgroup control file failed, degrading to policy-based mode", "file", file, "error", err)
			return nil
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		s.mode = ModePolicyBased
		s.logger.Warn("sandbox: joining cgroup failed, degrading to policy-based mode", "error", err)
		return nil
	}

	s.mode = ModeKernelHard
	s.logger.Info("sandbox: cgroups v2 limits installed", "workflow_id", s.workflowID, "cpu_fraction", limits.CPUFraction, "memory_bytes", limits.MemoryBytes)
	return nil
}

// cpuMaxValue formats a CPU fraction as the cgroups v2 "cpu.max"
// two-field format: "<quota> <period>" with a 100ms period.
func cpuMaxValue(fraction float64) string {
	const periodUS = 100000
	quota := int64(fraction * periodUS)
	if quota <= 0 {
		quota = 1
	}
	return fmt.Sprintf("%d %d", quota, periodUS)
}

// Cleanup removes the per-workflow cgroup directory. Safe to call even
// if EnforceLimits degraded to policy-based mode (no-op in that case).
func (s *ResourceSandbox) Cleanup() {
	if s.mode != ModeKernelHard {
		return
	}
	dir := filepath.Join(cgroupRoot, s.workflowID)
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("sandbox: cgroup cleanup failed", "error", err)
	}
}
