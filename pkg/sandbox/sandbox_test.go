package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCPUMaxValueFormatsTwoFieldSyntax(t *testing.T) {
	assert.Equal(t, "50000 100000", cpuMaxValue(0.5))
	assert.Equal(t, "100000 100000", cpuMaxValue(1.0))
}

func TestCPUMaxValueNeverZeroQuota(t *testing.T) {
	assert.Equal(t, "1 100000", cpuMaxValue(0))
}

func TestEnforceLimitsNeverReturnsErrorOnDegradation(t *testing.T) {
	s := NewResourceSandbox("wf-test-1", nil)
	err := s.EnforceLimits(ResourceLimits{CPUFraction: 0.5, MemoryBytes: 256 << 20, MaxOpenFiles: 64})
	assert.NoError(t, err)
	assert.Contains(t, []Mode{ModeKernelHard, ModePolicyBased}, s.Mode())
}

func TestCleanupIsNoOpWithoutKernelHardMode(t *testing.T) {
	s := NewResourceSandbox("wf-test-2", nil)
	// Without calling EnforceLimits, mode is the zero value, never
	// kernel-hard, so Cleanup must be a no-op and never panic.
	assert.NotPanics(t, func() { s.Cleanup() })
}

func TestApplyPolicyDegradesGracefullyOutsideActiveCage(t *testing.T) {
	mode, err := ApplyPolicy(AgentHTTP, false, nil)
	assert.NoError(t, err)
	assert.Contains(t, []Mode{ModeKernelHard, ModePolicyBased}, mode)
}

func TestNewViolationSetsHighSeverity(t *testing.T) {
	v := NewViolation(AgentToolExecutor, "mount")
	assert.Equal(t, "HIGH", v.Severity)
	assert.Equal(t, "mount", v.Syscall)
}
