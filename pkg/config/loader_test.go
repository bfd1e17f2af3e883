package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.Sandbox.Enabled)
	assert.True(t, cfg.PII.RedactionEnabled)
	assert.Equal(t, "mask", cfg.PII.RedactionStrategy)
	assert.False(t, cfg.Allowlist.NetworkAccessAllowed)
}

func TestInitializeOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
sandbox_enabled: true
cpu_limit: 0.25
memory_limit_mb: 1024
max_open_files: 64
pii_redaction_enabled: false
redaction_strategy: hash
cost_kill_enabled: true
max_tokens_per_call: 2048
budget_limit_per_run: 1.5
audit_enabled: true
audit_storage_path: /tmp/akios-audit
allowed_providers: ["custom-provider"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Sandbox.CPULimit)
	assert.EqualValues(t, 1024, cfg.Sandbox.MemoryMB)
	assert.False(t, cfg.PII.RedactionEnabled)
	assert.Equal(t, "hash", cfg.PII.RedactionStrategy)
	assert.Equal(t, 1.5, cfg.KillSwitch.BudgetLimitPerRun)
	assert.Equal(t, "/tmp/akios-audit", cfg.Audit.StoragePath)

	// Allowlist merge is additive: built-in providers survive alongside
	// the user's custom one.
	assert.Contains(t, cfg.Allowlist.AllowedProviders, "anthropic")
	assert.Contains(t, cfg.Allowlist.AllowedProviders, "custom-provider")
}

func TestInitializeExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AKIOS_TEST_AUDIT_PATH", "/var/akios/audit")
	yaml := []byte("audit_storage_path: ${AKIOS_TEST_AUDIT_PATH}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/akios/audit", cfg.Audit.StoragePath)
}

func TestInitializeRejectsInvalidRedactionStrategy(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("redaction_strategy: shred\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	_, err := Initialize(dir)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "pii", verr.Component)
}

func TestInitializeRejectsOutOfRangeCPULimit(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("cpu_limit: 2.0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	_, err := Initialize(dir)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sandbox", verr.Component)
}
