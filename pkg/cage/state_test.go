package cage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostureActive(t *testing.T) {
	s := State{PIIRedaction: true, NetworkLocked: true, SandboxEnabled: true, AuditEnabled: true}
	assert.Equal(t, PostureActive, s.Posture())
}

func TestPostureRelaxed(t *testing.T) {
	s := State{PIIRedaction: false, NetworkLocked: false, SandboxEnabled: true, AuditEnabled: true}
	assert.Equal(t, PostureRelaxed, s.Posture())
}

func TestPostureCustom(t *testing.T) {
	s := State{PIIRedaction: true, NetworkLocked: false, SandboxEnabled: true, AuditEnabled: true}
	assert.Equal(t, PostureCustom, s.Posture())
}

func TestEnvFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cage.env")
	s := State{PIIRedaction: true, NetworkLocked: true, SandboxEnabled: true, AuditEnabled: true, CostKillEnabled: true}

	require.NoError(t, WriteEnvFile(path, s))
	loaded, err := LoadEnvFile(path)
	require.NoError(t, err)

	assert.Equal(t, s.PIIRedaction, loaded.PIIRedaction)
	assert.Equal(t, s.NetworkLocked, loaded.NetworkLocked)
	assert.Equal(t, s.SandboxEnabled, loaded.SandboxEnabled)
	assert.Equal(t, s.AuditEnabled, loaded.AuditEnabled)
	assert.Equal(t, s.CostKillEnabled, loaded.CostKillEnabled)
}

func TestControllerUpAndDown(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "cage.env")
	c := NewController(envPath, 5.0, nil)

	s, err := c.Up(UpOptions{})
	require.NoError(t, err)
	assert.Equal(t, PostureActive, s.Posture())

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "f.txt"), []byte("secret"), 0o600))

	s2, report, err := c.Down([]string{dataDir}, DownOptions{})
	require.NoError(t, err)
	assert.Equal(t, PostureRelaxed, s2.Posture())
	assert.Equal(t, 1, report.FilesDestroyed)

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestControllerDownKeepData(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "cage.env")
	c := NewController(envPath, 5.0, nil)

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "f.txt"), []byte("secret"), 0o600))

	_, _, err := c.Down([]string{dataDir}, DownOptions{KeepData: true})
	require.NoError(t, err)

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
