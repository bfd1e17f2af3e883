package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/akios/akios/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemAgentValidateRejectsBadOperation(t *testing.T) {
	a := NewFilesystemAgent(nil)
	err := a.Validate(map[string]any{"operation": "delete", "path": "x"})
	require.Error(t, err)
}

func TestFilesystemAgentValidateRejectsDangerousAllowedPath(t *testing.T) {
	a := NewFilesystemAgent(nil)
	err := a.Validate(map[string]any{"operation": "read", "path": "x", "allowed_paths": []any{"/etc"}})
	require.Error(t, err)
}

func TestFilesystemAgentValidateRejectsWriteWhenReadOnly(t *testing.T) {
	a := NewFilesystemAgent(nil)
	err := a.Validate(map[string]any{"operation": "write", "path": "x", "content": "y", "read_only": true})
	require.Error(t, err)
}

func TestFilesystemAgentWriteThenReadRemapsPath(t *testing.T) {
	oldWD, _ := os.Getwd()
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(oldWD)

	a := NewFilesystemAgent(nil)
	ec := workflow.NewExecutionContext("wf", "run-42")

	writeCfg := map[string]any{"operation": "write", "path": "../../etc/passwd", "content": "hello"}
	require.NoError(t, a.Validate(writeCfg))
	out, err := a.Execute(context.Background(), writeCfg, ec)
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, filepath.Join("data", "output", "run_run-42", "passwd"), result["path"])

	data, err := os.ReadFile(result["path"].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
