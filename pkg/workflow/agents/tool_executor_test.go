package agents

import (
	"context"
	"testing"

	"github.com/akios/akios/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolExecutorAgentExecuteCapturesStdout(t *testing.T) {
	a := NewToolExecutorAgent([]string{"echo"}, nil)
	cfg := map[string]any{"command": "echo", "args": []any{"hello", "world"}}
	require.NoError(t, a.Validate(cfg))

	ec := workflow.NewExecutionContext("wf", "run-1")
	out, err := a.Execute(context.Background(), cfg, ec)
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "hello world\n", result["stdout"])
}

func TestToolExecutorValidateRejectsShellInjectionInArgs(t *testing.T) {
	a := NewToolExecutorAgent([]string{"echo"}, nil)
	err := a.Validate(map[string]any{"command": "echo", "args": []any{"$(rm -rf /)"}})
	require.Error(t, err)
}

func TestToolExecutorValidateRejectsStepAllowedCommandsOutsideCage(t *testing.T) {
	a := NewToolExecutorAgent([]string{"echo"}, nil)
	err := a.Validate(map[string]any{"command": "echo", "allowed_commands": []any{"echo", "rm"}})
	require.Error(t, err)
}

func TestToolExecutorValidateRejectsOversizedTimeout(t *testing.T) {
	a := NewToolExecutorAgent([]string{"echo"}, nil)
	err := a.Validate(map[string]any{"command": "echo", "timeout": 301})
	require.Error(t, err)
}

func TestToolExecutorAgentExecutePropagatesExitError(t *testing.T) {
	a := NewToolExecutorAgent([]string{"false"}, nil)
	cfg := map[string]any{"command": "false"}
	require.NoError(t, a.Validate(cfg))

	ec := workflow.NewExecutionContext("wf", "run-1")
	_, err := a.Execute(context.Background(), cfg, ec)
	require.Error(t, err)
}
