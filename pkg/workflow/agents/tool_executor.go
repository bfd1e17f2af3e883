package agents

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/akios/akios/pkg/workflow"
)

// ToolExecutorAgent implements the `tool_executor` kind: runs one
// allowlisted command as a subprocess under the cage's resource sandbox
// (spec.md §4.9 tool_executor row). The sandbox itself (cgroups +
// seccomp) is applied by the caller before this process forks — this
// agent only enforces the command-name allowlist, the one check that
// must happen before exec, not after.
type ToolExecutorAgent struct {
	allowedCommands map[string]bool
	logger          *slog.Logger
}

func NewToolExecutorAgent(allowedCommands []string, logger *slog.Logger) *ToolExecutorAgent {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]bool, len(allowedCommands))
	for _, c := range allowedCommands {
		m[c] = true
	}
	return &ToolExecutorAgent{allowedCommands: m, logger: logger}
}

func (a *ToolExecutorAgent) Kind() workflow.AgentKind { return workflow.AgentToolExecutor }

const toolExecutorMaxOutputBytes = 10 * 1024 * 1024 // 10 MiB (spec.md §4.9)

// Validate enforces spec.md §4.9's tool_executor row: `command` is
// required and must be in the cage's allowed_commands list, `timeout`
// (if present) is at most 300s, `max_output_size` (if present) is at
// most 10 MiB, and the command plus its arguments must clear the
// content-rule scan (shell injection, path traversal).
func (a *ToolExecutorAgent) Validate(cfg map[string]any) error {
	cmd, _ := cfg["command"].(string)
	if cmd == "" {
		return fmt.Errorf("tool_executor: missing required field 'command'")
	}
	if !a.allowedCommands[cmd] {
		return fmt.Errorf("tool_executor: command %q not in allowlist", cmd)
	}
	if raw, ok := cfg["allowed_commands"].([]any); ok {
		for _, c := range raw {
			s, ok := c.(string)
			if !ok || !a.allowedCommands[s] {
				return fmt.Errorf("tool_executor: step allowed_commands must be a subset of the cage allowlist, %v is not", c)
			}
		}
	}
	if err := validTimeout(cfg, 300, "tool_executor"); err != nil {
		return err
	}
	if v, ok := cfg["max_output_size"]; ok {
		n, ok := asInt(v)
		if !ok || n <= 0 || n > toolExecutorMaxOutputBytes {
			return fmt.Errorf("tool_executor: 'max_output_size' must be between 0 and %d bytes", toolExecutorMaxOutputBytes)
		}
	}

	scanText := cmd
	if raw, ok := cfg["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				scanText += " " + s
			}
		}
	} else if raw, ok := cfg["args"].(string); ok {
		scanText += " " + raw
	}
	if err := scanContentRules(scanText); err != nil {
		return fmt.Errorf("tool_executor: %w", err)
	}
	return nil
}

func (a *ToolExecutorAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	command := cfg["command"].(string)

	var args []string
	if raw, ok := cfg["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	} else if raw, ok := cfg["args"].(string); ok && raw != "" {
		args = strings.Fields(raw)
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	a.logger.Info("agents: tool_executor ran command", "command", command, "args", args, "exit_err", err != nil)

	if err != nil {
		return nil, fmt.Errorf("tool_executor: %s failed: %w: %s", command, err, stderr.String())
	}

	maxOutput := toolExecutorMaxOutputBytes
	if n, ok := asInt(cfg["max_output_size"]); ok && n > 0 {
		maxOutput = n
	}
	out := stdout.String()
	if len(out) > maxOutput {
		out = out[:maxOutput]
	}

	return map[string]any{"stdout": out, "stderr": stderr.String()}, nil
}
