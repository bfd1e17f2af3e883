package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/akios/akios/pkg/workflow"
)

// FilesystemAgent implements the `filesystem` kind: read/write/append
// operations confined to the run's remapped output directory
// (spec.md §4.7 "output-path remapping", §4.9 filesystem row). One
// instance is shared across every run (registered once in the
// registry), so the run ID is read from the execution context at
// Execute time rather than fixed at construction.
type FilesystemAgent struct {
	logger *slog.Logger
}

func NewFilesystemAgent(logger *slog.Logger) *FilesystemAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemAgent{logger: logger}
}

func (a *FilesystemAgent) Kind() workflow.AgentKind { return workflow.AgentFilesystem }

// Validate enforces spec.md §4.9's filesystem row: `operation` is one of
// read/write/append, `path` is required for all three, `allowed_paths`
// (if present) is a list containing no dangerous system root, and
// `read_only` (if present) is boolean.
func (a *FilesystemAgent) Validate(cfg map[string]any) error {
	op, _ := cfg["operation"].(string)
	switch op {
	case "read", "write", "append":
	default:
		return fmt.Errorf("filesystem: 'operation' must be one of read, write, append, got %q", op)
	}
	if path, _ := cfg["path"].(string); path == "" {
		return fmt.Errorf("filesystem: missing required field 'path'")
	}
	if op == "write" || op == "append" {
		if _, ok := cfg["content"]; !ok {
			return fmt.Errorf("filesystem: %s requires 'content'", op)
		}
	}

	if raw, ok := cfg["allowed_paths"]; ok {
		paths, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("filesystem: 'allowed_paths' must be a list")
		}
		for _, p := range paths {
			s, ok := p.(string)
			if !ok {
				return fmt.Errorf("filesystem: 'allowed_paths' entries must be strings")
			}
			if dangerousRoots[s] {
				return fmt.Errorf("filesystem: 'allowed_paths' cannot include dangerous root %q", s)
			}
		}
	}
	if raw, ok := cfg["read_only"]; ok {
		if _, ok := raw.(bool); !ok {
			return fmt.Errorf("filesystem: 'read_only' must be boolean")
		}
	}
	if op != "read" {
		if ro, ok := cfg["read_only"].(bool); ok && ro {
			return fmt.Errorf("filesystem: operation %q not permitted when 'read_only' is true", op)
		}
	}
	return nil
}

func (a *FilesystemAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	requested := cfg["path"].(string)
	runID, _ := ec.Get("run_id")
	resolved := workflow.RemapOutputPath(runID.Stringify(), requested)
	op := cfg["operation"].(string)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: creating output directory: %w", err)
	}

	switch op {
	case "read":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("filesystem: read failed: %w", err)
		}
		return map[string]any{"content": string(data)}, nil

	case "write":
		content, _ := cfg["content"].(string)
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("filesystem: write failed: %w", err)
		}
		a.logger.Info("agents: filesystem write", "path", resolved, "bytes", len(content))
		return map[string]any{"path": resolved, "bytes_written": len(content)}, nil

	case "append":
		content, _ := cfg["content"].(string)
		f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("filesystem: append open failed: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return nil, fmt.Errorf("filesystem: append write failed: %w", err)
		}
		return map[string]any{"path": resolved, "bytes_appended": len(content)}, nil

	default:
		return nil, fmt.Errorf("filesystem: unsupported operation %q", op)
	}
}
