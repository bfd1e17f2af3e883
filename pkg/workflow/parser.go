package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// forbiddenConstructKeys are workflow-file keys that would imply
// parallel or branched execution — both are Non-goals (spec.md §1):
// AKIOS workflows are a flat, sequential step list by construction, so
// these are rejected at parse time rather than silently ignored.
var forbiddenConstructKeys = []string{
	"parallel", "parallel_steps", "branches", "branch", "for_each",
	"foreach", "loop", "goto", "while", "map", "reduce",
}

// ParseFile reads and validates a workflow YAML file (spec.md §6
// "workflow file format").
func ParseFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading %s: %w", path, err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow: %s: %w", path, err)
	}
	wf.sourcePath = path
	return wf, nil
}

// Parse validates raw YAML bytes into a Workflow, scanning for
// forbidden constructs before structural validation so a rejected
// workflow never partially executes.
func Parse(data []byte) (*Workflow, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForbiddenConstruct, err)
	}
	if err := scanForbidden(raw, ""); err != nil {
		return nil, err
	}

	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("invalid workflow YAML: %w", err)
	}

	if err := validateStructure(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// scanForbidden walks the raw YAML tree (before struct binding, so no
// field tag can accidentally swallow a forbidden key) looking for any
// key naming a parallel/branching/looping construct.
func scanForbidden(node any, path string) error {
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			for _, forbidden := range forbiddenConstructKeys {
				if key == forbidden {
					return fmt.Errorf("%w: %q at %s", ErrForbiddenConstruct, key, pathOrRoot(path))
				}
			}
			if err := scanForbidden(val, path+"."+key); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range v {
			if err := scanForbidden(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}

// validateStructure enforces the non-structural invariants spec.md §3
// lists for a Workflow: unique IDs, a non-empty step list, known agent
// kinds, and distinct step IDs (referenced by the execution context and
// the condition evaluator).
func validateStructure(wf *Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow: missing required field 'id'")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("workflow: must declare at least one step")
	}

	seen := make(map[string]bool, len(wf.Steps))
	for i, step := range wf.Steps {
		if step.ID == "" {
			return fmt.Errorf("workflow: step %d: missing required field 'id'", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("workflow: duplicate step id %q", step.ID)
		}
		seen[step.ID] = true

		if !validAgentKind(step.Agent) {
			return fmt.Errorf("workflow: step %q: unknown agent kind %q", step.ID, step.Agent)
		}
		if step.OnError == "" {
			wf.Steps[i].OnError = OnErrorFail
		}
	}
	return nil
}

func validAgentKind(k AgentKind) bool {
	switch k {
	case AgentLLM, AgentFilesystem, AgentHTTP, AgentToolExecutor, AgentWebhook, AgentDatabase:
		return true
	default:
		return false
	}
}
