// Package workflow implements the sequential AI-agent workflow engine:
// parsing, condition evaluation, templating, output extraction,
// kill-switches, retries, agent dispatch, and the step/run lifecycle
// (spec.md §4.6-4.9).
package workflow

import "time"

// AgentKind is the tagged-variant discriminator workflow steps dispatch
// on. Go has no inheritance, so AgentKind + the Agent interface stand in
// for the original's class hierarchy (spec.md §9 "Design Notes").
type AgentKind string

const (
	AgentLLM          AgentKind = "llm"
	AgentFilesystem   AgentKind = "filesystem"
	AgentHTTP         AgentKind = "http"
	AgentToolExecutor AgentKind = "tool_executor"
	AgentWebhook      AgentKind = "webhook"
	AgentDatabase     AgentKind = "database"
)

// Workflow is one parsed, validated workflow file (spec.md §3 "Workflow").
type Workflow struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Steps       []Step         `yaml:"steps"`
	Budget      *BudgetConfig  `yaml:"budget,omitempty"`
	sourcePath  string
}

// SourcePath returns the file the workflow was parsed from, for error
// messages and audit metadata.
func (w *Workflow) SourcePath() string { return w.sourcePath }

// BudgetConfig overrides the cage's default cost/loop limits for one
// workflow (spec.md §4.8).
type BudgetConfig struct {
	MaxTokensPerCall  int     `yaml:"max_tokens_per_call,omitempty"`
	BudgetLimitUSD    float64 `yaml:"budget_limit_usd,omitempty"`
	MaxSteps          int     `yaml:"max_steps,omitempty"`
	MaxDurationSeconds int    `yaml:"max_duration_seconds,omitempty"`
}

// Step is one node in the sequential chain (spec.md §3 "Step"). Steps
// always execute in file order — parallel/branching execution is a
// Non-goal (spec.md §1).
//
// Config and Parameters are deliberately separate maps, not one
// conflated bag: Config carries the agent's operating knobs (credentials,
// timeouts, allowed_paths) and is resolved with env-var substitution;
// Parameters carries the per-call arguments (prompt, path, content) and
// is resolved with template substitution plus output-path remapping
// (spec.md §4.9 step 4).
type Step struct {
	ID         string         `yaml:"id"`
	Agent      AgentKind      `yaml:"agent"`
	Action     string         `yaml:"action,omitempty"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Config     map[string]any `yaml:"config,omitempty"`
	Condition  string         `yaml:"condition,omitempty"`
	Retry      *RetryOverride `yaml:"retry,omitempty"`
	OnError    OnErrorPolicy  `yaml:"on_error,omitempty"`
}

// RetryOverride lets a step narrow (never widen) the agent kind's retry
// policy table (spec.md §4.9).
type RetryOverride struct {
	MaxAttempts int `yaml:"max_attempts,omitempty"`
}

// OnErrorPolicy controls whether a failed step stops the run.
type OnErrorPolicy string

const (
	OnErrorFail     OnErrorPolicy = "fail"     // default: stop the workflow
	OnErrorContinue OnErrorPolicy = "continue" // record the failure, advance anyway
)

// StepStatus classifies a completed step (spec.md §4.9 "Step result
// classification").
type StepStatus string

const (
	StepSuccess           StepStatus = "success"
	StepError             StepStatus = "error"
	StepSecurityViolation StepStatus = "security_violation"
	StepSkipped           StepStatus = "skipped" // condition evaluated false
)

// StepResult is what the engine records and feeds into the execution
// context after a step runs.
type StepResult struct {
	StepID    string
	Status    StepStatus
	Output    any
	Err       error
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
}

// RunStatus classifies the whole workflow run.
type RunStatus string

const (
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted" // kill-switch or interrupt
)

// RunResult is the terminal summary written to
// data/output/run_<id>/output.json (spec.md §6).
type RunResult struct {
	WorkflowID string       `json:"workflow_id"`
	RunID      string       `json:"run_id"`
	Status     RunStatus    `json:"status"`
	Steps      []StepResult `json:"-"` // not serialized directly; see engine.go summarize
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Error      string       `json:"error,omitempty"`
}
