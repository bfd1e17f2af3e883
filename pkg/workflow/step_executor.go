package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/pii"
	"github.com/akios/akios/pkg/sandbox"
)

// securityViolationKeywords reclassifies an otherwise-generic agent
// error as StepSecurityViolation when its message names one of the
// cage's violation patterns (spec.md §7 "Security-violation
// recognition") — an agent can return a plain error for a sandbox or
// allowlist rejection without that rejection being misfiled as an
// ordinary failure. A security violation is always fatal, overriding
// on_error (see Engine.Run).
var securityViolationKeywords = []string{
	"quota", "limit", "security", "not in allowed list", "not in allowlist",
	"command blocked", "access denied", "permission denied", "unauthorized",
	"forbidden domain", "sandbox violation", "syscall blocked",
	"network access denied", "cage violation",
}

// StepExecutor resolves a step's config, validates it against the
// agent's cage policy, executes it with the agent kind's retry policy,
// classifies the result, and writes the corresponding audit event
// (spec.md §4.9 "Step Executor").
type StepExecutor struct {
	registry   *Registry
	ledger     *audit.Ledger
	redactor   *pii.Redactor // nil disables redaction entirely
	cageActive bool          // true once cage up has run; makes a failed seccomp install fatal
	logger     *slog.Logger
}

func NewStepExecutor(registry *Registry, ledger *audit.Ledger, logger *slog.Logger) *StepExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{registry: registry, ledger: ledger, logger: logger}
}

// WithRedactor attaches a PII redactor (spec.md §4.2 Component C). Run
// applies it to the extracted output string reported in
// StepResult.Output and to the error text a failed execution writes to
// the audit trail. The raw result that RecordStepOutput binds into the
// execution context is not redacted.
// A nil redactor (the default) leaves output untouched.
func (se *StepExecutor) WithRedactor(r *pii.Redactor) *StepExecutor {
	se.redactor = r
	return se
}

func (se *StepExecutor) redact(text string) string {
	if se.redactor == nil {
		return text
	}
	return se.redactor.Redact(text, true)
}

// WithCageActive records whether the cage is in its ACTIVE posture. Run
// passes it to sandbox.ApplyPolicy, which installs the per-agent-kind
// seccomp-bpf filter (spec.md §4.5, Component G) before dispatch in
// either posture; under an ACTIVE cage a failed install on Linux+root
// makes the step a StepSecurityViolation, otherwise a failed install
// degrades to policy-based mode.
func (se *StepExecutor) WithCageActive(active bool) *StepExecutor {
	se.cageActive = active
	return se
}

// Run executes one step: condition check, config resolution, validation,
// retried execution, classification, and audit.
func (se *StepExecutor) Run(ctx context.Context, wf *Workflow, stepIndex int, step Step, ec *ExecutionContext, ks *KillSwitch) StepResult {
	log := se.logger.With("workflow_id", wf.ID, "step_id", step.ID, "agent", string(step.Agent))
	result := StepResult{StepID: step.ID, StartedAt: time.Now()}

	shouldRun, err := EvaluateCondition(step.Condition, ec)
	if err != nil {
		result.Status = StepError
		result.Err = err
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": err.Error(), "phase": "condition"})
		return result
	}
	if !shouldRun {
		result.Status = StepSkipped
		result.EndedAt = time.Now()
		log.Info("workflow: step skipped", "cage_state", "n/a")
		se.audit(wf.ID, stepIndex, step, audit.ResultSuccess, map[string]any{"skipped": true})
		return result
	}

	agent, ok := se.registry.Lookup(step.Agent)
	if !ok {
		result.Status = StepError
		result.Err = fmt.Errorf("workflow: no agent registered for kind %q", step.Agent)
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": result.Err.Error(), "phase": "dispatch"})
		return result
	}

	cfg, err := ResolveEnvVars(step.Config)
	if err != nil {
		result.Status = StepError
		result.Err = err
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": err.Error(), "phase": "config"})
		return result
	}

	params, err := resolveParameters(step.Parameters, ec)
	if err != nil {
		result.Status = StepError
		result.Err = err
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": err.Error(), "phase": "parameters"})
		return result
	}

	// Config (credentials, allowed_paths, timeouts) and Parameters (prompt,
	// path, content) are resolved with different substitution rules, but
	// the Agent interface takes a single map — merge after resolution, with
	// call metadata (spec.md §4.9 step 4: "inject {workflow_id, step,
	// workflow_name} metadata") added last so a workflow file can't shadow it.
	args := make(map[string]any, len(cfg)+len(params)+3)
	for k, v := range cfg {
		args[k] = v
	}
	for k, v := range params {
		args[k] = v
	}
	args["workflow_id"] = wf.ID
	args["workflow_name"] = wf.Name
	args["step"] = step.ID

	if err := agent.Validate(args); err != nil {
		result.Status = classifyError(err)
		result.Err = err
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, auditResultFor(result.Status), map[string]any{"error": err.Error(), "phase": "validate"})
		return result
	}

	if _, polErr := sandbox.ApplyPolicy(sandbox.AgentKind(step.Agent), se.cageActive, se.logger); polErr != nil {
		result.Status = StepSecurityViolation
		result.Err = polErr
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultWarning, map[string]any{"error": polErr.Error(), "phase": "sandbox"})
		return result
	}

	policy := PolicyFor(step.Agent, step.Retry)
	var lastErr error
	var output any
	attemptsMade := 0

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(policy.DelayFor(attempt - 1))
			log.Warn("workflow: retrying step", "attempt", attempt, "max_attempts", policy.MaxAttempts)
		}
		attemptsMade = attempt
		output, lastErr = agent.Execute(ctx, args, ec)
		if lastErr == nil {
			break
		}
	}
	result.Attempts = attemptsMade

	if kErr := ks.RecordStep(); kErr != nil {
		result.Status = StepError
		result.Err = kErr
		result.EndedAt = time.Now()
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": kErr.Error(), "phase": "killswitch"})
		return result
	}

	result.EndedAt = time.Now()

	if lastErr != nil {
		result.Status = classifyError(lastErr)
		result.Err = lastErr
		se.audit(wf.ID, stepIndex, step, auditResultFor(result.Status), map[string]any{"error": se.redact(lastErr.Error()), "attempts": result.Attempts})
		log.Error("workflow: step failed", "error", lastErr, "attempts", result.Attempts)
		return result
	}

	// Cost is extracted and checked against the budget kill-switch before
	// the step is recorded as successful (spec.md §4.6): a call that blew
	// the budget must not be silently absorbed into a success result.
	costEvent := ExtractCostEvent(step.ID, output)
	if kErr := ks.RecordCost(costEvent); kErr != nil {
		result.Status = StepError
		result.Err = kErr
		se.audit(wf.ID, stepIndex, step, audit.ResultError, map[string]any{"error": kErr.Error(), "phase": "killswitch", "cost_usd": costEvent.CostUSD})
		log.Error("workflow: step exceeded cost budget", "error", kErr)
		return result
	}

	ec.RecordStepOutput(stepIndex, step.ID, output)
	extracted := se.redact(ExtractOutput(output))
	result.Status = StepSuccess
	result.Output = extracted
	se.audit(wf.ID, stepIndex, step, audit.ResultSuccess, map[string]any{"attempts": result.Attempts, "cost_usd": costEvent.CostUSD})
	log.Info("workflow: step completed", "attempts", result.Attempts)
	return result
}

// audit appends one event using the step's declared action (spec.md §3's
// `action` field, e.g. "generate"/"read"/"post") rather than its ID, so the
// ledger records what the step DID, not just which node produced it. A step
// with no action falls back to its agent kind.
func (se *StepExecutor) audit(workflowID string, stepIndex int, step Step, result audit.Result, metadata map[string]any) {
	if se.ledger == nil {
		return
	}
	action := step.Action
	if action == "" {
		action = string(step.Agent)
	}
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["step_id"] = step.ID
	if _, err := se.ledger.Append(workflowID, stepIndex, string(step.Agent), action, result, meta); err != nil {
		se.logger.Error("workflow: audit append failed", "error", err, "workflow_id", workflowID, "step_id", step.ID)
	}
}

// classifyError reclassifies an agent error as StepSecurityViolation
// when its message names a sandbox/allowlist rejection, else StepError.
func classifyError(err error) StepStatus {
	msg := strings.ToLower(err.Error())
	for _, kw := range securityViolationKeywords {
		if strings.Contains(msg, kw) {
			return StepSecurityViolation
		}
	}
	return StepError
}

func auditResultFor(status StepStatus) audit.Result {
	if status == StepSecurityViolation {
		return audit.ResultWarning
	}
	return audit.ResultError
}

// resolveParameters renders every string value in a step's parameters map
// through the template renderer (context substitution + output-path
// remapping for any `output_path` field), leaving non-string values
// untouched. An unresolvable placeholder aborts the step before the agent
// is ever invoked (spec.md §4.7).
func resolveParameters(params map[string]any, ec *ExecutionContext) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		rendered, err := RenderTemplate(s, ec)
		if err != nil {
			return nil, fmt.Errorf("workflow: parameter %q: %w", k, err)
		}
		if k == "output_path" {
			rendered = RemapOutputPath(ec.RunID(), rendered)
		}
		out[k] = rendered
	}
	return out, nil
}
