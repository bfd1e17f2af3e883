package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/sandbox"
)

// Engine runs one workflow end to end (spec.md §4.9's 6-step lifecycle:
// parse → validate → initialize context → step loop → finalize →
// persist output).
type Engine struct {
	executor *StepExecutor
	ledger   *audit.Ledger
	logger   *slog.Logger
	outDir   string

	sandboxLimits  sandbox.ResourceLimits
	sandboxEnabled bool
}

func NewEngine(executor *StepExecutor, ledger *audit.Ledger, outDir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{executor: executor, ledger: ledger, logger: logger, outDir: outDir}
}

// WithResourceSandbox enables per-run cgroups v2 enforcement (spec.md
// §4.5, Component F) using the given limits. Disabled by default so
// tests and non-Linux development runs don't need cgroup write access.
func (e *Engine) WithResourceSandbox(limits sandbox.ResourceLimits) *Engine {
	e.sandboxLimits = limits
	e.sandboxEnabled = true
	return e
}

// Run executes wf under runID, returning the terminal RunResult. It
// never panics on a step failure — OnErrorPolicy and the kill-switch
// decide whether the loop continues, and the result's Status always
// reflects the outcome.
func (e *Engine) Run(ctx context.Context, wf *Workflow, runID string, ks *KillSwitch) (*RunResult, error) {
	log := e.logger.With("workflow_id", wf.ID, "run_id", runID)
	log.Info("workflow: run started")

	result := &RunResult{WorkflowID: wf.ID, RunID: runID, StartedAt: time.Now()}
	e.auditRunEvent(wf.ID, "workflow_start", audit.ResultSuccess, map[string]any{"run_id": runID, "step_count": len(wf.Steps)})

	if e.sandboxEnabled {
		rs := sandbox.NewResourceSandbox(wf.ID+"-"+runID, e.logger)
		if err := rs.EnforceLimits(e.sandboxLimits); err != nil {
			e.logger.Warn("workflow: resource sandbox enforcement failed", "error", err)
		}
		e.auditRunEvent(wf.ID, "sandbox_enforced", audit.ResultSuccess, map[string]any{"mode": string(rs.Mode())})
		defer rs.Cleanup()
	}

	ec := NewExecutionContext(wf.ID, runID)
	steps := make([]StepResult, 0, len(wf.Steps))

	for i, step := range wf.Steps {
		select {
		case <-ctx.Done():
			result.Status = RunAborted
			result.Error = ctx.Err().Error()
			result.EndedAt = time.Now()
			result.Steps = steps
			e.auditRunEvent(wf.ID, "workflow_failed", audit.ResultError, map[string]any{"reason": "interrupt"})
			e.writeOutput(wf, result)
			return result, ctx.Err()
		default:
		}

		// Both kill-switches are consulted before every step, not only
		// after (spec.md §4.6/§4.9) — a budget blown by step N must stop
		// step N+1 from ever starting.
		if kErr := ks.Exceeded(); kErr != nil {
			result.Status = RunAborted
			result.Error = kErr.Error()
			result.EndedAt = time.Now()
			result.Steps = steps
			e.auditRunEvent(wf.ID, "workflow_failed", audit.ResultError, map[string]any{"reason": kErr.Error()})
			e.writeOutput(wf, result)
			return result, kErr
		}

		stepResult := e.executor.Run(ctx, wf, i+1, step, ec, ks)
		steps = append(steps, stepResult)

		// A security violation is always fatal — on_error: continue
		// cannot paper over it (spec.md §7: "security failures cannot be
		// skipped"). An ordinary step error still honors on_error.
		if stepResult.Status == StepError && step.OnError == OnErrorContinue {
			log.Warn("workflow: step failed, continuing per on_error policy", "step_id", step.ID)
			continue
		}

		if stepResult.Status == StepError || stepResult.Status == StepSecurityViolation {
			result.Status = RunFailed
			if stepResult.Err != nil {
				result.Error = stepResult.Err.Error()
			}
			result.EndedAt = time.Now()
			result.Steps = steps
			e.auditRunEvent(wf.ID, "workflow_failed", audit.ResultError, map[string]any{"failed_step": step.ID, "error": result.Error})
			e.writeOutput(wf, result)
			return result, fmt.Errorf("workflow: step %q failed: %w", step.ID, stepResult.Err)
		}
	}

	result.Status = RunSuccess
	result.EndedAt = time.Now()
	result.Steps = steps
	e.auditRunEvent(wf.ID, "workflow_complete", audit.ResultSuccess, map[string]any{"run_id": runID, "steps_executed": len(steps)})
	e.writeOutput(wf, result)
	log.Info("workflow: run completed", "status", result.Status, "duration", result.EndedAt.Sub(result.StartedAt))
	return result, nil
}

func (e *Engine) auditRunEvent(workflowID, action string, result audit.Result, metadata map[string]any) {
	if e.ledger == nil {
		return
	}
	if _, err := e.ledger.Append(workflowID, 0, "engine", action, result, metadata); err != nil {
		e.logger.Error("workflow: audit append failed", "error", err, "action", action)
	}
}

// writeOutput persists the run summary to
// data/output/run_<id>/output.json (spec.md §6). Failure to write the
// summary is logged but never promoted to a run failure — the audit
// ledger is the authoritative record.
func (e *Engine) writeOutput(wf *Workflow, result *RunResult) {
	dir := filepath.Join(e.outDir, "run_"+result.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Error("workflow: creating output directory failed", "error", err, "dir", dir)
		return
	}

	summary := summarize(result)
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		e.logger.Error("workflow: marshaling output summary failed", "error", err)
		return
	}

	path := filepath.Join(dir, "output.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.logger.Error("workflow: writing output summary failed", "error", err, "path", path)
	}
}

// stepSummary is the serialized shape of a StepResult within
// output.json — StepResult itself carries an `error` (non-serializable
// across all Go error types) so it is not marshaled directly.
type stepSummary struct {
	StepID   string `json:"step_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

type runSummary struct {
	RunResult
	Steps []stepSummary `json:"steps"`
}

func summarize(result *RunResult) runSummary {
	steps := make([]stepSummary, len(result.Steps))
	for i, s := range result.Steps {
		ss := stepSummary{StepID: s.StepID, Status: string(s.Status), Attempts: s.Attempts}
		if s.Err != nil {
			ss.Error = s.Err.Error()
		}
		steps[i] = ss
	}
	return runSummary{RunResult: *result, Steps: steps}
}
