package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/pii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	kind    AgentKind
	fail    int // number of times Execute fails before succeeding
	calls   int
	lastErr error
	output  any
}

func (f *fakeAgent) Kind() AgentKind { return f.kind }

func (f *fakeAgent) Validate(cfg map[string]any) error {
	if v, ok := cfg["forbidden"]; ok && v == true {
		return errors.New("forbidden domain: blocked by allowlist")
	}
	return nil
}

func (f *fakeAgent) Execute(ctx context.Context, cfg map[string]any, ec *ExecutionContext) (any, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("transient failure")
	}
	if f.output != nil {
		return f.output, nil
	}
	return map[string]any{"text": "done"}, nil
}

func newTestLedger(t *testing.T) *audit.Ledger {
	t.Helper()
	l, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestEngineRunSuccess(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM})

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	engine := NewEngine(executor, ledger, t.TempDir(), nil)

	wf, err := Parse([]byte(`
id: wf-ok
steps:
  - id: step-a
    agent: llm
`))
	require.NoError(t, err)

	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result, err := engine.Run(context.Background(), wf, "run-1", ks)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Status)
	assert.Len(t, result.Steps, 1)
	assert.Equal(t, StepSuccess, result.Steps[0].Status)
}

func TestEngineRunFailsFastOnStepError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM, fail: 99})

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	engine := NewEngine(executor, ledger, t.TempDir(), nil)

	wf, err := Parse([]byte(`
id: wf-fail
steps:
  - id: step-a
    agent: llm
  - id: step-b
    agent: http
`))
	require.NoError(t, err)
	reg.Register(&fakeAgent{kind: AgentHTTP})

	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result, err := engine.Run(context.Background(), wf, "run-2", ks)
	require.Error(t, err)
	assert.Equal(t, RunFailed, result.Status)
	assert.Len(t, result.Steps, 1, "second step must never run after fail-fast")
}

func TestEngineRunContinuesOnErrorPolicy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM, fail: 99})
	reg.Register(&fakeAgent{kind: AgentHTTP})

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	engine := NewEngine(executor, ledger, t.TempDir(), nil)

	wf, err := Parse([]byte(`
id: wf-continue
steps:
  - id: step-a
    agent: llm
    on_error: continue
  - id: step-b
    agent: http
`))
	require.NoError(t, err)

	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result, err := engine.Run(context.Background(), wf, "run-3", ks)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, result.Status)
	assert.Len(t, result.Steps, 2)
}

func TestEngineWritesOutputSummary(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM})

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	outDir := t.TempDir()
	engine := NewEngine(executor, ledger, outDir, nil)

	wf, err := Parse([]byte(`
id: wf-output
steps:
  - id: step-a
    agent: llm
`))
	require.NoError(t, err)

	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	_, err = engine.Run(context.Background(), wf, "run-4", ks)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "run_run-4", "output.json"))
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "success", parsed["status"])
}

func TestStepExecutorReclassifiesSecurityViolation(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentHTTP})

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)

	wf, err := Parse([]byte(`
id: wf-sec
steps:
  - id: step-a
    agent: http
    config:
      forbidden: true
`))
	require.NoError(t, err)

	ec := NewExecutionContext(wf.ID, "run-5")
	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result := executor.Run(context.Background(), wf, 1, wf.Steps[0], ec, ks)
	assert.Equal(t, StepSecurityViolation, result.Status)
}

func TestEngineRunAbortsBeforeStepWhenBudgetAlreadyExceeded(t *testing.T) {
	httpAgent := &fakeAgent{kind: AgentHTTP}
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM, output: map[string]any{"total_cost_usd": 5.0}})
	reg.Register(httpAgent)

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	engine := NewEngine(executor, ledger, t.TempDir(), nil)

	wf, err := Parse([]byte(`
id: wf-budget
steps:
  - id: step-a
    agent: llm
    on_error: continue
  - id: step-b
    agent: http
`))
	require.NoError(t, err)

	ks := NewKillSwitch(1.0, 10000, 10, time.Minute)
	result, err := engine.Run(context.Background(), wf, "run-budget", ks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCostExceeded)
	assert.Equal(t, RunAborted, result.Status)
	assert.Len(t, result.Steps, 1, "the pre-step budget check must stop step-b from ever starting")
	assert.Equal(t, 0, httpAgent.calls, "step-b's agent must never execute once the budget is blown")
}

func TestEngineRunSecurityViolationCannotBeSkippedByOnErrorContinue(t *testing.T) {
	httpAgent := &fakeAgent{kind: AgentHTTP}
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM})
	reg.Register(httpAgent)

	ledger := newTestLedger(t)
	executor := NewStepExecutor(reg, ledger, nil)
	engine := NewEngine(executor, ledger, t.TempDir(), nil)

	wf, err := Parse([]byte(`
id: wf-sec-continue
steps:
  - id: step-a
    agent: llm
    on_error: continue
    config:
      forbidden: true
  - id: step-b
    agent: http
`))
	require.NoError(t, err)

	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result, err := engine.Run(context.Background(), wf, "run-sec-continue", ks)
	require.Error(t, err)
	assert.Equal(t, RunFailed, result.Status)
	assert.Equal(t, StepSecurityViolation, result.Steps[0].Status)
	assert.Len(t, result.Steps, 1, "a security violation must fail the run even under on_error: continue")
	assert.Equal(t, 0, httpAgent.calls)
}

func TestStepExecutorRedactsOutputBeforeStoring(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeAgent{kind: AgentLLM, output: map[string]any{"text": "contact me at jane@example.com"}})

	ledger := newTestLedger(t)
	detector := pii.NewDetector(pii.DefaultRulePack())
	redactor := pii.NewRedactor(detector, pii.StrategyMask)
	executor := NewStepExecutor(reg, ledger, nil).WithRedactor(redactor)

	wf, err := Parse([]byte(`
id: wf-redact
steps:
  - id: step-a
    agent: llm
`))
	require.NoError(t, err)

	ec := NewExecutionContext(wf.ID, "run-6")
	ks := NewKillSwitch(100, 10000, 10, time.Minute)
	result := executor.Run(context.Background(), wf, 0, wf.Steps[0], ec, ks)

	require.Equal(t, StepSuccess, result.Status)
	assert.NotContains(t, result.Output, "jane@example.com")
}
