package workflow

import (
	"fmt"
	"sync"

	"github.com/akios/akios/pkg/value"
)

// ExecutionContext accumulates step outputs for the lifetime of one run.
// Keys follow spec.md §3's `step_{N}_result` convention, plus a
// `previous_output` alias refreshed after each step. It is Value-typed
// rather than `map[string]any` so templates and the condition evaluator
// see a closed, predictable type algebra (spec.md §9 "Design Notes").
type ExecutionContext struct {
	mu     sync.RWMutex
	values map[string]value.Value
}

// NewExecutionContext returns an empty context seeded with run metadata.
func NewExecutionContext(workflowID, runID string) *ExecutionContext {
	ec := &ExecutionContext{values: make(map[string]value.Value)}
	ec.set("workflow_id", value.String(workflowID))
	ec.set("run_id", value.String(runID))
	return ec
}

// RunID returns the run identifier this context was seeded with, for
// output-path remapping (spec.md §4.7).
func (ec *ExecutionContext) RunID() string {
	v, _ := ec.Get("run_id")
	return v.Stringify()
}

// Get looks up a key (dotted paths are resolved by the caller via
// value.Value.Get/Index; this is the top-level lookup only).
func (ec *ExecutionContext) Get(key string) (value.Value, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.values[key]
	return v, ok
}

// All returns a shallow copy of every bound key. The template renderer
// and the condition evaluator do not use it; they resolve keys via Get.
func (ec *ExecutionContext) All() map[string]value.Value {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]value.Value, len(ec.values))
	for k, v := range ec.values {
		out[k] = v
	}
	return out
}

// set is the unexported, lock-held write primitive shared by the
// write-once setters below.
func (ec *ExecutionContext) set(key string, v value.Value) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.values[key] = v
}

// RecordStepOutput binds a completed step's raw result (1-based index,
// per spec.md §3/§4.9 step 4: "stash result in context under
// step_{N}_result") under both `step_{N}_result` and `step_{N}_output`
// (and the step-ID-keyed equivalents) — §4.8 names the condition
// evaluator's variables `step_{N}_output`, and a condition must be able
// to subscript into the real result, e.g.
// `step_1_output['status'] == 'success'`, so both names are aliases of
// the same raw value rather than one holding a flattened string. The
// template renderer's `{previous_output}`/`{step_K_output}` placeholders
// run this same raw value through the Output Extractor at substitution
// time (template.go); the context itself never stores a pre-extracted
// copy. `previous_output` aliases the raw result too.
//
// Each step's keys are write-once: a step ID is only ever written by the
// step that produced it, since steps execute strictly in order and
// never repeat (sequential-only execution is structurally guaranteed by
// the engine, not re-checked here).
func (ec *ExecutionContext) RecordStepOutput(stepIndex int, stepID string, raw any) {
	v := value.FromAny(raw)

	ec.set(fmt.Sprintf("step_%d_result", stepIndex), v)
	ec.set(fmt.Sprintf("step_%d_output", stepIndex), v)
	if stepID != "" {
		ec.set(fmt.Sprintf("step_%s_result", stepID), v)
		ec.set(fmt.Sprintf("step_%s_output", stepID), v)
	}
	ec.set("previous_output", v)
}
