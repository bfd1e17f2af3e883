package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/akios/akios/pkg/value"
)

// ErrCostExceeded and ErrLoopExceeded are the kill-switch sentinels
// spec.md §7's error table classifies as BudgetExceeded/LoopExceeded.
var (
	ErrCostExceeded = fmt.Errorf("workflow: cost budget exceeded")
	ErrLoopExceeded = fmt.Errorf("workflow: step/time budget exceeded")
)

// CostEvent records one agent call's token usage for the cost
// kill-switch. TokensEstimated is set when the provider response didn't
// carry an exact usage count and the 30/70 split heuristic
// (spec.md §4.8) was used instead.
type CostEvent struct {
	Step            string
	TokensIn        int
	TokensOut       int
	TokensEstimated bool
	CostUSD         float64
}

// estimateSplit applies the 30/70 input/output token-split heuristic
// (spec.md §4.8, resolved in DESIGN.md) when a provider reports only a
// total token count.
func estimateSplit(totalTokens int) (in, out int) {
	in = totalTokens * 30 / 100
	out = totalTokens - in
	return in, out
}

// NewCostEventFromTotal builds a CostEvent from a provider that reports
// only a combined token count, via the 30/70 split.
func NewCostEventFromTotal(step string, totalTokens int, costUSD float64) CostEvent {
	in, out := estimateSplit(totalTokens)
	return CostEvent{Step: step, TokensIn: in, TokensOut: out, TokensEstimated: true, CostUSD: costUSD}
}

// KillSwitch tracks cumulative cost and step/time budgets for one run
// and reports ErrCostExceeded/ErrLoopExceeded once a limit is crossed.
// It holds no reference to the engine or ledger; the caller decides what
// to do with the error (spec.md §9 "explicit handles").
type KillSwitch struct {
	mu sync.Mutex

	budgetUSD        float64
	maxTokensPerCall int
	maxSteps         int
	maxDuration      time.Duration

	spentUSD  float64
	stepCount int
	startedAt time.Time
}

// NewKillSwitch builds a kill-switch from the effective budget (workflow
// BudgetConfig overriding config.yaml's KillSwitchConfig defaults).
func NewKillSwitch(budgetUSD float64, maxTokensPerCall, maxSteps int, maxDuration time.Duration) *KillSwitch {
	return &KillSwitch{
		budgetUSD:        budgetUSD,
		maxTokensPerCall: maxTokensPerCall,
		maxSteps:         maxSteps,
		maxDuration:      maxDuration,
		startedAt:        time.Now(),
	}
}

// CheckCall validates a single call's requested token count against the
// per-call ceiling before the call is made.
func (k *KillSwitch) CheckCall(requestedTokens int) error {
	if k.maxTokensPerCall > 0 && requestedTokens > k.maxTokensPerCall {
		return fmt.Errorf("%w: requested %d tokens exceeds per-call limit %d", ErrCostExceeded, requestedTokens, k.maxTokensPerCall)
	}
	return nil
}

// RecordCost accumulates a completed call's cost and returns
// ErrCostExceeded if the run's cumulative budget is now exhausted.
func (k *KillSwitch) RecordCost(ev CostEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.spentUSD += ev.CostUSD
	if k.budgetUSD > 0 && k.spentUSD > k.budgetUSD {
		return fmt.Errorf("%w: spent $%.4f of $%.4f budget", ErrCostExceeded, k.spentUSD, k.budgetUSD)
	}
	return nil
}

// RecordStep increments the step counter and checks both the step-count
// and wall-clock ceilings (spec.md §4.8 "loop kill-switch").
func (k *KillSwitch) RecordStep() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stepCount++
	if k.maxSteps > 0 && k.stepCount > k.maxSteps {
		return fmt.Errorf("%w: %d steps exceeds limit %d", ErrLoopExceeded, k.stepCount, k.maxSteps)
	}
	if k.maxDuration > 0 && time.Since(k.startedAt) > k.maxDuration {
		return fmt.Errorf("%w: run exceeded %s", ErrLoopExceeded, k.maxDuration)
	}
	return nil
}

// SpentUSD reports cumulative spend, for the engine's audit metadata.
func (k *KillSwitch) SpentUSD() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.spentUSD
}

// Exceeded reports whether a prior step already pushed the run over its
// cost or loop ceiling, without mutating any counter. The engine calls
// this before a step runs, so a kill triggered by step N's cost stops
// step N+1 from ever starting (spec.md §4.6/§4.9: both kill-switches are
// consulted before and after every step, not only after).
func (k *KillSwitch) Exceeded() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.budgetUSD > 0 && k.spentUSD > k.budgetUSD {
		return fmt.Errorf("%w: spent $%.4f of $%.4f budget", ErrCostExceeded, k.spentUSD, k.budgetUSD)
	}
	if k.maxSteps > 0 && k.stepCount >= k.maxSteps {
		return fmt.Errorf("%w: %d steps exceeds limit %d", ErrLoopExceeded, k.stepCount, k.maxSteps)
	}
	if k.maxDuration > 0 && time.Since(k.startedAt) > k.maxDuration {
		return fmt.Errorf("%w: run exceeded %s", ErrLoopExceeded, k.maxDuration)
	}
	return nil
}

// ExtractCostEvent derives a CostEvent from an agent's raw execution
// result, following spec.md §4.6's token-accounting preference order:
// explicit prompt_tokens/completion_tokens fields, then a nested
// usage.{prompt,completion}_tokens object, then a bare tokens_used or
// total_tokens count split 30/70 via the estimation heuristic. A result
// with none of these is not an error — agent kinds that don't spend
// budget (filesystem, database) simply report a zero-cost event.
func ExtractCostEvent(step string, raw any) CostEvent {
	m, ok := value.FromAny(raw).Map()
	if !ok {
		return CostEvent{Step: step}
	}

	cost := floatField(m, "total_cost")
	if cost == 0 {
		cost = floatField(m, "total_cost_usd")
	}

	if in, inOk := intField(m, "prompt_tokens"); inOk {
		out, _ := intField(m, "completion_tokens")
		return CostEvent{Step: step, TokensIn: in, TokensOut: out, CostUSD: cost}
	}

	if usageVal, ok := m["usage"]; ok {
		if usage, ok := usageVal.Map(); ok {
			in, inOk := intField(usage, "prompt_tokens")
			out, outOk := intField(usage, "completion_tokens")
			if inOk || outOk {
				return CostEvent{Step: step, TokensIn: in, TokensOut: out, CostUSD: cost}
			}
		}
	}

	if total, ok := intField(m, "tokens_used"); ok {
		return NewCostEventFromTotal(step, total, cost)
	}
	if total, ok := intField(m, "total_tokens"); ok {
		return NewCostEventFromTotal(step, total, cost)
	}

	return CostEvent{Step: step, CostUSD: cost}
}

func floatField(m map[string]value.Value, key string) float64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if f, ok := v.Float(); ok {
		return f
	}
	if i, ok := v.Int(); ok {
		return float64(i)
	}
	return 0
}

func intField(m map[string]value.Value, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	if i, ok := v.Int(); ok {
		return int(i), true
	}
	if f, ok := v.Float(); ok {
		return int(f), true
	}
	return 0, false
}
