package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillSwitchCheckCallRejectsOversizedRequest(t *testing.T) {
	ks := NewKillSwitch(5.0, 1000, 10, time.Minute)
	err := ks.CheckCall(2000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCostExceeded)
}

func TestKillSwitchRecordCostExceedsBudget(t *testing.T) {
	ks := NewKillSwitch(1.0, 1000, 10, time.Minute)
	require.NoError(t, ks.RecordCost(CostEvent{CostUSD: 0.5}))
	err := ks.RecordCost(CostEvent{CostUSD: 0.6})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCostExceeded)
}

func TestKillSwitchRecordStepExceedsMaxSteps(t *testing.T) {
	ks := NewKillSwitch(100, 1000, 2, time.Hour)
	require.NoError(t, ks.RecordStep())
	require.NoError(t, ks.RecordStep())
	err := ks.RecordStep()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopExceeded)
}

func TestKillSwitchRecordStepExceedsDuration(t *testing.T) {
	ks := NewKillSwitch(100, 1000, 1000, 1*time.Nanosecond)
	time.Sleep(time.Millisecond)
	err := ks.RecordStep()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopExceeded)
}

func TestEstimateSplitUsesThirtySeventySplit(t *testing.T) {
	ev := NewCostEventFromTotal("step-a", 1000, 0.01)
	assert.True(t, ev.TokensEstimated)
	assert.Equal(t, 300, ev.TokensIn)
	assert.Equal(t, 700, ev.TokensOut)
}

func TestKillSwitchExceededReflectsPriorRecordCost(t *testing.T) {
	ks := NewKillSwitch(1.0, 1000, 10, time.Minute)
	require.NoError(t, ks.Exceeded())
	require.Error(t, ks.RecordCost(CostEvent{CostUSD: 1.5}))
	err := ks.Exceeded()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCostExceeded)
}

func TestKillSwitchExceededReflectsPriorRecordStep(t *testing.T) {
	ks := NewKillSwitch(100, 1000, 1, time.Hour)
	require.NoError(t, ks.Exceeded())
	require.NoError(t, ks.RecordStep())
	err := ks.Exceeded()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoopExceeded)
}

func TestKillSwitchExceededDoesNotMutateState(t *testing.T) {
	ks := NewKillSwitch(100, 1000, 1, time.Hour)
	require.NoError(t, ks.Exceeded())
	require.NoError(t, ks.Exceeded())
	// Exceeded must not itself advance the step counter.
	require.NoError(t, ks.RecordStep())
}

func TestExtractCostEventPrefersExplicitPromptCompletionFields(t *testing.T) {
	ev := ExtractCostEvent("step-a", map[string]any{
		"prompt_tokens": 120, "completion_tokens": 80, "total_cost_usd": 0.02,
	})
	assert.Equal(t, 120, ev.TokensIn)
	assert.Equal(t, 80, ev.TokensOut)
	assert.False(t, ev.TokensEstimated)
	assert.Equal(t, 0.02, ev.CostUSD)
}

func TestExtractCostEventFallsBackToNestedUsageObject(t *testing.T) {
	ev := ExtractCostEvent("step-a", map[string]any{
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20},
	})
	assert.Equal(t, 10, ev.TokensIn)
	assert.Equal(t, 20, ev.TokensOut)
}

func TestExtractCostEventFallsBackToEstimatedSplitFromTotalTokens(t *testing.T) {
	ev := ExtractCostEvent("step-a", map[string]any{"total_tokens": 100, "total_cost": 0.05})
	assert.True(t, ev.TokensEstimated)
	assert.Equal(t, 30, ev.TokensIn)
	assert.Equal(t, 70, ev.TokensOut)
	assert.Equal(t, 0.05, ev.CostUSD)
}

func TestExtractCostEventZeroCostWhenNoUsageFields(t *testing.T) {
	ev := ExtractCostEvent("step-a", map[string]any{"path": "/tmp/x", "bytes": 4})
	assert.Equal(t, 0, ev.TokensIn)
	assert.Equal(t, 0, ev.TokensOut)
	assert.Equal(t, 0.0, ev.CostUSD)
}

func TestExtractCostEventNonMapResultYieldsEmptyEvent(t *testing.T) {
	ev := ExtractCostEvent("step-a", "just a string")
	assert.Equal(t, CostEvent{Step: "step-a"}, ev)
}
