package workflow

import (
	"testing"

	"github.com/akios/akios/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *ExecutionContext {
	ec := NewExecutionContext("wf", "run-1")
	ec.RecordStepOutput(1, "step-a", "ok")
	return ec
}

func TestEvaluateConditionEmptyIsTrue(t *testing.T) {
	ok, err := EvaluateCondition("", newTestContext())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateConditionStringEquality(t *testing.T) {
	ec := newTestContext()
	ok, err := EvaluateCondition(`step_1_result == "ok"`, ec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateConditionBooleanAndOr(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.set("a", value.Bool(true))
	ec.set("b", value.Bool(false))

	ok, err := EvaluateCondition("a && !b", ec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition("a || b", ec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateConditionNumericComparison(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.set("count", value.Int(5))

	ok, err := EvaluateCondition("count >= 3", ec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition("count < 3", ec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateConditionRejectsFunctionCall(t *testing.T) {
	_, err := EvaluateCondition(`len(step_1_result) > 0`, newTestContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenConstruct)
}

func TestEvaluateConditionSubscriptsRawResultMap(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.RecordStepOutput(1, "step-a", map[string]any{"status": "success"})

	ok, err := EvaluateCondition(`step_1_output['status'] == 'success'`, ec)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition(`step_1_result['status'] == 'failure'`, ec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateConditionSubscriptsListByIndex(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.set("items", value.List([]value.Value{value.String("first"), value.String("second")}))

	ok, err := EvaluateCondition(`items[1] == 'second'`, ec)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateConditionRejectsTooLong(t *testing.T) {
	long := make([]byte, maxConditionChars+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EvaluateCondition(string(long), newTestContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenConstruct)
}

func TestEvaluateConditionMissingVariableIsNullNotError(t *testing.T) {
	ok, err := EvaluateCondition(`missing_key == "x"`, newTestContext())
	require.NoError(t, err)
	assert.False(t, ok)
}
