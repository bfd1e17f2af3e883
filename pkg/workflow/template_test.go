package workflow

import (
	"os"
	"testing"

	"github.com/akios/akios/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplateSubstitutesPreviousOutput(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.RecordStepOutput(1, "fetch", "hello world")

	out, err := RenderTemplate("result was: {previous_output}", ec)
	require.NoError(t, err)
	assert.Equal(t, "result was: hello world", out)
}

func TestRenderTemplateSubstitutesStepKOutputThroughExtractor(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.RecordStepOutput(1, "fetch", map[string]any{"text": "extracted"})

	out, err := RenderTemplate("{step_1_output}", ec)
	require.NoError(t, err)
	assert.Equal(t, "extracted", out)
}

func TestRenderTemplateSubstitutesNestedField(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	ec.set("response", value.Map(map[string]value.Value{
		"summary": value.String("done"),
	}))

	out, err := RenderTemplate("{response.summary}", ec)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestRenderTemplateAbortsOnUnresolvedPlaceholder(t *testing.T) {
	ec := NewExecutionContext("wf", "run-1")
	_, err := RenderTemplate("{nonexistent}", ec)
	require.Error(t, err)
}

func TestResolveEnvVarsSubstitutesSetVariable(t *testing.T) {
	t.Setenv("AKIOS_TEST_TOKEN", "secret-value")
	out, err := ResolveEnvVars(map[string]any{"token": "${AKIOS_TEST_TOKEN}", "other": 5})
	require.NoError(t, err)
	assert.Equal(t, "secret-value", out["token"])
	assert.Equal(t, 5, out["other"])
}

func TestResolveEnvVarsAbortsOnMissingVariable(t *testing.T) {
	os.Unsetenv("AKIOS_TEST_MISSING")
	_, err := ResolveEnvVars(map[string]any{"token": "${AKIOS_TEST_MISSING}"})
	require.Error(t, err)
}

func TestResolveEnvVarsSkipsAPIKeyField(t *testing.T) {
	out, err := ResolveEnvVars(map[string]any{"api_key": "${UNSET_VAR}"})
	require.NoError(t, err)
	assert.Equal(t, "${UNSET_VAR}", out["api_key"])
}

func TestRemapOutputPathStripsTraversal(t *testing.T) {
	got := RemapOutputPath("run-42", "../../etc/passwd")
	assert.Equal(t, "data/output/run_run-42/passwd", got)
}

func TestRemapOutputPathStripsAbsolute(t *testing.T) {
	got := RemapOutputPath("run-42", "/etc/shadow")
	assert.Equal(t, "data/output/run_run-42/shadow", got)
}
