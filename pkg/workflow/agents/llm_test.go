package agents

import (
	"context"
	"testing"

	"github.com/akios/akios/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	text  string
	total int
	err   error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, int, error) {
	if p.err != nil {
		return "", 0, p.err
	}
	return p.text, p.total, nil
}

func TestLLMAgentValidateRejectsUnknownProvider(t *testing.T) {
	a := NewLLMAgent([]LLMProvider{&fakeProvider{name: "anthropic"}}, nil, nil)
	err := a.Validate(map[string]any{"provider": "openai", "model": "claude", "prompt": "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowlist")
}

func TestLLMAgentValidateRejectsModelOutsideCatalog(t *testing.T) {
	a := NewLLMAgent([]LLMProvider{&fakeProvider{name: "anthropic"}}, []string{"claude-haiku"}, nil)
	err := a.Validate(map[string]any{"provider": "anthropic", "model": "claude-opus", "prompt": "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowlist")

	require.NoError(t, a.Validate(map[string]any{"provider": "anthropic", "model": "claude-haiku", "prompt": "hi"}))
}

func TestLLMAgentValidateRequiresModelAndPrompt(t *testing.T) {
	a := NewLLMAgent([]LLMProvider{&fakeProvider{name: "anthropic"}}, nil, nil)
	require.Error(t, a.Validate(map[string]any{"provider": "anthropic", "prompt": "hi"}))
	require.Error(t, a.Validate(map[string]any{"provider": "anthropic", "model": "claude"}))
}

func TestLLMAgentExecuteReturnsTextAndTokens(t *testing.T) {
	a := NewLLMAgent([]LLMProvider{&fakeProvider{name: "anthropic", text: "hello there", total: 42}}, nil, nil)
	cfg := map[string]any{"provider": "anthropic", "model": "claude-haiku", "prompt": "say hi"}
	require.NoError(t, a.Validate(cfg))

	out, err := a.Execute(context.Background(), cfg, workflow.NewExecutionContext("wf", "run-1"))
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "hello there", result["text"])
	assert.Equal(t, 42, result["total_tokens"])
}

func TestLLMAgentExecutePropagatesProviderError(t *testing.T) {
	a := NewLLMAgent([]LLMProvider{&fakeProvider{name: "anthropic", err: assert.AnError}}, nil, nil)
	cfg := map[string]any{"provider": "anthropic", "model": "claude-haiku", "prompt": "say hi"}
	_, err := a.Execute(context.Background(), cfg, workflow.NewExecutionContext("wf", "run-1"))
	require.Error(t, err)
}
