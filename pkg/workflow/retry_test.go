package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyForFilesystemNeverRetries(t *testing.T) {
	p := PolicyFor(AgentFilesystem, nil)
	assert.Equal(t, 1, p.MaxAttempts)
}

func TestPolicyForLLMRetriesWithBackoff(t *testing.T) {
	p := PolicyFor(AgentLLM, nil)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Greater(t, p.DelayFor(2), p.DelayFor(1))
}

func TestPolicyForOverrideNarrowsButNeverWidens(t *testing.T) {
	narrower := PolicyFor(AgentLLM, &RetryOverride{MaxAttempts: 1})
	assert.Equal(t, 1, narrower.MaxAttempts)

	wider := PolicyFor(AgentLLM, &RetryOverride{MaxAttempts: 10})
	assert.Equal(t, 3, wider.MaxAttempts)
}
