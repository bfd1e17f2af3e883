package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractOutputPrefersCanonicalKeyOrder(t *testing.T) {
	raw := map[string]any{"output": "second choice", "text": "first choice"}
	assert.Equal(t, "first choice", ExtractOutput(raw))
}

func TestExtractOutputFallsBackThroughPriorityOrder(t *testing.T) {
	raw := map[string]any{"stdout": "fallback", "data": "last resort"}
	assert.Equal(t, "fallback", ExtractOutput(raw))
}

func TestExtractOutputStringifiesNonMap(t *testing.T) {
	assert.Equal(t, "42", ExtractOutput(42))
}

func TestExtractOutputTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", maxOutputChars+500)
	got := ExtractOutput(map[string]any{"text": long})
	assert.Len(t, got, maxOutputChars)
}
