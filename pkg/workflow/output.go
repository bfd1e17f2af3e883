package workflow

import (
	"github.com/akios/akios/pkg/value"
)

// canonicalOutputKeys is the priority order the output extractor tries
// against an agent's raw result map, per spec.md §4.7 "Output
// Extractor": the first key present wins, regardless of map iteration
// order.
var canonicalOutputKeys = []string{"text", "content", "output", "result", "response", "stdout", "data"}

// maxOutputChars truncates any extracted output string to bound what
// flows into the execution context and the audit metadata.
const maxOutputChars = 2000

// ExtractOutput resolves an agent's raw return value down to the single
// string the execution context and templates see, trying the canonical
// key order against a map result and falling back to Stringify for
// anything else (spec.md §4.7).
func ExtractOutput(raw any) string {
	v := value.FromAny(raw)
	return extractFromValue(v)
}

func extractFromValue(v value.Value) string {
	if m, ok := v.Map(); ok {
		for _, key := range canonicalOutputKeys {
			if found, ok := m[key]; ok {
				return truncate(found.Stringify())
			}
		}
	}
	return truncate(v.Stringify())
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxOutputChars {
		return s
	}
	return string(r[:maxOutputChars])
}
