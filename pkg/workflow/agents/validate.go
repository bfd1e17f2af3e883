package agents

import "fmt"

// dangerousRoots are filesystem paths a step's allowed_paths list can
// never include, regardless of read_only (spec.md §4.9 filesystem row) —
// scoping a step to one of these is indistinguishable from no scoping at
// all.
var dangerousRoots = map[string]bool{
	"/": true, "/etc": true, "/usr": true, "/var": true, "/home": true, "/root": true,
}

// validTimeout rejects a cfg["timeout"] field that is present but exceeds
// max, or that isn't numeric. Absent is fine — the agent's own default
// applies.
func validTimeout(cfg map[string]any, max float64, label string) error {
	v, ok := cfg["timeout"]
	if !ok {
		return nil
	}
	n, ok := asNumber(v)
	if !ok {
		return fmt.Errorf("%s: 'timeout' must be numeric", label)
	}
	if n <= 0 || n > max {
		return fmt.Errorf("%s: 'timeout' must be between 0 and %g seconds", label, max)
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	n, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// oneOf reports whether s equals one of allowed, used for the webhook
// `platform` membership check the cage-policy table names.
func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
