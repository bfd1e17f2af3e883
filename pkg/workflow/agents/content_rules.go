package agents

import (
	"fmt"
	"regexp"
)

// contentRule is one pattern from the cage's content-rule scan
// (spec.md §4.9 tool_executor row): step configuration text is checked
// against a fixed set of dangerous-content categories before the command
// ever runs. Grounded on the categories the python original names —
// shell injection, path traversal, SQL injection, code execution — but
// enforced unconditionally here: the original treats the scan as an
// optional add-on that fails open when its dependency is missing, which
// defeats the point of a security boundary, so this port fails closed
// and never skips the check.
type contentRule struct {
	name    string
	pattern *regexp.Regexp
}

var contentRules = []contentRule{
	{"shell_injection", regexp.MustCompile("(?i)(rm\\s+-rf|sudo\\s|`[^`]*`|\\$\\([^)]*\\)|\\|\\s*(ba)?sh\\b|;\\s*(ba)?sh\\b|&&\\s*rm\\b)")},
	{"path_traversal", regexp.MustCompile(`(\.\./|\x00|/etc/passwd|/etc/shadow)`)},
	{"sql_injection", regexp.MustCompile(`(?i)(\bor\s+1\s*=\s*1\b|\bunion\s+select\b|\bdrop\s+table\b|;\s*--)`)},
	{"code_execution", regexp.MustCompile(`(?i)(\beval\s*\(|\bexec\s*\(|__import__\s*\()`)},
}

// scanContentRules rejects text containing any contentRules pattern,
// naming the violated rule in the returned error so the audit trail
// records which category fired.
func scanContentRules(text string) error {
	for _, r := range contentRules {
		if loc := r.pattern.FindString(text); loc != "" {
			return fmt.Errorf("content rule violation [%s]: %q matched a blocked pattern", r.name, loc)
		}
	}
	return nil
}
