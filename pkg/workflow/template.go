package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/akios/akios/pkg/value"
)

// maxSubstitutionDepth bounds recursive placeholder resolution
// (spec.md §4.7): a substituted value may itself contain placeholders,
// but only up to this many passes, to guarantee termination against a
// workflow file that chains `{a}` -> `{b}` -> `{a}`.
const maxSubstitutionDepth = 10

// envPlaceholderRe matches `${ENV_VAR}` references, resolved against the
// process environment (spec.md §4.9 step 4: "Resolve config (env-var
// substitution on all fields except `api_key`)").
var envPlaceholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// contextPlaceholderRe matches `{previous_output}`, `{step_K_output}`,
// and general dotted/indexed context paths such as
// `{step_1_result.summary}` (spec.md §4.7 "Template substitution").
var contextPlaceholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.\[\]]+)\}`)

// wholeOutputPlaceholderRe identifies the two placeholder forms that
// resolve through the Output Extractor rather than a bare Stringify:
// `previous_output` and `step_K_output` always mean "the extracted
// string for that step", never the raw map itself (spec.md §4.7).
var wholeOutputPlaceholderRe = regexp.MustCompile(`^(previous_output|step_[A-Za-z0-9_]+_output)$`)

// ResolveEnvVars substitutes every `${ENV_VAR}` occurrence in cfg's
// string-valued fields with the corresponding process environment
// variable, skipping `api_key` (spec.md §4.9's one named exception — the
// cage injects API keys through its own channel, never the workflow
// file's substitution pass). A referenced variable that isn't set is a
// configuration error that aborts the step (spec.md §4.7), not a
// placeholder left verbatim.
func ResolveEnvVars(cfg map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if k == "api_key" {
			out[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		resolved, err := substituteEnv(s)
		if err != nil {
			return nil, fmt.Errorf("workflow: config field %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func substituteEnv(s string) (string, error) {
	var missing error
	resolved := envPlaceholderRe.ReplaceAllStringFunc(s, func(match string) string {
		if missing != nil {
			return match
		}
		name := envPlaceholderRe.FindStringSubmatch(match)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return val
	})
	if missing != nil {
		return "", missing
	}
	return resolved, nil
}

// RenderTemplate substitutes `{path}` placeholders in a parameter value
// against the execution context. `{previous_output}` and
// `{step_K_output}` resolve through ExtractOutput against the named
// step's raw result; any other dotted/indexed path (e.g.
// `{step_1_result.summary}`) resolves via value.Value.Get/Index and is
// stringified directly. An unresolvable placeholder is a configuration
// error that aborts the step (spec.md §4.7), not text left verbatim.
func RenderTemplate(tmpl string, ec *ExecutionContext) (string, error) {
	out := tmpl
	for i := 0; i < maxSubstitutionDepth; i++ {
		var unresolved error
		next := contextPlaceholderRe.ReplaceAllStringFunc(out, func(match string) string {
			if unresolved != nil {
				return match
			}
			path := contextPlaceholderRe.FindStringSubmatch(match)[1]
			resolved, ok := resolvePath(path, ec)
			if !ok {
				unresolved = fmt.Errorf("template variable %q is not set", path)
				return match
			}
			if wholeOutputPlaceholderRe.MatchString(path) {
				return ExtractOutput(resolved.ToAny())
			}
			return resolved.Stringify()
		})
		if unresolved != nil {
			return "", fmt.Errorf("workflow: %w", unresolved)
		}
		if next == out {
			return out, nil
		}
		out = next
	}
	return out, nil
}

// resolvePath walks a dotted/bracket-indexed path ("a.b[0].c") against
// the execution context's top-level bindings.
func resolvePath(path string, ec *ExecutionContext) (value.Value, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return value.Null(), false
	}

	cur, ok := ec.Get(segments[0])
	if !ok {
		return value.Null(), false
	}

	for _, seg := range segments[1:] {
		if idx, isIndex := asIndex(seg); isIndex {
			cur, ok = cur.Index(idx)
		} else {
			cur, ok = cur.Get(seg)
		}
		if !ok {
			return value.Null(), false
		}
	}
	return cur, true
}

func splitPath(path string) []string {
	path = strings.ReplaceAll(path, "[", ".[")
	raw := strings.Split(path, ".")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asIndex(seg string) (int, bool) {
	if !strings.HasPrefix(seg, "[") || !strings.HasSuffix(seg, "]") {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(seg, "[%d]", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// RemapOutputPath rewrites a workflow-file-provided output path so every
// file an agent writes lands under the run's sandboxed output
// directory, `data/output/run_<id>/`, regardless of what the workflow
// author wrote (spec.md §4.7 "output-path remapping"). Absolute paths
// and `..` segments are stripped down to the base name first, so a step
// cannot escape the run directory by construction.
func RemapOutputPath(runID, requestedPath string) string {
	base := filepath.Base(requestedPath)
	if base == "." || base == string(filepath.Separator) {
		base = "output"
	}
	return filepath.Join("data", "output", "run_"+runID, base)
}
