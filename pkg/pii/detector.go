package pii

import (
	"log/slog"
	"sort"
	"strings"
)

// contextWindow is the ±N character window around a match within which a
// pattern's context keywords must appear, per spec.md §4.1.
const contextWindow = 100

// Match is one detected PII span, surviving context-keyword gating,
// per-pattern validation, and overlap resolution.
type Match struct {
	Pattern string
	Start   int
	End     int
	Text    string
}

// Detector applies a RulePack to text, per spec.md §4.1 (Component B).
type Detector struct {
	pack      *RulePack
	available bool // false when construction failed and Fallback() applies
}

// NewDetector wraps a rule pack. A nil pack yields an unavailable
// detector whose Detect always reports the fail-open sentinel, per
// spec.md's "unavailable detector MUST NOT suppress redaction" rule.
func NewDetector(pack *RulePack) *Detector {
	if pack == nil {
		return &Detector{available: false}
	}
	pack.logSummary(slog.Default())
	return &Detector{pack: pack, available: true}
}

// Available reports whether the detector has a usable rule pack.
func (d *Detector) Available() bool { return d.available }

// Options narrows detection to a subset of categories/sensitivities, or
// forces detection even when the caller would otherwise skip it.
type Options struct {
	Categories    []Category
	Sensitivities []Sensitivity
	Force         bool
}

// Detect returns pattern-name→matched-values, deduplicated in first-seen
// order, per spec.md §4.1 steps 1-5. When redactionEnabled is false and
// opts.Force is false, it returns an empty result without scanning
// (mirrors the Python detector's early-return contract).
func (d *Detector) Detect(text string, redactionEnabled bool, opts Options) (map[string][]string, []Match) {
	if !redactionEnabled && !opts.Force {
		return map[string][]string{}, nil
	}
	if !d.available {
		return map[string][]string{"_unavailable": {"[PII_REDACTION_UNAVAILABLE]"}}, nil
	}

	candidates := d.collect(text, opts)
	kept := resolveOverlaps(candidates)

	result := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, m := range kept {
		if seen[m.Pattern] == nil {
			seen[m.Pattern] = make(map[string]bool)
		}
		if seen[m.Pattern][m.Text] {
			continue
		}
		seen[m.Pattern][m.Text] = true
		result[m.Pattern] = append(result[m.Pattern], m.Text)
	}
	return result, kept
}

type candidate struct {
	Match
	priority int
}

func (d *Detector) collect(text string, opts Options) []candidate {
	lowerText := strings.ToLower(text)
	var out []candidate

	for _, cp := range d.pack.patterns {
		if !matchesFilter(cp.Pattern, opts) {
			continue
		}
		locs := cp.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			matched := text[start:end]

			if len(cp.ContextKeywords) > 0 && !hasContextKeyword(lowerText, start, end, cp.ContextKeywords) {
				continue
			}
			if cp.Validator != nil && !cp.Validator(matched) {
				continue
			}

			out = append(out, candidate{
				Match:    Match{Pattern: cp.Name, Start: start, End: end, Text: matched},
				priority: cp.Priority,
			})
		}
	}
	return out
}

func matchesFilter(p *Pattern, opts Options) bool {
	if len(opts.Categories) > 0 {
		found := false
		for _, c := range opts.Categories {
			if c == p.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.Sensitivities) > 0 {
		found := false
		for _, s := range opts.Sensitivities {
			if s == p.Sensitivity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasContextKeyword(lowerText string, start, end int, keywords []string) bool {
	winStart := start - contextWindow
	if winStart < 0 {
		winStart = 0
	}
	winEnd := end + contextWindow
	if winEnd > len(lowerText) {
		winEnd = len(lowerText)
	}
	window := lowerText[winStart:winEnd]
	for _, kw := range keywords {
		if strings.Contains(window, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// resolveOverlaps sorts by (start asc, priority desc, end asc) and keeps
// the highest-priority non-overlapping span at each position, per
// spec.md §4.1 step 4. Equal priority: first-seen (by the sort order)
// wins, suppressing the later duplicate.
func resolveOverlaps(candidates []candidate) []Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Start != candidates[j].Start {
			return candidates[i].Start < candidates[j].Start
		}
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].End < candidates[j].End
	})

	var kept []Match
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Start < k.End && k.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c.Match)
		}
	}
	return kept
}
