package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Strategy selects the substitution applied to a detected span, per
// spec.md §4.2 and the Open Question resolved in DESIGN.md (hash/remove
// semantics weren't specified upstream).
type Strategy string

const (
	StrategyMask   Strategy = "mask"
	StrategyHash   Strategy = "hash"
	StrategyRemove Strategy = "remove"
)

// UnavailablePlaceholder is substituted for the entire input when the
// detector has no usable rule pack (fail-open-to-redaction posture).
const UnavailablePlaceholder = "[PII_REDACTION_UNAVAILABLE]"

// Redactor substitutes detected PII spans with deterministic
// placeholders (spec.md §4.2, Component C). It shares its rule pack with
// a Detector so the placeholder table can never diverge between the two.
type Redactor struct {
	detector *Detector
	strategy Strategy
}

// NewRedactor builds a redactor over the given detector. An empty
// strategy defaults to StrategyMask.
func NewRedactor(d *Detector, strategy Strategy) *Redactor {
	if strategy == "" {
		strategy = StrategyMask
	}
	return &Redactor{detector: d, strategy: strategy}
}

// Redact substitutes every span detect(text) would report. Substitution
// is strictly left-to-right and non-overlapping: overlaps are already
// resolved by Detect.
func (r *Redactor) Redact(text string, redactionEnabled bool) string {
	if !r.detector.available {
		if redactionEnabled {
			return UnavailablePlaceholder
		}
		return text
	}

	_, matches := r.detector.Detect(text, redactionEnabled, Options{})
	if len(matches) == 0 {
		return text
	}

	sortedByStart := make([]Match, len(matches))
	copy(sortedByStart, matches)
	// Detect already returns overlap-resolved, start-ascending matches
	// for identical priority ties; re-sort defensively since callers may
	// pass a differently-ordered slice into future call sites.
	for i := 1; i < len(sortedByStart); i++ {
		for j := i; j > 0 && sortedByStart[j].Start < sortedByStart[j-1].Start; j-- {
			sortedByStart[j], sortedByStart[j-1] = sortedByStart[j-1], sortedByStart[j]
		}
	}

	var b strings.Builder
	cursor := 0
	for _, m := range sortedByStart {
		if m.Start < cursor {
			continue // already covered by a preceding substitution
		}
		b.WriteString(text[cursor:m.Start])
		b.WriteString(r.placeholderFor(m))
		cursor = m.End
	}
	b.WriteString(text[cursor:])
	return b.String()
}

func (r *Redactor) placeholderFor(m Match) string {
	cp, ok := r.detector.pack.byName[m.Pattern]
	placeholder := defaultPlaceholder(m.Pattern)
	if ok {
		placeholder = cp.Placeholder
	}

	switch r.strategy {
	case StrategyRemove:
		return ""
	case StrategyHash:
		sum := sha256.Sum256([]byte(m.Text))
		digest := hex.EncodeToString(sum[:])[:12]
		inner := strings.TrimSuffix(strings.TrimPrefix(placeholder, "["), "]")
		return "[" + inner + ":" + digest + "]"
	default: // StrategyMask
		return placeholder
	}
}
