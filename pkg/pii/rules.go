// Package pii implements the PII Rule Pack, Detector, and Redactor
// (spec.md §4.1, §4.2; Components A, B, C).
//
// Grounded on pkg/masking/pattern.go (compiled-regex-pattern idiom) and
// _examples/original_source/src/akios/security/pii/detector.py (the
// detection algorithm: context-keyword gating, per-category validators,
// priority-sorted overlap resolution).
package pii

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
)

// Category classifies the sensitivity domain of a pattern.
type Category string

const (
	CategoryPersonal      Category = "personal"
	CategoryFinancial     Category = "financial"
	CategoryHealth        Category = "health"
	CategoryLocation      Category = "location"
	CategoryCommunication Category = "communication"
	CategoryDigital       Category = "digital"
)

// Sensitivity ranks how damaging a leak of the matched value would be.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// Validator inspects a raw regex match and decides whether it is a
// plausible instance of the pattern's category (rejecting, e.g., regex
// matches that happen to look like a credit card but fail Luhn).
type Validator func(match string) bool

// Pattern is one entry in the PII Rule Pack (spec.md's "PII Pattern").
type Pattern struct {
	Name            string
	Category        Category
	Sensitivity     Sensitivity
	Priority        int // higher wins on overlap
	ContextKeywords []string
	Validator       Validator
	Placeholder     string // e.g. "[EMAIL]"; defaults to "[<NAME_UPPER>]"

	rawRegex string
}

// compiledPattern pairs a Pattern with its compiled regex. Rule packs
// compile once at construction; a compile failure aborts startup per
// spec.md §4.1 ("Regex compilation errors at load time abort startup").
type compiledPattern struct {
	*Pattern
	re *regexp.Regexp
}

// RulePack is the curated catalog of detection patterns.
type RulePack struct {
	patterns []*compiledPattern
	byName   map[string]*compiledPattern
}

// NewRulePack compiles the given pattern definitions, returning an error
// naming the offending pattern if any regex fails to compile.
func NewRulePack(defs []Pattern) (*RulePack, error) {
	rp := &RulePack{byName: make(map[string]*compiledPattern, len(defs))}
	for i := range defs {
		def := defs[i]
		re, err := regexp.Compile(def.regexSource())
		if err != nil {
			return nil, fmt.Errorf("pii: compiling pattern %q: %w", def.Name, err)
		}
		if def.Placeholder == "" {
			def.Placeholder = defaultPlaceholder(def.Name)
		}
		cp := &compiledPattern{Pattern: &def, re: re}
		rp.patterns = append(rp.patterns, cp)
		rp.byName[def.Name] = cp
	}
	return rp, nil
}

// MustNewRulePack panics on a compile error; used for the built-in
// default rule pack where the definitions are compile-time constants and
// a failure indicates a programming error, not bad input.
func MustNewRulePack(defs []Pattern) *RulePack {
	rp, err := NewRulePack(defs)
	if err != nil {
		panic(err)
	}
	return rp
}

func defaultPlaceholder(name string) string {
	switch name {
	case "email":
		return "[EMAIL]"
	case "phone":
		return "[PHONE]"
	case "ssn":
		return "[SSN]"
	default:
		upper := make([]byte, len(name))
		for i := 0; i < len(name); i++ {
			c := name[i]
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			upper[i] = c
		}
		return "[" + string(upper) + "]"
	}
}

// Pattern.regexSource exists so NewRulePack can read the unexported
// regex string set by DefaultPatterns below without exposing a second
// public field on Pattern for the not-yet-compiled source.
func (p Pattern) regexSource() string { return p.rawRegex }

// FallbackRulePack is a minimal built-in set (email, phone, SSN) modeled
// on original_source's `_load_fallback_patterns`. Nothing in this module
// calls it: a Detector built without a rule pack masks the whole input
// instead.
func FallbackRulePack() *RulePack {
	return MustNewRulePack([]Pattern{
		{Name: "email", Category: CategoryCommunication, Sensitivity: SensitivityMedium, Priority: 50, rawRegex: emailRegex, Validator: validateEmail},
		{Name: "phone", Category: CategoryCommunication, Sensitivity: SensitivityMedium, Priority: 40, rawRegex: phoneRegex, Validator: validatePhone},
		{Name: "ssn", Category: CategoryPersonal, Sensitivity: SensitivityHigh, Priority: 90, rawRegex: ssnRegex},
	})
}

// DefaultRulePack is the built-in curated catalog of 27 patterns. It
// covers every category and sensitivity level named in spec.md; it does
// not hold a pattern for every kind of identifier, and it is not a padded
// list of near-duplicate regexes.
func DefaultRulePack() *RulePack {
	return MustNewRulePack(defaultPatternDefs())
}

func defaultPatternDefs() []Pattern {
	return []Pattern{
		// personal
		{Name: "ssn", Category: CategoryPersonal, Sensitivity: SensitivityHigh, Priority: 95, rawRegex: ssnRegex},
		{Name: "passport_number", Category: CategoryPersonal, Sensitivity: SensitivityHigh, Priority: 85,
			rawRegex: `\b[A-Z][0-9]{8}\b`, ContextKeywords: []string{"passport"}},
		{Name: "drivers_license", Category: CategoryPersonal, Sensitivity: SensitivityHigh, Priority: 80,
			rawRegex: `\b[A-Z]{1,2}[0-9]{5,8}\b`, ContextKeywords: []string{"license", "licence", "dl#"}},
		{Name: "date_of_birth", Category: CategoryPersonal, Sensitivity: SensitivityMedium, Priority: 60,
			rawRegex: `\b(0[1-9]|1[0-2])[/-](0[1-9]|[12][0-9]|3[01])[/-](19|20)\d{2}\b`,
			ContextKeywords: []string{"dob", "birth", "born"}},
		{Name: "national_id", Category: CategoryPersonal, Sensitivity: SensitivityHigh, Priority: 88,
			rawRegex: `\b[0-9]{9,12}\b`, ContextKeywords: []string{"national id", "id number", "citizen id"}},
		{Name: "full_name_title", Category: CategoryPersonal, Sensitivity: SensitivityLow, Priority: 20,
			rawRegex: `\b(?:Mr|Mrs|Ms|Dr|Prof)\.\s+[A-Z][a-z]+\s+[A-Z][a-z]+\b`},

		// financial
		{Name: "credit_card", Category: CategoryFinancial, Sensitivity: SensitivityHigh, Priority: 92,
			rawRegex: `\b(?:\d[ -]*?){13,19}\b`, Validator: validateCreditCard},
		{Name: "iban", Category: CategoryFinancial, Sensitivity: SensitivityHigh, Priority: 90,
			rawRegex: `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`, Validator: validateIBAN},
		{Name: "bank_account", Category: CategoryFinancial, Sensitivity: SensitivityHigh, Priority: 75,
			rawRegex: `\b[0-9]{8,17}\b`, ContextKeywords: []string{"account number", "acct", "routing"}},
		{Name: "swift_bic", Category: CategoryFinancial, Sensitivity: SensitivityMedium, Priority: 70,
			rawRegex: `\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`, ContextKeywords: []string{"swift", "bic"}},
		{Name: "crypto_wallet", Category: CategoryFinancial, Sensitivity: SensitivityMedium, Priority: 72,
			rawRegex: `\b(?:bc1|[13])[a-zA-HJ-NP-Z0-9]{25,39}\b`, ContextKeywords: []string{"wallet", "btc", "bitcoin"}},

		// health
		{Name: "medical_record_number", Category: CategoryHealth, Sensitivity: SensitivityHigh, Priority: 87,
			rawRegex: `\bMRN[:\s#-]*[0-9]{6,10}\b`},
		{Name: "health_insurance_id", Category: CategoryHealth, Sensitivity: SensitivityHigh, Priority: 83,
			rawRegex: `\b[A-Z]{3}[0-9]{9}\b`, ContextKeywords: []string{"insurance", "policy", "member id"}},
		{Name: "diagnosis_code", Category: CategoryHealth, Sensitivity: SensitivityMedium, Priority: 55,
			rawRegex: `\b[A-TV-Z][0-9]{2}(?:\.[0-9]{1,4})?\b`, ContextKeywords: []string{"icd", "diagnosis"}},

		// location
		{Name: "ip_address", Category: CategoryLocation, Sensitivity: SensitivityMedium, Priority: 50,
			rawRegex: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, Validator: validateIPAddress},
		{Name: "coordinates", Category: CategoryLocation, Sensitivity: SensitivityMedium, Priority: 48,
			rawRegex: `-?\d{1,3}\.\d{3,10},\s*-?\d{1,3}\.\d{3,10}`, Validator: validateCoordinates},
		{Name: "street_address", Category: CategoryLocation, Sensitivity: SensitivityMedium, Priority: 45,
			rawRegex: `\b\d{1,5}\s+[A-Z][a-z]+(?:\s[A-Z][a-z]+)*\s(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Ln|Lane)\b`},
		{Name: "zip_code", Category: CategoryLocation, Sensitivity: SensitivityLow, Priority: 15,
			rawRegex: `\b\d{5}(?:-\d{4})?\b`, ContextKeywords: []string{"zip", "postal"}},

		// communication
		{Name: "email", Category: CategoryCommunication, Sensitivity: SensitivityMedium, Priority: 60, rawRegex: emailRegex, Validator: validateEmail},
		{Name: "phone", Category: CategoryCommunication, Sensitivity: SensitivityMedium, Priority: 58, rawRegex: phoneRegex, Validator: validatePhone},
		{Name: "fax_number", Category: CategoryCommunication, Sensitivity: SensitivityLow, Priority: 30,
			rawRegex: phoneRegex, ContextKeywords: []string{"fax"}},
		{Name: "slack_handle", Category: CategoryCommunication, Sensitivity: SensitivityLow, Priority: 20,
			rawRegex: `@[a-zA-Z][a-zA-Z0-9._-]{2,30}`, ContextKeywords: []string{"slack", "@"}},

		// digital
		{Name: "api_key", Category: CategoryDigital, Sensitivity: SensitivityHigh, Priority: 93,
			rawRegex: `\b(?:sk|pk|api)[-_][A-Za-z0-9]{20,64}\b`},
		{Name: "jwt", Category: CategoryDigital, Sensitivity: SensitivityHigh, Priority: 91,
			rawRegex: `\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`},
		{Name: "aws_access_key", Category: CategoryDigital, Sensitivity: SensitivityHigh, Priority: 94,
			rawRegex: `\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`},
		{Name: "mac_address", Category: CategoryDigital, Sensitivity: SensitivityLow, Priority: 25,
			rawRegex: `\b(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}\b`},
		{Name: "uuid", Category: CategoryDigital, Sensitivity: SensitivityLow, Priority: 10,
			rawRegex: `\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`},
	}
}

const (
	emailRegex = `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`
	phoneRegex = `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`
	ssnRegex   = `\b\d{3}-\d{2}-\d{4}\b`
)

// Names returns every pattern name in the pack, sorted by descending
// priority then name, for deterministic logging.
func (rp *RulePack) Names() []string {
	patterns := make([]*compiledPattern, len(rp.patterns))
	copy(patterns, rp.patterns)
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Priority != patterns[j].Priority {
			return patterns[i].Priority > patterns[j].Priority
		}
		return patterns[i].Name < patterns[j].Name
	})
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	return names
}

func (rp *RulePack) logSummary(logger *slog.Logger) {
	logger.Info("pii rule pack loaded", "pattern_count", len(rp.patterns), "patterns", rp.Names())
}
