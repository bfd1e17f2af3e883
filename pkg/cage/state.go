// Package cage implements the security posture state machine (spec.md
// §4.10, Component P): the ACTIVE/RELAXED/CUSTOM states, their env-file
// persistence, and the secure-wipe operation behind `cage down`.
package cage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Posture is the named state derived from the five boolean primitives,
// per spec.md §4.10.
type Posture string

const (
	PostureActive  Posture = "ACTIVE"
	PostureRelaxed Posture = "RELAXED"
	PostureCustom  Posture = "CUSTOM"
)

// State is the cage's security posture (spec.md §3 "Cage State"). The
// first five fields persist as KEY=VALUE lines in the cage env file;
// BudgetUSD is read separately from config.yaml.
type State struct {
	PIIRedaction    bool
	NetworkLocked   bool
	SandboxEnabled  bool
	AuditEnabled    bool
	CostKillEnabled bool
	BudgetUSD       float64
}

// Posture classifies the current State per spec.md §4.10's exact
// definitions for ACTIVE and RELAXED; anything else is CUSTOM.
func (s State) Posture() Posture {
	switch {
	case s.PIIRedaction && s.NetworkLocked && s.SandboxEnabled:
		return PostureActive
	case !s.PIIRedaction && !s.NetworkLocked && s.SandboxEnabled && s.AuditEnabled:
		return PostureRelaxed
	default:
		return PostureCustom
	}
}

const (
	keyPII     = "AKIOS_PII_REDACTION_ENABLED"
	keyNetwork = "AKIOS_NETWORK_ACCESS_ALLOWED"
	keySandbox = "AKIOS_SANDBOX_ENABLED"
	keyAudit   = "AKIOS_AUDIT_ENABLED"
	keyCost    = "AKIOS_COST_KILL_ENABLED"
)

// LoadEnvFile reads the cage env file at path, parsing the five
// recognized boolean keys (spec.md §6). Unrecognized lines (provider API
// keys, comments, blanks) are ignored here; callers needing those use
// github.com/joho/godotenv directly against the same file.
func LoadEnvFile(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, fmt.Errorf("cage: opening env file: %w", err)
	}
	defer f.Close()

	values := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		b, parseErr := strconv.ParseBool(val)
		if parseErr != nil {
			continue
		}
		values[key] = b
	}
	if err := scanner.Err(); err != nil {
		return State{}, fmt.Errorf("cage: reading env file: %w", err)
	}

	return State{
		PIIRedaction:    values[keyPII],
		NetworkLocked:   !values[keyNetwork],
		SandboxEnabled:  values[keySandbox],
		AuditEnabled:    values[keyAudit],
		CostKillEnabled: values[keyCost],
	}, nil
}

// WriteEnvFile persists the five boolean primitives as KEY=VALUE lines,
// overwriting path. BudgetUSD is not written here — it lives in
// config.yaml per spec.md §3.
func WriteEnvFile(path string, s State) error {
	lines := []string{
		fmt.Sprintf("%s=%t", keyPII, s.PIIRedaction),
		fmt.Sprintf("%s=%t", keyNetwork, !s.NetworkLocked),
		fmt.Sprintf("%s=%t", keySandbox, s.SandboxEnabled),
		fmt.Sprintf("%s=%t", keyAudit, s.AuditEnabled),
		fmt.Sprintf("%s=%t", keyCost, s.CostKillEnabled),
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("cage: writing env file: %w", err)
	}
	return nil
}
