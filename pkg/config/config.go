// Package config loads and validates akios's config.yaml (spec.md §6),
// covering sandbox limits, PII redaction posture, cost/loop kill-switch
// budgets, and audit storage — the settings the cage controller and the
// runtime engine consult on every run.
package config

// Config is the fully resolved, validated configuration for one akios
// process: built-in defaults merged with the user's config.yaml.
type Config struct {
	configPath string

	Sandbox    SandboxConfig    `yaml:"-"`
	PII        PIIConfig        `yaml:"-"`
	KillSwitch KillSwitchConfig `yaml:"-"`
	Audit      AuditConfig      `yaml:"-"`
	Allowlist  AllowlistConfig  `yaml:"-"`
}

// SandboxConfig covers the `sandbox_*` / `max_*` keys (spec.md §6).
type SandboxConfig struct {
	Enabled      bool    `yaml:"sandbox_enabled"`
	CPULimit     float64 `yaml:"cpu_limit"`
	MemoryMB     int64   `yaml:"memory_limit_mb"`
	MaxOpenFiles int     `yaml:"max_open_files"`
	MaxFileSizeMB int64  `yaml:"max_file_size_mb"`
}

// PIIConfig covers the `pii_*` / `redaction_strategy` keys.
type PIIConfig struct {
	RedactionEnabled bool   `yaml:"pii_redaction_enabled"`
	RedactionStrategy string `yaml:"redaction_strategy"` // mask | hash | remove
}

// KillSwitchConfig covers the `cost_kill_enabled` / token / budget keys.
type KillSwitchConfig struct {
	CostKillEnabled   bool    `yaml:"cost_kill_enabled"`
	MaxTokensPerCall  int     `yaml:"max_tokens_per_call"`
	BudgetLimitPerRun float64 `yaml:"budget_limit_per_run"`
}

// AuditConfig covers the `audit_*` keys.
type AuditConfig struct {
	Enabled           bool   `yaml:"audit_enabled"`
	StoragePath       string `yaml:"audit_storage_path"`
	RotationThreshold int64  `yaml:"rotation_threshold,omitempty"`
	MemoryCap         int    `yaml:"memory_cap,omitempty"`
}

// AllowlistConfig covers `allowed_domains` / `allowed_providers` /
// `allowed_models` / `allowed_commands`, consulted by the HTTP, LLM, and
// tool-executor agents before any outbound call (spec.md §4.9).
type AllowlistConfig struct {
	NetworkAccessAllowed bool     `yaml:"network_access_allowed"`
	AllowedDomains       []string `yaml:"allowed_domains,omitempty"`
	AllowedProviders     []string `yaml:"allowed_providers,omitempty"`
	AllowedModels        []string `yaml:"allowed_models,omitempty"`
	AllowedCommands      []string `yaml:"allowed_commands,omitempty"`
}

// yamlConfig is the on-disk shape of config.yaml: a flat key set per
// spec.md §6, rather than the nested structs above (which group the
// keys for callers). load() flattens one into the other.
type yamlConfig struct {
	SandboxEnabled       *bool    `yaml:"sandbox_enabled"`
	CPULimit             *float64 `yaml:"cpu_limit"`
	MemoryLimitMB        *int64   `yaml:"memory_limit_mb"`
	MaxOpenFiles         *int     `yaml:"max_open_files"`
	MaxFileSizeMB        *int64   `yaml:"max_file_size_mb"`
	NetworkAccessAllowed *bool    `yaml:"network_access_allowed"`
	AllowedDomains       []string `yaml:"allowed_domains"`
	PIIRedactionEnabled  *bool    `yaml:"pii_redaction_enabled"`
	RedactionStrategy    string   `yaml:"redaction_strategy"`
	CostKillEnabled      *bool    `yaml:"cost_kill_enabled"`
	MaxTokensPerCall     *int     `yaml:"max_tokens_per_call"`
	BudgetLimitPerRun    *float64 `yaml:"budget_limit_per_run"`
	AuditEnabled         *bool    `yaml:"audit_enabled"`
	AuditStoragePath     string   `yaml:"audit_storage_path"`
	RotationThreshold    *int64   `yaml:"rotation_threshold"`
	MemoryCap            *int     `yaml:"memory_cap"`
	AllowedProviders     []string `yaml:"allowed_providers"`
	AllowedModels        []string `yaml:"allowed_models"`
	AllowedCommands      []string `yaml:"allowed_commands"`
}

// Path returns the directory Initialize loaded config.yaml from.
func (c *Config) Path() string { return c.configPath }
