package config

// Default returns the built-in configuration applied before the user's
// config.yaml is merged on top, mirroring the ACTIVE cage posture
// (spec.md §4.10): sandboxed, redacted, network-locked, audited, and
// cost-limited by default.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Enabled:       true,
			CPULimit:      0.5,
			MemoryMB:      512,
			MaxOpenFiles:  256,
			MaxFileSizeMB: 50,
		},
		PII: PIIConfig{
			RedactionEnabled:  true,
			RedactionStrategy: "mask",
		},
		KillSwitch: KillSwitchConfig{
			CostKillEnabled:   true,
			MaxTokensPerCall:  4096,
			BudgetLimitPerRun: 5.0,
		},
		Audit: AuditConfig{
			Enabled:           true,
			StoragePath:       "data/audit",
			RotationThreshold: 50000,
			MemoryCap:         1000,
		},
		Allowlist: AllowlistConfig{
			NetworkAccessAllowed: false,
			AllowedDomains:       nil,
			AllowedProviders:     []string{"anthropic", "bedrock"},
			AllowedModels:        nil,
			AllowedCommands:      nil,
		},
	}
}
