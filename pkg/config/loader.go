package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads config.yaml from dir, expands ${VAR} references,
// merges it over the built-in defaults, validates the result, and
// returns a ready-to-use Config. A missing file is not an error: the
// built-in defaults (ACTIVE posture) are returned as-is, logged at
// info level so an operator notices a fresh install.
func Initialize(dir string) (*Config, error) {
	log := slog.With("config_dir", dir)

	cfg := Default()
	cfg.configPath = dir

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("config: config.yaml not found, using built-in defaults", "path", path)
			if err := validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var file yamlConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	applyOverrides(cfg, &file)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("config: loaded", "path", path,
		"sandbox_enabled", cfg.Sandbox.Enabled,
		"pii_redaction_enabled", cfg.PII.RedactionEnabled,
		"cost_kill_enabled", cfg.KillSwitch.CostKillEnabled,
		"audit_enabled", cfg.Audit.Enabled)

	return cfg, nil
}

// applyOverrides merges the on-disk flat config over the built-in
// defaults, field by field so an explicit `false` or `0` is honored
// (mergo's zero-value semantics would otherwise treat them as absent).
func applyOverrides(cfg *Config, file *yamlConfig) {
	if file.SandboxEnabled != nil {
		cfg.Sandbox.Enabled = *file.SandboxEnabled
	}
	if file.CPULimit != nil {
		cfg.Sandbox.CPULimit = *file.CPULimit
	}
	if file.MemoryLimitMB != nil {
		cfg.Sandbox.MemoryMB = *file.MemoryLimitMB
	}
	if file.MaxOpenFiles != nil {
		cfg.Sandbox.MaxOpenFiles = *file.MaxOpenFiles
	}
	if file.MaxFileSizeMB != nil {
		cfg.Sandbox.MaxFileSizeMB = *file.MaxFileSizeMB
	}

	if file.PIIRedactionEnabled != nil {
		cfg.PII.RedactionEnabled = *file.PIIRedactionEnabled
	}
	if file.RedactionStrategy != "" {
		cfg.PII.RedactionStrategy = file.RedactionStrategy
	}

	if file.CostKillEnabled != nil {
		cfg.KillSwitch.CostKillEnabled = *file.CostKillEnabled
	}
	if file.MaxTokensPerCall != nil {
		cfg.KillSwitch.MaxTokensPerCall = *file.MaxTokensPerCall
	}
	if file.BudgetLimitPerRun != nil {
		cfg.KillSwitch.BudgetLimitPerRun = *file.BudgetLimitPerRun
	}

	if file.AuditEnabled != nil {
		cfg.Audit.Enabled = *file.AuditEnabled
	}
	if file.AuditStoragePath != "" {
		cfg.Audit.StoragePath = file.AuditStoragePath
	}
	if file.RotationThreshold != nil {
		cfg.Audit.RotationThreshold = *file.RotationThreshold
	}
	if file.MemoryCap != nil {
		cfg.Audit.MemoryCap = *file.MemoryCap
	}

	// The allowlist is additive: built-in defaults (e.g. the two
	// supported LLM providers) merge with whatever the user lists,
	// rather than the user's list silently replacing them.
	overlay := AllowlistConfig{
		NetworkAccessAllowed: cfg.Allowlist.NetworkAccessAllowed,
		AllowedDomains:       file.AllowedDomains,
		AllowedProviders:     file.AllowedProviders,
		AllowedModels:        file.AllowedModels,
		AllowedCommands:      file.AllowedCommands,
	}
	if file.NetworkAccessAllowed != nil {
		overlay.NetworkAccessAllowed = *file.NetworkAccessAllowed
	}
	if err := mergo.Merge(&cfg.Allowlist, overlay, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		// mergo only fails here on type mismatches between identical
		// struct types, which cannot happen; logged defensively.
		slog.Warn("config: allowlist merge failed, built-in defaults retained", "error", err)
	}
}
