package config

import "fmt"

// validate enforces the invariants spec.md §6/§7 assume config.yaml
// already satisfies before the engine, sandbox, and cage read it.
func validate(cfg *Config) error {
	if cfg.Sandbox.CPULimit <= 0 || cfg.Sandbox.CPULimit > 1 {
		return NewValidationError("sandbox", "cpu_limit", fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidValue, cfg.Sandbox.CPULimit))
	}
	if cfg.Sandbox.MemoryMB <= 0 {
		return NewValidationError("sandbox", "memory_limit_mb", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Sandbox.MaxOpenFiles <= 0 {
		return NewValidationError("sandbox", "max_open_files", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	switch cfg.PII.RedactionStrategy {
	case "mask", "hash", "remove":
	default:
		return NewValidationError("pii", "redaction_strategy", fmt.Errorf("%w: must be one of mask, hash, remove, got %q", ErrInvalidValue, cfg.PII.RedactionStrategy))
	}

	if cfg.KillSwitch.MaxTokensPerCall <= 0 {
		return NewValidationError("killswitch", "max_tokens_per_call", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.KillSwitch.BudgetLimitPerRun <= 0 {
		return NewValidationError("killswitch", "budget_limit_per_run", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	if cfg.Audit.Enabled && cfg.Audit.StoragePath == "" {
		return NewValidationError("audit", "audit_storage_path", fmt.Errorf("%w", ErrMissingRequiredField))
	}
	if cfg.Audit.RotationThreshold <= 0 {
		return NewValidationError("audit", "rotation_threshold", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if cfg.Audit.MemoryCap <= 0 {
		return NewValidationError("audit", "memory_cap", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	return nil
}
