package cage

import (
	"fmt"
	"log/slog"
)

// UpOptions mirrors `cage up [--no-pii] [--no-audit] [--no-budget]`
// (spec.md §4.10): each flag disables one primitive for ablation testing
// while still transitioning toward ACTIVE.
type UpOptions struct {
	NoPII    bool
	NoAudit  bool
	NoBudget bool
}

// DownOptions mirrors `cage down [--keep-data] [--passes N] [--fast]`.
type DownOptions struct {
	KeepData bool
	Passes   int // default 1
	Fast     bool
}

// Controller owns the cage's persisted state and the wipe operation. It
// is constructed per process with an explicit env-file path and budget,
// per spec.md §9's "explicit handles" design note — cage state is not a
// package-level global here.
type Controller struct {
	envPath string
	budget  float64
	logger  *slog.Logger
}

// NewController builds a Controller over the given env-file path and the
// budget read from config.yaml.
func NewController(envPath string, budgetUSD float64, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{envPath: envPath, budget: budgetUSD, logger: logger}
}

// Status reads the current state and returns it with its derived
// posture, per `cage status`.
func (c *Controller) Status() (State, Posture, error) {
	s, err := LoadEnvFile(c.envPath)
	if err != nil {
		return State{}, "", err
	}
	s.BudgetUSD = c.budget
	return s, s.Posture(), nil
}

// Up transitions to ACTIVE (PII on, network locked, sandbox on), with
// per-primitive ablation flags, and persists the result.
func (c *Controller) Up(opts UpOptions) (State, error) {
	s := State{
		PIIRedaction:    !opts.NoPII,
		NetworkLocked:   true,
		SandboxEnabled:  true,
		AuditEnabled:    !opts.NoAudit,
		CostKillEnabled: !opts.NoBudget,
		BudgetUSD:       c.budget,
	}
	if err := WriteEnvFile(c.envPath, s); err != nil {
		return State{}, err
	}
	c.logger.Info("cage: transitioned up", "posture", s.Posture(), "budget_usd", s.BudgetUSD)
	return s, nil
}

// Down transitions to RELAXED (PII off, network open, sandbox still on,
// audit still on) and, unless KeepData is set, securely wipes workflow
// data under the three category directories.
func (c *Controller) Down(dataDirs []string, opts DownOptions) (State, WipeReport, error) {
	s := State{
		PIIRedaction:    false,
		NetworkLocked:   false,
		SandboxEnabled:  true,
		AuditEnabled:    true,
		CostKillEnabled: true,
		BudgetUSD:       c.budget,
	}
	if err := WriteEnvFile(c.envPath, s); err != nil {
		return State{}, WipeReport{}, err
	}
	c.logger.Info("cage: transitioned down", "posture", s.Posture())

	if opts.KeepData {
		return s, WipeReport{}, nil
	}

	passes := opts.Passes
	if passes <= 0 {
		passes = 1
	}

	report, err := WipeDirs(dataDirs, passes, opts.Fast)
	if err != nil {
		return s, report, fmt.Errorf("cage: secure wipe: %w", err)
	}
	c.logger.Info("cage: secure wipe complete", "files", report.FilesDestroyed, "bytes", report.BytesDestroyed)
	return s, report, nil
}
