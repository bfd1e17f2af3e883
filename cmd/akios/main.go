// akios runs sequential AI-agent workflows under hard isolation
// guarantees: a cgroups/seccomp sandbox, PII redaction, a tamper-evident
// audit ledger, and a cost/loop kill-switch. Usage:
//
//	akios serve            start the REST API (GET /health, /status, /workflows; POST /workflows/run)
//	akios cage up|down|status   transition or inspect the security posture
//	akios run <workflow-id>     execute one workflow from the workflow directory and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/akios/akios/pkg/api"
	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/cage"
	"github.com/akios/akios/pkg/config"
	"github.com/akios/akios/pkg/pii"
	"github.com/akios/akios/pkg/sandbox"
	"github.com/akios/akios/pkg/workflow"
	"github.com/akios/akios/pkg/workflow/agents"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("AKIOS_CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	workflowDir := flag.String("workflow-dir", getEnv("AKIOS_WORKFLOW_DIR", "./workflows"), "Path to workflow definition directory")
	httpAddr := flag.String("http-addr", getEnv("AKIOS_HTTP_ADDR", ":8080"), "Address for the REST API (serve mode)")
	flag.Parse()

	dotenvPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(dotenvPath); err != nil {
		log.Printf("warning: could not load %s: %v (continuing with existing environment)", dotenvPath, err)
	}

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	// The cage's own persisted posture lives in a separate file from the
	// process's .env, so `akios cage up` and `akios serve` always agree on
	// the same state regardless of which one ran first.
	cageEnvPath := filepath.Join(*configDir, ".cage.env")

	logger := slog.Default()
	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		runServe(cfg, *workflowDir, *httpAddr, cageEnvPath, logger)
	case "cage":
		runCage(cfg, args[1:], cageEnvPath, logger)
	case "run":
		if len(args) < 2 {
			log.Fatal("usage: akios run <workflow-id>")
		}
		runOnce(cfg, *workflowDir, args[1], cageEnvPath, logger)
	default:
		log.Fatalf("unknown command %q (expected serve, cage, or run)", command)
	}
}

// buildEngine wires the step executor and engine the same way for both
// `serve` and `run`: registry of every agent kind, PII redaction keyed
// off config, and the cage's posture gating syscall interception.
func buildEngine(cfg *config.Config, envPath, outDir string, logger *slog.Logger) (*workflow.Engine, *workflow.Registry, *audit.Ledger, *cage.Controller, error) {
	ledgerOpts := []audit.Option{
		audit.WithMemoryCap(cfg.Audit.MemoryCap),
		audit.WithRotationThreshold(int64(cfg.Audit.RotationThreshold)),
		audit.WithLogger(logger),
	}
	if pgIndex := maybeOpenPostgresIndex(logger); pgIndex != nil {
		ledgerOpts = append(ledgerOpts, audit.WithAsyncIndex(pgIndex))
	}
	ledger, err := audit.Default(cfg.Audit.StoragePath, ledgerOpts...)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening audit ledger: %w", err)
	}

	cageCtrl := cage.NewController(envPath, cfg.KillSwitch.BudgetLimitPerRun, logger)
	cageState, _, err := cageCtrl.Status()
	if err != nil {
		logger.Warn("cage: no env file yet, treating posture as inactive", "error", err)
	}

	cageActive := cageState.NetworkLocked && cageState.SandboxEnabled

	registry := workflow.NewRegistry()
	registerAgents(registry, cfg, cageActive, logger)

	detector := pii.NewDetector(pii.DefaultRulePack())
	redactor := pii.NewRedactor(detector, pii.Strategy(cfg.PII.RedactionStrategy))

	executor := workflow.NewStepExecutor(registry, ledger, logger).
		WithRedactor(redactor).
		WithCageActive(cageActive)

	engine := workflow.NewEngine(executor, ledger, outDir, logger)
	if cfg.Sandbox.Enabled {
		engine = engine.WithResourceSandbox(sandbox.ResourceLimits{
			CPUFraction:  cfg.Sandbox.CPULimit,
			MemoryBytes:  cfg.Sandbox.MemoryMB * 1024 * 1024,
			MaxOpenFiles: cfg.Sandbox.MaxOpenFiles,
		})
	}

	return engine, registry, ledger, cageCtrl, nil
}

// maybeOpenPostgresIndex opens the optional secondary audit index
// (SPEC_FULL.md §2.3) when AKIOS_PG_HOST is set. It's a best-effort
// mirror: a failure to connect is logged and the index is simply
// omitted, never failing the process — the JSONL ledger is already the
// authoritative store.
func maybeOpenPostgresIndex(logger *slog.Logger) *audit.PostgresIndex {
	host := os.Getenv("AKIOS_PG_HOST")
	if host == "" {
		return nil
	}
	port, err := strconv.Atoi(getEnv("AKIOS_PG_PORT", "5432"))
	if err != nil {
		logger.Warn("audit: invalid AKIOS_PG_PORT, skipping postgres index", "error", err)
		return nil
	}
	cfg := audit.PostgresIndexConfig{
		Host:     host,
		Port:     port,
		User:     getEnv("AKIOS_PG_USER", "akios"),
		Password: os.Getenv("AKIOS_PG_PASSWORD"),
		Database: getEnv("AKIOS_PG_DATABASE", "akios"),
		SSLMode:  getEnv("AKIOS_PG_SSLMODE", "disable"),
		QueueSize: 256,
	}
	idx, err := audit.OpenPostgresIndex(context.Background(), cfg, logger)
	if err != nil {
		logger.Warn("audit: postgres index unavailable, continuing without it", "error", err)
		return nil
	}
	return idx
}

// registerAgents constructs one instance of every agent kind and
// registers it. LLM providers are only added when their credentials are
// present in the environment, matching the teacher's "degrade, don't
// fail startup" posture for optional integrations. cageActive threads
// through to the agents whose cage-policy row forces https while the
// cage is in its ACTIVE posture (spec.md §4.9 http/webhook rows).
func registerAgents(registry *workflow.Registry, cfg *config.Config, cageActive bool, logger *slog.Logger) {
	var providers []agents.LLMProvider
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		providers = append(providers, agents.NewAnthropicProvider(key))
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if bp, err := agents.NewBedrockProvider(context.Background(), region); err != nil {
			logger.Warn("agents: bedrock provider unavailable", "error", err)
		} else {
			providers = append(providers, bp)
		}
	}

	registry.Register(agents.NewLLMAgent(providers, cfg.Allowlist.AllowedModels, logger))
	registry.Register(agents.NewFilesystemAgent(logger))
	registry.Register(agents.NewHTTPAgent(cfg.Allowlist.AllowedDomains, logger).
		WithNetworkAccessAllowed(cfg.Allowlist.NetworkAccessAllowed).
		WithCageActive(cageActive))
	registry.Register(agents.NewWebhookAgent(cfg.Allowlist.AllowedDomains, logger).
		WithCageActive(cageActive))
	registry.Register(agents.NewToolExecutorAgent(cfg.Allowlist.AllowedCommands, logger))
	registry.Register(agents.NewDatabaseAgent(nil, logger))
}

func defaultBudget(cfg *config.Config) workflow.BudgetConfig {
	return workflow.BudgetConfig{
		MaxTokensPerCall:   cfg.KillSwitch.MaxTokensPerCall,
		BudgetLimitUSD:     cfg.KillSwitch.BudgetLimitPerRun,
		MaxSteps:           100,
		MaxDurationSeconds: 600,
	}
}

func runServe(cfg *config.Config, workflowDir, httpAddr, cageEnvPath string, logger *slog.Logger) {
	engine, registry, ledger, cageCtrl, err := buildEngine(cfg, cageEnvPath, "data/output", logger)
	if err != nil {
		log.Fatalf("failed to initialize workflow engine: %v", err)
	}
	defer ledger.Close()

	store, err := api.NewWorkflowStore(workflowDir)
	if err != nil {
		logger.Warn("api: some workflows failed to load", "error", err)
	}

	server := api.NewServer(engine, registry, ledger, cageCtrl, store, defaultBudget(cfg), logger)

	logger.Info("akios: starting HTTP server", "addr", httpAddr, "workflow_dir", workflowDir)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start(httpAddr) }()

	select {
	case err := <-serveErr:
		log.Fatalf("http server exited: %v", err)
	case sig := <-shutdown:
		logger.Info("akios: received shutdown signal", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("akios: graceful shutdown failed", "error", err)
		}
	}
}

func runOnce(cfg *config.Config, workflowDir, workflowID, envPath string, logger *slog.Logger) {
	engine, _, ledger, _, err := buildEngine(cfg, envPath, "data/output", logger)
	if err != nil {
		log.Fatalf("failed to initialize workflow engine: %v", err)
	}
	defer ledger.Close()

	wf, err := workflow.ParseFile(filepath.Join(workflowDir, workflowID+".yaml"))
	if err != nil {
		log.Fatalf("failed to parse workflow %q: %v", workflowID, err)
	}

	ks := workflow.NewKillSwitch(
		defaultBudget(cfg).BudgetLimitUSD,
		defaultBudget(cfg).MaxTokensPerCall,
		defaultBudget(cfg).MaxSteps,
		time.Duration(defaultBudget(cfg).MaxDurationSeconds)*time.Second,
	)

	runID := uuid.New().String()
	result, err := engine.Run(context.Background(), wf, runID, ks)
	if err != nil {
		log.Fatalf("workflow run failed: %v", err)
	}
	fmt.Printf("run %s: %s\n", runID, result.Status)
}

func runCage(cfg *config.Config, args []string, envPath string, logger *slog.Logger) {
	ctrl := cage.NewController(envPath, cfg.KillSwitch.BudgetLimitPerRun, logger)
	sub := "status"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "up":
		state, err := ctrl.Up(cage.UpOptions{})
		if err != nil {
			log.Fatalf("cage up failed: %v", err)
		}
		fmt.Printf("posture: %s\n", state.Posture())
	case "down":
		state, report, err := ctrl.Down([]string{"data/output", "data/input", cfg.Audit.StoragePath}, cage.DownOptions{})
		if err != nil {
			log.Fatalf("cage down failed: %v", err)
		}
		fmt.Printf("posture: %s (wiped %d files, %d bytes)\n", state.Posture(), report.FilesDestroyed, report.BytesDestroyed)
	case "status":
		state, posture, err := ctrl.Status()
		if err != nil {
			log.Fatalf("cage status failed: %v", err)
		}
		fmt.Printf("posture: %s (pii=%v network_locked=%v sandbox=%v audit=%v cost_kill=%v budget_usd=%.2f)\n",
			posture, state.PIIRedaction, state.NetworkLocked, state.SandboxEnabled, state.AuditEnabled, state.CostKillEnabled, state.BudgetUSD)
	default:
		log.Fatalf("unknown cage subcommand %q (expected up, down, or status)", sub)
	}
}
