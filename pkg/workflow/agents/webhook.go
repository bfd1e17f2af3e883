package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akios/akios/pkg/workflow"
)

// WebhookAgent implements the `webhook` kind: a fire-and-forget
// outbound POST, distinct from the general-purpose `http` agent in that
// it always sends JSON and never returns a large response body into the
// execution context (spec.md §4.9 webhook row).
type WebhookAgent struct {
	client         *http.Client
	allowedDomains map[string]bool
	cageActive     bool
	logger         *slog.Logger
}

func NewWebhookAgent(allowedDomains []string, logger *slog.Logger) *WebhookAgent {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		m[strings.ToLower(d)] = true
	}
	return &WebhookAgent{
		client:         &http.Client{Timeout: 10 * time.Second},
		allowedDomains: m,
		logger:         logger,
	}
}

// WithCageActive records whether the cage is in its ACTIVE posture, which
// forces the outbound webhook URL to use https (spec.md §4.9 webhook row).
func (a *WebhookAgent) WithCageActive(active bool) *WebhookAgent {
	a.cageActive = active
	return a
}

func (a *WebhookAgent) Kind() workflow.AgentKind { return workflow.AgentWebhook }

// Validate enforces spec.md §4.9's webhook row: `url` and `payload` are
// required, `timeout` (if present) is at most 30s, `platform` (if
// present) is one of slack/discord/teams/generic, and the URL must be
// https while the cage is active.
func (a *WebhookAgent) Validate(cfg map[string]any) error {
	raw, _ := cfg["url"].(string)
	if raw == "" {
		return fmt.Errorf("webhook: missing required field 'url'")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook: invalid url: %w", err)
	}
	if a.cageActive && u.Scheme != "https" {
		return fmt.Errorf("webhook: security violation: url scheme must be https while the cage is active, got %q", u.Scheme)
	}
	if !a.allowedDomains[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("webhook: forbidden domain: %s not in allowlist", u.Hostname())
	}
	if _, ok := cfg["payload"]; !ok {
		return fmt.Errorf("webhook: missing required field 'payload'")
	}
	if err := validTimeout(cfg, 30, "webhook"); err != nil {
		return err
	}
	if platform, ok := cfg["platform"].(string); ok {
		if !oneOf(platform, "slack", "discord", "teams", "generic") {
			return fmt.Errorf("webhook: 'platform' must be one of slack, discord, teams, generic, got %q", platform)
		}
	}
	return nil
}

func (a *WebhookAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	rawURL := cfg["url"].(string)
	payload := cfg["payload"]

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: delivery failed: %w", err)
	}
	defer resp.Body.Close()

	a.logger.Info("agents: webhook delivered", "url", rawURL, "status", resp.StatusCode)
	return map[string]any{"status_code": resp.StatusCode}, nil
}
