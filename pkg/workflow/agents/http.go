package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akios/akios/pkg/workflow"
)

// HTTPAgent implements the `http` kind: outbound calls gated by the
// cage's domain allowlist (spec.md §4.9 http row, §6 allowed_domains).
type HTTPAgent struct {
	client            *http.Client
	allowedDomains    map[string]bool
	networkAccessOpen bool // cage's network_access_allowed bypasses the domain allowlist
	cageActive        bool
	logger            *slog.Logger
}

func NewHTTPAgent(allowedDomains []string, logger *slog.Logger) *HTTPAgent {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		m[strings.ToLower(d)] = true
	}
	return &HTTPAgent{
		client:         &http.Client{Timeout: 30 * time.Second},
		allowedDomains: m,
		logger:         logger,
	}
}

// WithNetworkAccessAllowed mirrors the cage's network_access_allowed
// override (spec.md §4.9 http row): when set, the domain allowlist check
// is bypassed entirely.
func (a *HTTPAgent) WithNetworkAccessAllowed(allowed bool) *HTTPAgent {
	a.networkAccessOpen = allowed
	return a
}

// WithCageActive records whether the cage is in its ACTIVE posture, which
// forces every target URL to use https (spec.md §4.9 http row).
func (a *HTTPAgent) WithCageActive(active bool) *HTTPAgent {
	a.cageActive = active
	return a
}

// Validate enforces spec.md §4.9's http row: `url` is required, `method`
// defaults to GET and must be one of GET/POST/PUT/PATCH/DELETE, scheme
// must be https while the cage is active, the host must
// be in the cage's domain allowlist unless network_access_allowed,
// `timeout` (if present) is at most 300s, and `max_redirects` (if
// present) is at most 10.
func (a *HTTPAgent) Validate(cfg map[string]any) error {
	raw, _ := cfg["url"].(string)
	if raw == "" {
		return fmt.Errorf("http: missing required field 'url'")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("http: invalid url: %w", err)
	}
	if a.cageActive && u.Scheme != "https" {
		return fmt.Errorf("http: security violation: url scheme must be https while the cage is active, got %q", u.Scheme)
	}
	if !a.networkAccessOpen && !a.allowedDomains[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("http: forbidden domain: %s not in allowlist", u.Hostname())
	}
	method, _ := cfg["method"].(string)
	if method == "" {
		method = "GET"
	}
	switch strings.ToUpper(method) {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
	default:
		return fmt.Errorf("http: unsupported method %q", method)
	}
	if err := validTimeout(cfg, 300, "http"); err != nil {
		return err
	}
	if v, ok := cfg["max_redirects"]; ok {
		n, ok := asInt(v)
		if !ok || n < 0 || n > 10 {
			return fmt.Errorf("http: 'max_redirects' must be between 0 and 10")
		}
	}
	return nil
}

func (a *HTTPAgent) Kind() workflow.AgentKind { return workflow.AgentHTTP }

func (a *HTTPAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	rawURL := cfg["url"].(string)
	method, _ := cfg["method"].(string)
	if method == "" {
		method = "GET"
	}

	var body io.Reader
	if payload, ok := cfg["body"].(string); ok && payload != "" {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("http: building request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http: reading response: %w", err)
	}

	a.logger.Info("agents: http call completed", "url", rawURL, "status", resp.StatusCode)
	return map[string]any{
		"status_code": resp.StatusCode,
		"response":    string(respBody),
	}, nil
}
