package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/akios/akios/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookAgentValidateRejectsNonAllowlistedDomain(t *testing.T) {
	a := NewWebhookAgent([]string{"example.com"}, nil)
	err := a.Validate(map[string]any{"url": "https://evil.example.net/hook", "payload": map[string]any{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden domain")
}

func TestWebhookAgentValidateRequiresPayload(t *testing.T) {
	a := NewWebhookAgent([]string{"example.com"}, nil)
	err := a.Validate(map[string]any{"url": "https://example.com/hook"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload")
}

func TestWebhookAgentValidateEnforcesHTTPSWhenCageActive(t *testing.T) {
	a := NewWebhookAgent([]string{"example.com"}, nil).WithCageActive(true)
	err := a.Validate(map[string]any{"url": "http://example.com/hook", "payload": map[string]any{"a": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https")
}

func TestWebhookAgentValidateRejectsUnknownPlatform(t *testing.T) {
	a := NewWebhookAgent([]string{"example.com"}, nil)
	err := a.Validate(map[string]any{"url": "https://example.com/hook", "payload": map[string]any{"a": 1}, "platform": "carrier-pigeon"})
	require.Error(t, err)

	require.NoError(t, a.Validate(map[string]any{"url": "https://example.com/hook", "payload": map[string]any{"a": 1}, "platform": "slack"}))
}

func TestWebhookAgentValidateRejectsOversizedTimeout(t *testing.T) {
	a := NewWebhookAgent([]string{"example.com"}, nil)
	err := a.Validate(map[string]any{"url": "https://example.com/hook", "payload": map[string]any{"a": 1}, "timeout": 31})
	require.Error(t, err)
}

func TestWebhookAgentExecuteDeliversJSONPost(t *testing.T) {
	var gotBody map[string]any
	var gotMethod, gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	a := NewWebhookAgent([]string{u.Hostname()}, nil)
	cfg := map[string]any{"url": server.URL + "/hook", "payload": map[string]any{"event": "step_complete"}}
	require.NoError(t, a.Validate(cfg))

	out, err := a.Execute(context.Background(), cfg, workflow.NewExecutionContext("wf", "run-1"))
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, http.StatusAccepted, result["status_code"])
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "step_complete", gotBody["event"])
}
