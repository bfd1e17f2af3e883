package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akios/akios/pkg/audit"
	"github.com/akios/akios/pkg/workflow"
)

type fakeAgent struct{ kind workflow.AgentKind }

func (a *fakeAgent) Kind() workflow.AgentKind         { return a.kind }
func (a *fakeAgent) Validate(map[string]any) error    { return nil }
func (a *fakeAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	return map[string]any{"text": "ok"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	wfPath := filepath.Join(dir, "greet.yaml")
	require.NoError(t, os.WriteFile(wfPath, []byte(strings.TrimSpace(`
id: greet
name: Greeting
steps:
  - id: step-a
    agent: llm
    config:
      prompt: hello
`)), 0o600))

	store, err := NewWorkflowStore(dir)
	require.NoError(t, err)

	ledger, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	registry := workflow.NewRegistry()
	registry.Register(&fakeAgent{kind: workflow.AgentLLM})

	executor := workflow.NewStepExecutor(registry, ledger, nil)
	engine := workflow.NewEngine(executor, ledger, t.TempDir(), nil)

	budget := workflow.BudgetConfig{MaxTokensPerCall: 4096, BudgetLimitUSD: 5.0, MaxSteps: 20, MaxDurationSeconds: 300}
	return NewServer(engine, registry, ledger, nil, store, budget, nil)
}

func TestHealthHandlerReturnsHealthy(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestListWorkflowsHandlerReturnsLoadedWorkflow(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Workflows []WorkflowSummary `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Workflows, 1)
	assert.Equal(t, "greet", body.Workflows[0].ID)
}

func TestRunWorkflowHandlerExecutesAndRecordsStatus(t *testing.T) {
	s := newTestServer(t)

	reqBody := strings.NewReader(`{"workflow_id":"greet","run_id":"run-1"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflows/run", reqBody)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var runResp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runResp))
	assert.Equal(t, "success", runResp.Status)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/workflows/greet/status", nil)
	s.router.ServeHTTP(w2, req2)

	var statusResp StatusResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &statusResp))
	assert.True(t, statusResp.Found)
	require.NotNil(t, statusResp.LastRun)
	assert.Equal(t, "run-1", statusResp.LastRun.RunID)
}

func TestRunWorkflowHandlerUnknownWorkflowReturns404(t *testing.T) {
	s := newTestServer(t)
	reqBody := strings.NewReader(`{"workflow_id":"missing"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflows/run", reqBody)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditEventsHandlerReturnsRecordedEvents(t *testing.T) {
	s := newTestServer(t)
	reqBody := strings.NewReader(`{"workflow_id":"greet"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflows/run", reqBody)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/audit/events?limit=10", nil)
	s.router.ServeHTTP(w2, req2)

	require.Equal(t, http.StatusOK, w2.Code)
	var body struct {
		Events []AuditEventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Events)
}
