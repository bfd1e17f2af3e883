package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akios/akios/pkg/workflow"
)

// statusHandler handles GET /status: the cage's current security
// posture, distinct from /health's liveness-only check.
func (s *Server) statusHandler(c *gin.Context) {
	if s.cage == nil {
		c.JSON(http.StatusOK, gin.H{"posture": "UNKNOWN"})
		return
	}

	state, posture, err := s.cage.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posture":           string(posture),
		"pii_redaction":     state.PIIRedaction,
		"network_locked":    state.NetworkLocked,
		"sandbox_enabled":   state.SandboxEnabled,
		"audit_enabled":     state.AuditEnabled,
		"cost_kill_enabled": state.CostKillEnabled,
		"budget_usd":        state.BudgetUSD,
	})
}

// listWorkflowsHandler handles GET /workflows.
func (s *Server) listWorkflowsHandler(c *gin.Context) {
	ids := s.workflows.List()
	summaries := make([]WorkflowSummary, 0, len(ids))
	for _, id := range ids {
		wf, ok := s.workflows.Get(id)
		if !ok {
			continue
		}
		summaries = append(summaries, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			Steps:       len(wf.Steps),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workflows": summaries})
}

// runWorkflowHandler handles POST /workflows/run. Workflows run
// synchronously to completion: spec.md §1's sequential, non-looping
// design means a run's wall-clock time is bounded by its step count and
// each agent's own timeout, not open-ended.
func (s *Server) runWorkflowHandler(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	wf, ok := s.workflows.Get(req.WorkflowID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "workflow not found: " + req.WorkflowID})
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	ks := s.killSwitchFor(wf)
	result, err := s.engine.Run(c.Request.Context(), wf, runID, ks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	s.workflows.RecordRun(wf.ID, result)
	c.JSON(http.StatusOK, toRunResponse(result))
}

// workflowStatusHandler handles GET /workflows/:id/status.
func (s *Server) workflowStatusHandler(c *gin.Context) {
	id := c.Param("id")
	_, found := s.workflows.Get(id)

	resp := StatusResponse{WorkflowID: id, Found: found}
	if last, ok := s.workflows.LastRun(id); ok {
		rr := toRunResponse(last)
		resp.LastRun = &rr
	}
	c.JSON(http.StatusOK, resp)
}

// auditEventsHandler handles GET /audit/events?limit=N.
func (s *Server) auditEventsHandler(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}

	events := s.ledger.Recent(limit)
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			WorkflowID: e.WorkflowID,
			Step:       e.Step,
			Agent:      e.Agent,
			Action:     e.Action,
			Result:     string(e.Result),
			Metadata:   e.Metadata,
			Timestamp:  e.Timestamp,
			Hash:       e.Hash,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

// auditVerifyHandler handles GET /audit/verify: recomputes the Merkle
// root over the active segment and compares it to the persisted root
// (spec.md §4.4, Testable Property 2).
func (s *Server) auditVerifyHandler(c *gin.Context) {
	valid, err := s.ledger.VerifyIntegrity()
	resp := AuditVerifyResponse{
		Valid:      valid,
		RootHash:   s.ledger.RootHash(),
		EventCount: s.ledger.EventCount(),
	}
	if err != nil {
		resp.Error = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) killSwitchFor(wf *workflow.Workflow) *workflow.KillSwitch {
	budget := s.defaultBudget
	if wf.Budget != nil {
		budget = *wf.Budget
	}
	maxDuration := time.Duration(budget.MaxDurationSeconds) * time.Second
	return workflow.NewKillSwitch(budget.BudgetLimitUSD, budget.MaxTokensPerCall, budget.MaxSteps, maxDuration)
}

func toRunResponse(r *workflow.RunResult) RunResponse {
	return RunResponse{
		WorkflowID: r.WorkflowID,
		RunID:      r.RunID,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errInvalidInt
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errInvalidInt
	}
	return n, nil
}
