package api

import "time"

// RunRequest is the body of POST /workflows/run.
type RunRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
	RunID      string `json:"run_id"`
}

// RunResponse is returned by POST /workflows/run.
type RunResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// StatusResponse is returned by GET /workflows/:id/status.
type StatusResponse struct {
	WorkflowID string `json:"workflow_id"`
	Found      bool   `json:"found"`
	LastRun    *RunResponse `json:"last_run,omitempty"`
}

// WorkflowSummary describes one entry in GET /workflows.
type WorkflowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       int    `json:"steps"`
}

// AuditEventResponse is one entry in GET /audit/events.
type AuditEventResponse struct {
	WorkflowID string         `json:"workflow_id"`
	Step       int            `json:"step"`
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Result     string         `json:"result"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Hash       string         `json:"hash"`
}

// AuditVerifyResponse is returned by GET /audit/verify.
type AuditVerifyResponse struct {
	Valid     bool   `json:"valid"`
	RootHash  string `json:"root_hash"`
	EventCount int64 `json:"event_count"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the body of any non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
