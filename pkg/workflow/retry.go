package workflow

import "time"

// RetryPolicy is the per-agent-kind retry table from spec.md §4.9: LLM
// and HTTP calls tolerate transient failures, filesystem and database
// agents do not retry (a failed write is not safely idempotent without
// agent-specific knowledge this engine doesn't have).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     float64 // multiplier applied to BaseDelay per extra attempt
}

var defaultRetryPolicies = map[AgentKind]RetryPolicy{
	AgentLLM:          {MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Backoff: 2.0},
	AgentHTTP:         {MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, Backoff: 2.0},
	AgentWebhook:      {MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, Backoff: 2.0},
	AgentToolExecutor: {MaxAttempts: 1, BaseDelay: 0, Backoff: 1.0},
	AgentFilesystem:   {MaxAttempts: 1, BaseDelay: 0, Backoff: 1.0},
	AgentDatabase:     {MaxAttempts: 1, BaseDelay: 0, Backoff: 1.0},
}

// PolicyFor resolves the retry policy for an agent kind, applying a
// step's RetryOverride to narrow (never widen) MaxAttempts.
func PolicyFor(kind AgentKind, override *RetryOverride) RetryPolicy {
	p, ok := defaultRetryPolicies[kind]
	if !ok {
		p = RetryPolicy{MaxAttempts: 1, BaseDelay: 0, Backoff: 1.0}
	}
	if override != nil && override.MaxAttempts > 0 && override.MaxAttempts < p.MaxAttempts {
		p.MaxAttempts = override.MaxAttempts
	}
	return p
}

// DelayFor returns the backoff delay before retry attempt N (1-based:
// attempt 1 is the first retry after the initial try).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Backoff
	}
	return time.Duration(d)
}
