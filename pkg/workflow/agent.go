package workflow

import "context"

// Agent is the interface every AgentKind implementation satisfies. Go
// has no class hierarchy to dispatch on, so the engine switches on
// AgentKind to pick a concrete Agent rather than relying on runtime
// polymorphism alone (spec.md §9 "Design Notes" — tagged variant +
// interface replaces inheritance).
type Agent interface {
	Kind() AgentKind

	// Validate checks a step's config map against this agent's required
	// fields and cage policy (spec.md §4.9's per-agent validation
	// table), before any side-effecting call is made.
	Validate(cfg map[string]any) error

	// Execute runs the step once (retries are the step executor's
	// responsibility, not the agent's) and returns the raw result for
	// ExtractOutput to canonicalize.
	Execute(ctx context.Context, cfg map[string]any, ec *ExecutionContext) (any, error)
}

// Registry maps AgentKind to its Agent implementation, built once at
// engine construction from the resolved config and cage policy.
type Registry struct {
	agents map[AgentKind]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[AgentKind]Agent)}
}

func (r *Registry) Register(a Agent) {
	r.agents[a.Kind()] = a
}

func (r *Registry) Lookup(kind AgentKind) (Agent, bool) {
	a, ok := r.agents[kind]
	return a, ok
}
