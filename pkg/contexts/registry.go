package contexts

import (
	"fmt"
	"sync"
	"time"
)

// CreationLogEntry records one successful context creation for a tenant.
// The log is append-only; entries are never rewritten.
type CreationLogEntry struct {
	AgentID     string      `json:"agent_id"`
	ContextType ContextType `json:"context_type"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	ContextHash string      `json:"context_hash"`
}

type tenantState struct {
	maxContext  ContextType
	creationLog []CreationLogEntry
}

// Registry is the multi-tenant context factory. It owns every AgentContext it
// creates, enforces the per-tenant context ceiling, and makes recreation of
// an already-contexted agent structurally impossible.
type Registry struct {
	mu       sync.RWMutex
	tenants  map[string]*tenantState
	contexts map[string]*AgentContext // agentID -> context
	clock    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tenants:  make(map[string]*tenantState),
		contexts: make(map[string]*AgentContext),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// RegisterTenant declares a tenant and the most privileged context class any
// of its agents may be given. Re-registering updates the ceiling but never
// touches existing contexts.
func (r *Registry) RegisterTenant(tenantID string, maxContext ContextType) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidContextType)
	}
	if !maxContext.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidContextType, maxContext)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tenants[tenantID]; ok {
		st.maxContext = maxContext
		return nil
	}
	r.tenants[tenantID] = &tenantState{maxContext: maxContext}
	return nil
}

// CreateContextForTenant creates the one and only context for an agent within
// a registered tenant. It fails if the tenant is unknown, the requested class
// exceeds the tenant ceiling, or the agent is already contexted.
func (r *Registry) CreateContextForTenant(contextType ContextType, agentID, tenantID, createdBy string) (*AgentContext, error) {
	if !contextType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContextType, contextType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tenant, ok := r.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	if rank(contextType) > rank(tenant.maxContext) {
		return nil, fmt.Errorf("%w: tenant %s allows at most %s, requested %s",
			ErrTenantCeilingExceeded, tenantID, tenant.maxContext, contextType)
	}
	if existing, ok := r.contexts[agentID]; ok {
		return nil, fmt.Errorf("%w: agent %s already holds a %s context",
			ErrContextExists, agentID, existing.contextType)
	}

	ctx, err := newAt(contextType, agentID, tenantID, createdBy, r.clock())
	if err != nil {
		return nil, err
	}

	r.contexts[agentID] = ctx
	tenant.creationLog = append(tenant.creationLog, CreationLogEntry{
		AgentID:     agentID,
		ContextType: contextType,
		CreatedBy:   createdBy,
		CreatedAt:   ctx.createdAt,
		ContextHash: ctx.contextHash,
	})
	return ctx, nil
}

// Get returns the context for an agent, or nil when none exists.
func (r *Registry) Get(agentID string) *AgentContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[agentID]
}

// CreationLog returns a copy of the tenant's append-only creation log.
func (r *Registry) CreationLog(tenantID string) []CreationLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, ok := r.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]CreationLogEntry, len(tenant.creationLog))
	copy(out, tenant.creationLog)
	return out
}

// SweepReport summarizes a global integrity sweep.
type SweepReport struct {
	Valid   int      `json:"valid"`
	Invalid int      `json:"invalid"`
	Bad     []string `json:"bad,omitempty"` // agent ids failing verification
}

// VerifyAllContexts re-verifies every context in the registry and reports
// valid/invalid counts. Failing contexts are reported, not removed.
func (r *Registry) VerifyAllContexts() SweepReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var report SweepReport
	for agentID, ctx := range r.contexts {
		if err := ctx.VerifyIntegrity(); err != nil {
			report.Invalid++
			report.Bad = append(report.Bad, agentID)
			continue
		}
		report.Valid++
	}
	return report
}
