// Package contexts implements the immutable per-agent authorization context
// and the multi-tenant registry that creates and verifies it. A context binds
// an agent to a tenant and to a ceiling class (local, enterprise, sovereign)
// exactly once; any later attempt to recreate or alter it is rejected.
package contexts

import (
	"errors"
	"fmt"
	"time"

	"github.com/Vorion-Labs/aci/core/pkg/canonicalize"
)

func digest(v interface{}) (string, error) {
	return canonicalize.CanonicalHash(v)
}

// ContextType classifies the ceiling class of an agent context.
type ContextType string

const (
	ContextLocal      ContextType = "local"
	ContextEnterprise ContextType = "enterprise"
	ContextSovereign  ContextType = "sovereign"
)

var (
	ErrInvalidContextType = errors.New("invalid context type")
	ErrContextExists      = errors.New("context already exists for agent")
	ErrIntegrityViolation = errors.New("context integrity violation")
	ErrTenantNotFound     = errors.New("tenant not registered")
	ErrTenantCeilingExceeded = errors.New("requested context exceeds tenant ceiling")
)

// rank orders context types by privilege. Unknown types rank below local.
func rank(ct ContextType) int {
	switch ct {
	case ContextLocal:
		return 0
	case ContextEnterprise:
		return 1
	case ContextSovereign:
		return 2
	default:
		return -1
	}
}

// Valid reports whether ct is a known context type.
func (ct ContextType) Valid() bool {
	return rank(ct) >= 0
}

// AgentContext is the immutable (tenant, agent) context record. All fields
// are unexported; the record can only be constructed through New and never
// changes afterward.
type AgentContext struct {
	contextType ContextType
	agentID     string
	tenantID    string
	createdAt   time.Time
	createdBy   string
	contextHash string
}

// contextDigestFields is the canonical hash input. The digest covers every
// field except the digest itself.
type contextDigestFields struct {
	ContextType ContextType `json:"context_type"`
	AgentID     string      `json:"agent_id"`
	TenantID    string      `json:"tenant_id"`
	CreatedAt   string      `json:"created_at"`
	CreatedBy   string      `json:"created_by"`
}

// New validates the inputs and returns a sealed AgentContext with its
// integrity digest computed over the canonical form of the other fields.
func New(contextType ContextType, agentID, tenantID, createdBy string) (*AgentContext, error) {
	return newAt(contextType, agentID, tenantID, createdBy, time.Now().UTC())
}

func newAt(contextType ContextType, agentID, tenantID, createdBy string, at time.Time) (*AgentContext, error) {
	if !contextType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContextType, contextType)
	}
	if agentID == "" || tenantID == "" {
		return nil, fmt.Errorf("%w: agent and tenant ids are required", ErrInvalidContextType)
	}

	ac := &AgentContext{
		contextType: contextType,
		agentID:     agentID,
		tenantID:    tenantID,
		createdAt:   at,
		createdBy:   createdBy,
	}
	hash, err := ac.computeDigest()
	if err != nil {
		return nil, err
	}
	ac.contextHash = hash
	return ac, nil
}

func (c *AgentContext) computeDigest() (string, error) {
	return digest(contextDigestFields{
		ContextType: c.contextType,
		AgentID:     c.agentID,
		TenantID:    c.tenantID,
		CreatedAt:   c.createdAt.Format(time.RFC3339Nano),
		CreatedBy:   c.createdBy,
	})
}

// VerifyIntegrity recomputes the digest and compares it with the stored one.
// A mismatch is surfaced as ErrIntegrityViolation for manual audit; it is
// never silently repaired.
func (c *AgentContext) VerifyIntegrity() error {
	recomputed, err := c.computeDigest()
	if err != nil {
		return err
	}
	if recomputed != c.contextHash {
		return fmt.Errorf("%w: agent %s (stored %s, recomputed %s)",
			ErrIntegrityViolation, c.agentID, c.contextHash, recomputed)
	}
	return nil
}

func (c *AgentContext) ContextType() ContextType { return c.contextType }
func (c *AgentContext) AgentID() string          { return c.agentID }
func (c *AgentContext) TenantID() string         { return c.tenantID }
func (c *AgentContext) CreatedAt() time.Time     { return c.createdAt }
func (c *AgentContext) CreatedBy() string        { return c.createdBy }
func (c *AgentContext) ContextHash() string      { return c.contextHash }

// ValidateContextForOperation reports whether an agent holding ctx may act in
// an operation demanding the required context class. An agent may act in any
// class no more privileged than its own.
func ValidateContextForOperation(ctx *AgentContext, required ContextType) bool {
	if ctx == nil || !required.Valid() {
		return false
	}
	return rank(ctx.contextType) >= rank(required)
}

// ValidateTenantIsolation reports whether ctx may touch resources of the
// target tenant. Only an exact tenant match passes; there is no cross-tenant
// visibility of any kind.
func ValidateTenantIsolation(ctx *AgentContext, targetTenantID string) bool {
	if ctx == nil || targetTenantID == "" {
		return false
	}
	return ctx.tenantID == targetTenantID
}
