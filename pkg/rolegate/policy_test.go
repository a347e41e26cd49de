package rolegate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/rolegate"
)

func newEngine(t *testing.T) *rolegate.PolicyEngine {
	t.Helper()
	pe, err := rolegate.NewPolicyEngine()
	require.NoError(t, err)
	return pe
}

func TestPolicy_DefaultAllow(t *testing.T) {
	pe := newEngine(t)

	d := pe.Evaluate("agent-1", rolegate.RoleL2, 2, "")
	assert.True(t, d.Allowed)
	assert.Equal(t, "default", d.Basis)
}

func TestPolicy_DenyRule(t *testing.T) {
	pe := newEngine(t)
	_, err := pe.AddRule(rolegate.PolicyRule{
		Role:   rolegate.RoleL2,
		Tier:   2,
		Effect: rolegate.EffectDeny,
		Reason: "task executors frozen at T2 pending review",
	})
	require.NoError(t, err)

	d := pe.Evaluate("agent-1", rolegate.RoleL2, 2, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, "rule", d.Basis)

	// Other tiers are untouched.
	assert.True(t, pe.Evaluate("agent-1", rolegate.RoleL2, 1, "").Allowed)
}

func TestPolicy_DomainScopedRuleOutranksGlobal(t *testing.T) {
	pe := newEngine(t)
	_, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL3, Tier: 3, Effect: rolegate.EffectAllow, Reason: "global allow",
	})
	require.NoError(t, err)
	_, err = pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL3, Tier: 3, Domain: "payments",
		Effect: rolegate.EffectDeny, Reason: "payments locked down",
	})
	require.NoError(t, err)

	d := pe.Evaluate("agent-1", rolegate.RoleL3, 3, "payments")
	assert.False(t, d.Allowed)
	assert.Equal(t, "payments locked down", d.Reason)

	d = pe.Evaluate("agent-1", rolegate.RoleL3, 3, "analytics")
	assert.True(t, d.Allowed)
	assert.Equal(t, "global allow", d.Reason)
}

func TestPolicy_ExceptionOverridesRule(t *testing.T) {
	pe := newEngine(t)
	_, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL4, Tier: 3, Effect: rolegate.EffectDeny, Reason: "blanket deny",
	})
	require.NoError(t, err)
	_, err = pe.AddException(rolegate.PolicyException{
		AgentID: "agent-special", Role: rolegate.RoleL4, Tier: 3,
		Effect: rolegate.EffectAllow, Reason: "incident response waiver", ApprovedBy: "governor",
	})
	require.NoError(t, err)

	assert.True(t, pe.Evaluate("agent-special", rolegate.RoleL4, 3, "").Allowed)
	assert.False(t, pe.Evaluate("agent-other", rolegate.RoleL4, 3, "").Allowed)
}

func TestPolicy_ExpiredExceptionIsAbsent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pe := newEngine(t).WithClock(func() time.Time { return now })

	_, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL4, Tier: 3, Effect: rolegate.EffectDeny, Reason: "blanket deny",
	})
	require.NoError(t, err)

	expiry := now.Add(time.Hour)
	_, err = pe.AddException(rolegate.PolicyException{
		AgentID: "agent-1", Role: rolegate.RoleL4, Tier: 3,
		Effect: rolegate.EffectAllow, Reason: "waiver", ExpiresAt: &expiry,
	})
	require.NoError(t, err)

	assert.True(t, pe.Evaluate("agent-1", rolegate.RoleL4, 3, "").Allowed)

	now = now.Add(2 * time.Hour)
	d := pe.Evaluate("agent-1", rolegate.RoleL4, 3, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, "rule", d.Basis)
}

func TestPolicy_CELCondition(t *testing.T) {
	pe := newEngine(t)
	_, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL2, Tier: 2, Effect: rolegate.EffectDeny,
		Reason:    "staging agents denied",
		Condition: `agent.startsWith("staging-")`,
	})
	require.NoError(t, err)

	assert.False(t, pe.Evaluate("staging-7", rolegate.RoleL2, 2, "").Allowed)
	assert.True(t, pe.Evaluate("prod-7", rolegate.RoleL2, 2, "").Allowed)
}

func TestPolicy_InvalidCELConditionRejected(t *testing.T) {
	pe := newEngine(t)
	_, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL2, Tier: 2, Effect: rolegate.EffectDeny,
		Condition: "this is not CEL ((",
	})
	assert.Error(t, err)
}

func TestPolicy_VersionBumpsOnMutation(t *testing.T) {
	pe := newEngine(t)
	v0 := pe.Version()

	id, err := pe.AddRule(rolegate.PolicyRule{
		Role: rolegate.RoleL1, Tier: 1, Effect: rolegate.EffectDeny, Reason: "x",
	})
	require.NoError(t, err)
	v1 := pe.Version()
	assert.Greater(t, v1, v0)

	_, err = pe.AddException(rolegate.PolicyException{
		AgentID: "a", Role: rolegate.RoleL1, Tier: 1, Effect: rolegate.EffectAllow, Reason: "y",
	})
	require.NoError(t, err)
	v2 := pe.Version()
	assert.Greater(t, v2, v1)

	assert.True(t, pe.RemoveRule(id))
	assert.Greater(t, pe.Version(), v2)

	// No-op removals do not bump.
	v3 := pe.Version()
	assert.False(t, pe.RemoveRule("missing"))
	assert.Equal(t, v3, pe.Version())
}

func TestPolicy_AuditTrail(t *testing.T) {
	pe := newEngine(t)

	pe.Evaluate("agent-1", rolegate.RoleL2, 2, "ops")
	pe.Evaluate("agent-1", rolegate.RoleL2, 1, "")
	pe.Evaluate("agent-2", rolegate.RoleL0, 0, "")

	trail := pe.Trail("agent-1")
	require.Len(t, trail, 2)
	assert.Equal(t, "ops", trail[0].Domain)
	assert.NotEmpty(t, trail[0].EvaluationID)
	assert.Len(t, pe.Trail("agent-2"), 1)
	assert.Empty(t, pe.Trail("agent-3"))
}

func TestPolicy_RejectsInvalidInputs(t *testing.T) {
	pe := newEngine(t)

	_, err := pe.AddRule(rolegate.PolicyRule{Role: "R-L9", Tier: 1, Effect: rolegate.EffectDeny})
	assert.ErrorIs(t, err, rolegate.ErrInvalidRole)

	_, err = pe.AddRule(rolegate.PolicyRule{Role: rolegate.RoleL1, Tier: 9, Effect: rolegate.EffectDeny})
	assert.ErrorIs(t, err, rolegate.ErrInvalidTier)

	_, err = pe.AddRule(rolegate.PolicyRule{Role: rolegate.RoleL1, Tier: 1, Effect: "maybe"})
	assert.Error(t, err)

	_, err = pe.AddException(rolegate.PolicyException{Role: rolegate.RoleL1, Tier: 1, Effect: rolegate.EffectAllow})
	assert.Error(t, err) // missing agent id
}

func TestValidator_KernelRejectSkipsPolicy(t *testing.T) {
	pe := newEngine(t)
	// An exception that would allow, if policy were consulted.
	_, err := pe.AddException(rolegate.PolicyException{
		AgentID: "agent-1", Role: rolegate.RoleL0, Tier: 2,
		Effect: rolegate.EffectAllow, Reason: "should never apply",
	})
	require.NoError(t, err)

	v := rolegate.NewValidator(pe)
	d := v.Evaluate("agent-1", rolegate.RoleL0, 2, "")
	assert.False(t, d.Allowed)
	assert.Equal(t, "kernel", d.Basis)
	assert.Empty(t, pe.Trail("agent-1"), "policy layer must not be consulted on kernel reject")
}

func TestValidator_KernelAllowDelegatesToPolicy(t *testing.T) {
	pe := newEngine(t)
	v := rolegate.NewValidator(pe)

	d := v.Evaluate("agent-1", rolegate.RoleL8, 5, "")
	assert.True(t, d.Allowed)
	assert.Equal(t, "default", d.Basis)
	assert.Len(t, pe.Trail("agent-1"), 1)
}
