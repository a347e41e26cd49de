package rolegate

// Validator combines the kernel matrix with the policy layer. A kernel reject
// is an immediate deny; the policy layer is only consulted on kernel allow.
type Validator struct {
	policy *PolicyEngine
}

// NewValidator creates a validator around a policy engine.
func NewValidator(policy *PolicyEngine) *Validator {
	return &Validator{policy: policy}
}

// Policy exposes the underlying policy engine for rule management.
func (v *Validator) Policy() *PolicyEngine {
	return v.policy
}

// Evaluate runs both layers for one operation.
func (v *Validator) Evaluate(agentID string, role Role, tier int, domain string) Decision {
	if !ValidateRoleAndTier(role, tier) {
		return Decision{
			Allowed: false,
			Reason:  "role/tier combination rejected by kernel matrix",
			Basis:   "kernel",
		}
	}
	return v.policy.Evaluate(agentID, role, tier, domain)
}
