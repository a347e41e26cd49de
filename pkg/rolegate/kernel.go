// Package rolegate implements the two-layer role gate: a fixed role×tier
// compatibility matrix (kernel layer) followed by an overridable policy layer
// with per-agent exceptions. Both layers must pass for an operation to be
// allowed; a kernel reject is final and the policy layer is never consulted.
package rolegate

import (
	"errors"
	"fmt"
)

// Role is an agent capability level, independent of trust tier.
type Role string

const (
	RoleL0 Role = "R-L0" // listener
	RoleL1 Role = "R-L1" // responder
	RoleL2 Role = "R-L2" // task executor
	RoleL3 Role = "R-L3" // workflow manager
	RoleL4 Role = "R-L4" // domain expert
	RoleL5 Role = "R-L5" // resource controller
	RoleL6 Role = "R-L6" // system administrator
	RoleL7 Role = "R-L7" // trust governor
	RoleL8 Role = "R-L8" // ecosystem controller
)

const (
	minTier = 0
	maxTier = 5
)

var (
	ErrInvalidRole = errors.New("invalid role")
	ErrInvalidTier = errors.New("invalid tier")
)

// roleCaps is the kernel compatibility matrix, expressed as the highest tier
// each role may operate at. It is fixed and never changes at runtime.
var roleCaps = map[Role]int{
	RoleL0: 1,
	RoleL1: 2,
	RoleL2: 2,
	RoleL3: 3,
	RoleL4: 3,
	RoleL5: 4,
	RoleL6: 5,
	RoleL7: 5,
	RoleL8: 5,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleCaps[r]
	return ok
}

// ValidTier reports whether tier is in [0,5].
func ValidTier(tier int) bool {
	return tier >= minTier && tier <= maxTier
}

// ValidateRoleAndTier is the kernel-layer check: a pure lookup into the fixed
// matrix. Unknown roles or out-of-range tiers are simply incompatible.
func ValidateRoleAndTier(role Role, tier int) bool {
	limit, ok := roleCaps[role]
	if !ok || !ValidTier(tier) {
		return false
	}
	return tier <= limit
}

// MaxTierForRole returns the highest tier the kernel matrix permits for a
// role. The legacy helper of the same name returned the lowest compatible
// tier; that contract is preserved separately as MinTierForRole.
func MaxTierForRole(role Role) (int, error) {
	limit, ok := roleCaps[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return limit, nil
}

// MinTierForRole returns the lowest tier compatible with a role. Every role
// is reachable from tier 0, so this is constant; it exists to keep the legacy
// contract observable rather than silently re-pointing old callers at
// MaxTierForRole.
func MinTierForRole(role Role) (int, error) {
	if !role.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return minTier, nil
}
