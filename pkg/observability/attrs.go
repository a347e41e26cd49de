package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attributes for trust engine telemetry.
var (
	AttrEntityID    = attribute.Key("aci.entity.id")
	AttrTenantID    = attribute.Key("aci.tenant.id")
	AttrContextType = attribute.Key("aci.context.type")

	AttrTier      = attribute.Key("aci.tier")
	AttrScore     = attribute.Key("aci.score")
	AttrProfile   = attribute.Key("aci.profile")
	AttrSignal    = attribute.Key("aci.signal.type")
	AttrDirection = attribute.Key("aci.tier.direction")

	AttrRole         = attribute.Key("aci.policy.role")
	AttrDomain       = attribute.Key("aci.policy.domain")
	AttrDecisionBase = attribute.Key("aci.policy.basis")
)

// SignalAttrs builds attributes for one recorded signal.
func SignalAttrs(entityID, signalType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEntityID.String(entityID),
		AttrSignal.String(signalType),
	}
}

// AuthorizationAttrs builds attributes for one authorization check.
func AuthorizationAttrs(entityID, role, domain, basis string, tier int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEntityID.String(entityID),
		AttrRole.String(role),
		AttrDomain.String(domain),
		AttrDecisionBase.String(basis),
		AttrTier.Int(tier),
	}
}
