package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Vorion-Labs/aci/core/pkg/events"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// Watch subscribes the provider's domain counters to the trust event stream.
// The returned function detaches the subscription.
func Watch(bus *events.Bus, p *Provider) func() {
	ctx := context.Background()
	return bus.Subscribe("trust.*", func(evt events.Event) {
		switch payload := evt.Payload.(type) {
		case trust.FailureEvent:
			p.RecordSignal(ctx,
				attribute.String("entity", payload.EntityID),
				attribute.String("outcome", "failure"),
			)
		case trust.RecoveryEvent:
			p.RecordSignal(ctx,
				attribute.String("entity", payload.EntityID),
				attribute.String("outcome", "success"),
			)
		case trust.TierChangeEvent:
			p.RecordTierChange(ctx,
				attribute.String("entity", payload.EntityID),
				attribute.String("direction", payload.Direction),
				attribute.Int("to_tier", payload.ToTier),
			)
		}
	})
}
