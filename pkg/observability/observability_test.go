package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Vorion-Labs/aci/core/pkg/events"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "aci-core", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}

func TestTrackOperation(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, finish := p.TrackOperation(context.Background(), "trust.record_signal",
		attribute.String("aci.entity.id", "agent-1"))
	require.NotNil(t, newCtx)

	time.Sleep(time.Millisecond)
	finish(nil)

	_, finish = p.TrackOperation(context.Background(), "trust.record_signal")
	finish(errors.New("store unavailable"))
}

func TestRecordMetricsDisabledProviderDoesNotPanic(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordRequest(ctx)
	p.RecordError(ctx, errors.New("x"))
	p.RecordDuration(ctx, 100*time.Millisecond)
	p.RecordSignal(ctx)
	p.RecordCeilingHit(ctx)
	p.RecordPolicyDenial(ctx)
	p.RecordTierChange(ctx)
}

func TestStartSpan(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	newCtx, span := p.StartSpan(context.Background(), "test.span")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestShutdown(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestWatchConsumesTrustEvents(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	bus := events.NewBus()
	detach := Watch(bus, p)
	defer detach()

	// With a disabled provider the instruments are nil; the watcher must
	// still consume every payload type without panicking.
	bus.Publish(trust.TopicFailureDetected, trust.FailureEvent{EntityID: "agent-1", SignalValue: 0.1})
	bus.Publish(trust.TopicRecoveryApplied, trust.RecoveryEvent{EntityID: "agent-1", Amount: 50})
	bus.Publish(trust.TopicTierChanged, trust.TierChangeEvent{EntityID: "agent-1", FromTier: 1, ToTier: 2, Direction: "promoted"})
}

func TestSignalAttrs(t *testing.T) {
	attrs := SignalAttrs("agent-1", "task_completion")
	require.Len(t, attrs, 2)
	require.Equal(t, "aci.entity.id", string(attrs[0].Key))
	require.Equal(t, "agent-1", attrs[0].Value.AsString())
}

func TestAuthorizationAttrs(t *testing.T) {
	attrs := AuthorizationAttrs("agent-1", "R-L4", "payments", "rule", 3)
	require.Len(t, attrs, 5)
	require.Equal(t, "aci.policy.basis", string(attrs[3].Key))
	require.Equal(t, "rule", attrs[3].Value.AsString())
}
