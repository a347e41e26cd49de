package ceiling_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/ceiling"
	"github.com/Vorion-Labs/aci/core/pkg/contexts"
)

func mustClamp(t *testing.T, raw float64, ct contexts.ContextType) ceiling.Result {
	t.Helper()
	res, err := ceiling.ClampTrustScore(raw, ct)
	require.NoError(t, err)
	return res
}

func TestAuditLog_AddAndEntries(t *testing.T) {
	log := ceiling.NewAuditLog(16)

	entry := log.Add("agent-1", mustClamp(t, 1050, contexts.ContextEnterprise), "signal pipeline", "enforcement")
	assert.NotEmpty(t, entry.EventID)
	assert.True(t, entry.CeilingHit)
	assert.Equal(t, 1050.0, entry.RawScore)
	assert.Equal(t, 900.0, entry.ClampedScore)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, entry.EventID, entries[0].EventID)
}

func TestAuditLog_RotatesOldest(t *testing.T) {
	log := ceiling.NewAuditLog(3)

	for i := 0; i < 5; i++ {
		log.Add(fmt.Sprintf("agent-%d", i), mustClamp(t, float64(i*100), contexts.ContextSovereign), "fill")
	}

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "agent-2", entries[0].AgentID)
	assert.Equal(t, "agent-4", entries[2].AgentID)
	assert.Equal(t, 3, log.Len())
}

func TestAuditLog_ComputeStatistics(t *testing.T) {
	log := ceiling.NewAuditLog(0)

	log.Add("a", mustClamp(t, 1050, contexts.ContextEnterprise), "hit")
	log.Add("a", mustClamp(t, 400, contexts.ContextEnterprise), "miss")
	log.Add("b", mustClamp(t, 800, contexts.ContextLocal), "hit")
	log.Add("b", mustClamp(t, 100, contexts.ContextSovereign), "miss")

	stats := log.ComputeStatistics()
	assert.Equal(t, 4, stats.TotalEvents)
	assert.Equal(t, 2, stats.CeilingHits)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, 1050.0, stats.PeakRawScore)
	assert.Equal(t, 900.0, stats.PeakClampedScore)
	assert.InDelta(t, (1050+400+800+100)/4.0, stats.AvgRawScore, 1e-9)
	assert.Equal(t, 2, stats.ByContext[contexts.ContextEnterprise])
	assert.Equal(t, 1, stats.ByContext[contexts.ContextLocal])
	assert.Equal(t, 1, stats.ByContext[contexts.ContextSovereign])
}

func TestAuditLog_EmptyStatistics(t *testing.T) {
	stats := ceiling.NewAuditLog(4).ComputeStatistics()
	assert.Zero(t, stats.TotalEvents)
	assert.Zero(t, stats.HitRate)
}

func TestAuditLog_DetectCeilingAnomalies(t *testing.T) {
	log := ceiling.NewAuditLog(64)

	// agent-hot hits the ceiling half the time; agent-cold never does.
	for i := 0; i < 10; i++ {
		raw := 500.0
		if i%2 == 0 {
			raw = 1200
		}
		log.Add("agent-hot", mustClamp(t, raw, contexts.ContextEnterprise), "probe")
		log.Add("agent-cold", mustClamp(t, 300, contexts.ContextEnterprise), "probe")
	}

	anomaly := log.DetectCeilingAnomalies("agent-hot", 0) // default 5%
	require.NotNil(t, anomaly)
	assert.Equal(t, 10, anomaly.Events)
	assert.Equal(t, 5, anomaly.Hits)
	assert.InDelta(t, 0.5, anomaly.HitRate, 1e-9)
	assert.InDelta(t, ceiling.DefaultAnomalyThreshold, anomaly.Threshold, 1e-9)

	assert.Nil(t, log.DetectCeilingAnomalies("agent-cold", 0))
	assert.Nil(t, log.DetectCeilingAnomalies("agent-unknown", 0))

	// Advisory only: a generous threshold silences the flag.
	assert.Nil(t, log.DetectCeilingAnomalies("agent-hot", 0.9))
}
