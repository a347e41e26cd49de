package provenance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/provenance"
)

func TestComputeInitialTrustScore(t *testing.T) {
	tests := []struct {
		ct   provenance.CreationType
		want float64
	}{
		{provenance.CreationFresh, 250},
		{provenance.CreationCloned, 200},
		{provenance.CreationEvolved, 275},
		{provenance.CreationPromoted, 300},
		{provenance.CreationImported, 150},
	}
	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			got, err := provenance.ComputeInitialTrustScore(tt.ct)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeInitialTrustScore_Invalid(t *testing.T) {
	_, err := provenance.ComputeInitialTrustScore("spawned")
	assert.ErrorIs(t, err, provenance.ErrInvalidCreationType)
}

func TestNewCreationInfo(t *testing.T) {
	info, err := provenance.NewCreationInfo(provenance.CreationCloned, "agent-1", "agent-0", "factory")
	require.NoError(t, err)

	assert.Equal(t, provenance.CreationCloned, info.CreationType())
	assert.Equal(t, "agent-0", info.ParentAgentID())
	assert.Contains(t, info.CreationHash(), "sha256:")
	assert.NoError(t, info.VerifyIntegrity())
}

func TestNewCreationInfo_ParentRules(t *testing.T) {
	_, err := provenance.NewCreationInfo(provenance.CreationCloned, "agent-1", "", "factory")
	assert.Error(t, err, "cloned requires a parent")

	_, err = provenance.NewCreationInfo(provenance.CreationEvolved, "agent-1", "", "factory")
	assert.Error(t, err, "evolved requires a parent")

	_, err = provenance.NewCreationInfo(provenance.CreationFresh, "agent-1", "agent-0", "factory")
	assert.Error(t, err, "fresh cannot have a parent")

	_, err = provenance.NewCreationInfo(provenance.CreationFresh, "agent-1", "", "factory")
	assert.NoError(t, err)
}

func TestLedger_CreationIsUnique(t *testing.T) {
	ledger := provenance.NewLedger()

	_, err := ledger.CreateCreationInfo(provenance.CreationFresh, "agent-1", "", "factory")
	require.NoError(t, err)

	_, err = ledger.CreateCreationInfo(provenance.CreationImported, "agent-1", "", "factory")
	assert.ErrorIs(t, err, provenance.ErrCreationExists)

	assert.NotNil(t, ledger.Creation("agent-1"))
	assert.Nil(t, ledger.Creation("agent-2"))
}

func TestLedger_RecordMigration(t *testing.T) {
	ledger := provenance.NewLedger()
	_, err := ledger.CreateCreationInfo(provenance.CreationFresh, "agent-1", "", "factory")
	require.NoError(t, err)

	evt, err := ledger.RecordMigration("agent-1", provenance.CreationFresh, provenance.CreationPromoted, "graduated probation", "governor")
	require.NoError(t, err)
	assert.Contains(t, evt.EventHash, "sha256:")

	// Original creation record is untouched.
	assert.Equal(t, provenance.CreationFresh, ledger.Creation("agent-1").CreationType())
	assert.Equal(t, provenance.CreationPromoted, ledger.EffectiveType("agent-1"))

	history := ledger.MigrationHistory("agent-1")
	require.Len(t, history, 1)
	assert.Equal(t, "governor", history[0].Actor)
}

func TestLedger_MigrationMustChainFromCurrentType(t *testing.T) {
	ledger := provenance.NewLedger()
	_, err := ledger.CreateCreationInfo(provenance.CreationFresh, "agent-1", "", "factory")
	require.NoError(t, err)

	_, err = ledger.RecordMigration("agent-1", provenance.CreationImported, provenance.CreationPromoted, "bad chain", "governor")
	assert.Error(t, err)

	_, err = ledger.RecordMigration("agent-1", provenance.CreationFresh, provenance.CreationEvolved, "ok", "governor")
	require.NoError(t, err)

	// Next migration chains from the latest target.
	_, err = ledger.RecordMigration("agent-1", provenance.CreationFresh, provenance.CreationPromoted, "stale from", "governor")
	assert.Error(t, err)
	_, err = ledger.RecordMigration("agent-1", provenance.CreationEvolved, provenance.CreationPromoted, "ok", "governor")
	assert.NoError(t, err)
}

func TestLedger_AllMigrations(t *testing.T) {
	ledger := provenance.NewLedger()
	for _, id := range []string{"a", "b"} {
		_, err := ledger.CreateCreationInfo(provenance.CreationFresh, id, "", "factory")
		require.NoError(t, err)
		_, err = ledger.RecordMigration(id, provenance.CreationFresh, provenance.CreationEvolved, "r", "actor")
		require.NoError(t, err)
	}
	assert.Len(t, ledger.AllMigrations(), 2)
}
