package canonicalize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/canonicalize"
)

func TestJCS_KeyOrdering(t *testing.T) {
	a, err := canonicalize.JCS(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(a))
}

func TestJCS_Deterministic(t *testing.T) {
	type rec struct {
		Agent  string `json:"agent_id"`
		Tenant string `json:"tenant_id"`
		Rank   int    `json:"rank"`
	}
	v := rec{Agent: "agent-1", Tenant: "tenant-1", Rank: 2}

	first, err := canonicalize.JCS(v)
	require.NoError(t, err)
	second, err := canonicalize.JCS(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalHash_FieldSensitivity(t *testing.T) {
	h1, err := canonicalize.CanonicalHash(map[string]any{"agent": "a", "tier": 3})
	require.NoError(t, err)
	h2, err := canonicalize.CanonicalHash(map[string]any{"agent": "a", "tier": 4})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(h1, "sha256:"))
	assert.NotEqual(t, h1, h2)
}

func TestJCS_RejectsUnmarshalable(t *testing.T) {
	_, err := canonicalize.JCS(make(chan int))
	assert.Error(t, err)
}
