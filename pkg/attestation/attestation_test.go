package attestation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vorion-Labs/aci/core/pkg/attestation"
	"github.com/Vorion-Labs/aci/core/pkg/contexts"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	issuer, err := attestation.NewIssuer(testKey, attestation.WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, err := issuer.Issue("agent-1", 3, 612.5, contexts.ContextEnterprise, "acme", 5*time.Minute)
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.Subject)
	assert.Equal(t, 3, claims.Tier)
	assert.Equal(t, 612.5, claims.Score)
	assert.Equal(t, contexts.ContextEnterprise, claims.ContextType)
	assert.Equal(t, "acme", claims.TenantID)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	issuer, err := attestation.NewIssuer(testKey, attestation.WithClock(fixedClock(issued)))
	require.NoError(t, err)

	token, err := issuer.Issue("agent-1", 2, 400, contexts.ContextLocal, "acme", time.Minute)
	require.NoError(t, err)

	later, err := attestation.NewIssuer(testKey, attestation.WithClock(fixedClock(issued.Add(2*time.Minute))))
	require.NoError(t, err)
	_, err = later.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer, err := attestation.NewIssuer(testKey)
	require.NoError(t, err)
	token, err := issuer.Issue("agent-1", 2, 400, contexts.ContextLocal, "", time.Minute)
	require.NoError(t, err)

	other, err := attestation.NewIssuer([]byte("a completely different signing key"))
	require.NoError(t, err)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestVerifyForTier(t *testing.T) {
	issuer, err := attestation.NewIssuer(testKey)
	require.NoError(t, err)
	token, err := issuer.Issue("agent-1", 2, 400, contexts.ContextLocal, "", time.Minute)
	require.NoError(t, err)

	claims, err := issuer.VerifyForTier(token, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, claims.Tier)

	_, err = issuer.VerifyForTier(token, 4)
	assert.ErrorIs(t, err, attestation.ErrTierMismatch)
}

func TestNewIssuerRequiresKey(t *testing.T) {
	_, err := attestation.NewIssuer(nil)
	assert.ErrorIs(t, err, attestation.ErrInvalidKey)
}
