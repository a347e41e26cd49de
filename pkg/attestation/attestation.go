// Package attestation issues signed, short-lived statements of an agent's
// authorization tier. Downstream services verify the token instead of
// calling back into the trust engine on every request.
package attestation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Vorion-Labs/aci/core/pkg/contexts"
)

const (
	defaultIssuer = "aci/attestation"
	audience      = "aci.internal"
)

var (
	ErrInvalidKey   = errors.New("attestation: signing key required")
	ErrTierMismatch = errors.New("attestation: tier outside attested bounds")
)

// TierClaims extends standard JWT claims with the attested trust state.
type TierClaims struct {
	jwt.RegisteredClaims
	Tier        int                  `json:"tier"`
	Score       float64              `json:"score"`
	ContextType contexts.ContextType `json:"context_type"`
	TenantID    string               `json:"tenant_id,omitempty"`
}

// Issuer signs and verifies tier attestations with an HS256 key.
type Issuer struct {
	key    []byte
	issuer string
	clock  func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) Option {
	return func(i *Issuer) { i.issuer = name }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(i *Issuer) { i.clock = clock }
}

// NewIssuer creates an issuer from a shared signing key.
func NewIssuer(key []byte, opts ...Option) (*Issuer, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	i := &Issuer{
		key:    key,
		issuer: defaultIssuer,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs an attestation for the agent's current tier, valid for ttl.
func (i *Issuer) Issue(entityID string, tier int, score float64, ct contexts.ContextType, tenantID string, ttl time.Duration) (string, error) {
	if entityID == "" {
		return "", fmt.Errorf("attestation: entity id is required")
	}
	now := i.clock()
	claims := TierClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        entityID + "/" + now.Format(time.RFC3339Nano),
			Subject:   entityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{audience},
		},
		Tier:        tier,
		Score:       score,
		ContextType: ct,
		TenantID:    tenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Verify parses the token, checks the signature and time bounds, and
// returns the attested claims.
func (i *Issuer) Verify(tokenString string) (*TierClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TierClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("attestation: unexpected signing method %v", t.Header["alg"])
			}
			return i.key, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TierClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// VerifyForTier verifies the token and additionally requires the attested
// tier to be at least minTier.
func (i *Issuer) VerifyForTier(tokenString string, minTier int) (*TierClaims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Tier < minTier {
		return nil, fmt.Errorf("%w: attested T%d, required T%d", ErrTierMismatch, claims.Tier, minTier)
	}
	return claims, nil
}
