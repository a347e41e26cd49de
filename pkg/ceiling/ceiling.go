// Package ceiling implements the trust ceiling enforcement kernel: score
// clamping against the agent's context class, the fixed score→tier mapping,
// and the bounded audit log of every enforcement decision.
package ceiling

import (
	"errors"
	"fmt"

	"github.com/Vorion-Labs/aci/core/pkg/contexts"
)

// Ceilings per context class. The ordering local < enterprise < sovereign is
// load-bearing: a more privileged context is never allowed a lower ceiling.
const (
	CeilingLocal      = 700.0
	CeilingEnterprise = 900.0
	CeilingSovereign  = 1000.0

	// MaxScore bounds every trust score in the system.
	MaxScore = 1000.0
)

var (
	ErrUnknownContextType = errors.New("unknown context type")
	ErrCeilingViolated    = errors.New("score violates context ceiling")
)

// CeilingFor returns the maximum score permitted for a context class.
func CeilingFor(ct contexts.ContextType) (float64, error) {
	switch ct {
	case contexts.ContextLocal:
		return CeilingLocal, nil
	case contexts.ContextEnterprise:
		return CeilingEnterprise, nil
	case contexts.ContextSovereign:
		return CeilingSovereign, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownContextType, ct)
	}
}

// Result carries both the raw and the clamped score. The raw score is never
// discarded; downstream authorization uses only ClampedScore, audit uses both.
type Result struct {
	RawScore       float64              `json:"raw_score"`
	ClampedScore   float64              `json:"clamped_score"`
	Ceiling        float64              `json:"ceiling"`
	CeilingApplied bool                 `json:"ceiling_applied"`
	ContextType    contexts.ContextType `json:"context_type"`
}

// ClampTrustScore clamps a raw score into [0, ceiling(contextType)].
func ClampTrustScore(rawScore float64, ct contexts.ContextType) (Result, error) {
	ceiling, err := CeilingFor(ct)
	if err != nil {
		return Result{}, err
	}

	clamped := rawScore
	if clamped > ceiling {
		clamped = ceiling
	}
	if clamped < 0 {
		clamped = 0
	}

	return Result{
		RawScore:       rawScore,
		ClampedScore:   clamped,
		Ceiling:        ceiling,
		CeilingApplied: rawScore != clamped,
		ContextType:    ct,
	}, nil
}

// ValidateScoreForContext reports whether score already sits inside the
// context's permitted range.
func ValidateScoreForContext(score float64, ct contexts.ContextType) bool {
	ceiling, err := CeilingFor(ct)
	if err != nil {
		return false
	}
	return score >= 0 && score <= ceiling
}

// TierForScore maps a clamped score onto the fixed tier buckets:
// [0,100)=T0, [100,300)=T1, [300,500)=T2, [500,700)=T3, [700,900)=T4,
// [900,1000]=T5. Buckets partition [0,1000] with no gaps or overlaps.
func TierForScore(clamped float64) int {
	switch {
	case clamped < 100:
		return 0
	case clamped < 300:
		return 1
	case clamped < 500:
		return 2
	case clamped < 700:
		return 3
	case clamped < 900:
		return 4
	default:
		return 5
	}
}

// EffectiveAuthorizationTier derives the tier for a score that the caller
// asserts is already clamped for the given context. A score above the ceiling
// is a caller-contract breach and fails; this function never re-clamps.
func EffectiveAuthorizationTier(clampedScore float64, ct contexts.ContextType) (int, error) {
	ceiling, err := CeilingFor(ct)
	if err != nil {
		return 0, err
	}
	if clampedScore < 0 || clampedScore > ceiling {
		return 0, fmt.Errorf("%w: score %.2f exceeds %s ceiling %.0f",
			ErrCeilingViolated, clampedScore, ct, ceiling)
	}
	return TierForScore(clampedScore), nil
}
