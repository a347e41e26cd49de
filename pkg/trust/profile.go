package trust

import (
	"errors"
	"fmt"
)

// ProfileID names a decay profile.
type ProfileID string

const (
	ProfileVolatile ProfileID = "volatile"
	ProfileStandard ProfileID = "standard"
	ProfileStable   ProfileID = "stable"
)

var ErrUnknownProfile = errors.New("unknown decay profile")

// DecayProfile controls how fast a score decays and how hard repeated
// failures accelerate that decay.
type DecayProfile struct {
	ID                ProfileID `json:"id" yaml:"id"`
	HalfLifeDays      float64   `json:"half_life_days" yaml:"half_life_days"`
	FailureMultiplier float64   `json:"failure_multiplier" yaml:"failure_multiplier"`
}

// DefaultProfiles returns the built-in profile set.
func DefaultProfiles() map[ProfileID]DecayProfile {
	return map[ProfileID]DecayProfile{
		ProfileVolatile: {ID: ProfileVolatile, HalfLifeDays: 30, FailureMultiplier: 4},
		ProfileStandard: {ID: ProfileStandard, HalfLifeDays: 182, FailureMultiplier: 3},
		ProfileStable:   {ID: ProfileStable, HalfLifeDays: 365, FailureMultiplier: 2},
	}
}

// Activity-rate boundaries for profile classification, in signals per day.
const (
	volatileActivityRate = 5.0
	stableActivityRate   = 0.2
)

// ClassifyProfile selects a decay profile from an agent's observed activity
// rate. Busy agents decay fast (volatile), dormant agents slowly (stable),
// everything else uses the standard half-life. An explicit per-agent override
// at initialization wins over classification.
func ClassifyProfile(signalsPerDay float64) ProfileID {
	switch {
	case signalsPerDay >= volatileActivityRate:
		return ProfileVolatile
	case signalsPerDay < stableActivityRate:
		return ProfileStable
	default:
		return ProfileStandard
	}
}

func (p DecayProfile) validate() error {
	if p.HalfLifeDays <= 0 {
		return fmt.Errorf("profile %s: half-life must be positive", p.ID)
	}
	if p.FailureMultiplier < 1 {
		return fmt.Errorf("profile %s: failure multiplier must be >= 1", p.ID)
	}
	return nil
}
