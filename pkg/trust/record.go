// Package trust implements the decay/recovery scoring engine: the per-agent
// trust record, continuous-time score decay with failure acceleration,
// success-driven recovery, and the tier-transition events the rest of the
// authorization pipeline consumes.
package trust

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEntityExists   = errors.New("trust record already exists for entity")
	ErrEntityNotFound = errors.New("trust record not found")
	ErrInvalidSignal  = errors.New("invalid trust signal")
)

// Signal is one observed outcome for an agent. Value is normalized to [0,1];
// low values are failures, high values successes, the middle band neutral.
type Signal struct {
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Source    string            `json:"source,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks the signal before any state change happens.
func (s Signal) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidSignal)
	}
	if s.Value < 0 || s.Value > 1 {
		return fmt.Errorf("%w: value %.3f outside [0,1]", ErrInvalidSignal, s.Value)
	}
	return nil
}

// TrustRecord is the authoritative scoring state for one agent. It is
// created by Engine.InitializeEntity and mutated only by the engine; stores
// treat it as an opaque document.
type TrustRecord struct {
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"` // raw score, always in [0,1000]
	Level    int     `json:"level"` // derived from the clamped score, never set directly

	Signals []Signal `json:"signals,omitempty"` // bounded recent window

	PeakScore float64 `json:"peak_score"` // monotonic high-water mark

	FailureTimestamps    []time.Time `json:"failure_timestamps,omitempty"` // windowed
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	LastSuccessAt        time.Time   `json:"last_success_at,omitzero"`

	Profile          ProfileID `json:"profile"`
	LastCalculatedAt time.Time `json:"last_calculated_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can never mutate engine state.
func (r *TrustRecord) Clone() *TrustRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Signals = append([]Signal(nil), r.Signals...)
	out.FailureTimestamps = append([]time.Time(nil), r.FailureTimestamps...)
	return &out
}

// windowedFailures counts failure timestamps still inside the window.
func (r *TrustRecord) windowedFailures(now time.Time, window time.Duration) int {
	count := 0
	for _, ts := range r.FailureTimestamps {
		if now.Sub(ts) <= window {
			count++
		}
	}
	return count
}

// pruneFailures drops failure timestamps older than the window.
func (r *TrustRecord) pruneFailures(now time.Time, window time.Duration) {
	kept := r.FailureTimestamps[:0]
	for _, ts := range r.FailureTimestamps {
		if now.Sub(ts) <= window {
			kept = append(kept, ts)
		}
	}
	r.FailureTimestamps = kept
}
