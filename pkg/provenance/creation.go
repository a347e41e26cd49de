// Package provenance tracks agent creation lineage: the immutable creation
// record, the initial-score modifier it implies, and the append-only history
// of later lineage migrations.
package provenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/Vorion-Labs/aci/core/pkg/canonicalize"
)

// CreationType classifies how an agent came into existence.
type CreationType string

const (
	CreationFresh    CreationType = "fresh"
	CreationCloned   CreationType = "cloned"
	CreationEvolved  CreationType = "evolved"
	CreationPromoted CreationType = "promoted"
	CreationImported CreationType = "imported"
)

// tier1Baseline is the initial score every agent starts from before its
// lineage modifier.
const tier1Baseline = 250.0

var (
	ErrInvalidCreationType = errors.New("invalid creation type")
	ErrCreationExists      = errors.New("creation record already exists for agent")
	ErrIntegrityViolation  = errors.New("creation record integrity violation")
)

// modifiers per creation type, applied exactly once at entity initialization.
var modifiers = map[CreationType]float64{
	CreationFresh:    0,
	CreationCloned:   -50,
	CreationEvolved:  +25,
	CreationPromoted: +50,
	CreationImported: -100,
}

// Valid reports whether ct is a known creation type.
func (ct CreationType) Valid() bool {
	_, ok := modifiers[ct]
	return ok
}

// Modifier returns the score modifier for a creation type.
func Modifier(ct CreationType) (float64, error) {
	m, ok := modifiers[ct]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCreationType, ct)
	}
	return m, nil
}

// ComputeInitialTrustScore computes an agent's starting score from its
// lineage: the tier-1 baseline plus the creation modifier, clamped to
// [0, 1000].
func ComputeInitialTrustScore(ct CreationType) (float64, error) {
	m, err := Modifier(ct)
	if err != nil {
		return 0, err
	}
	score := tier1Baseline + m
	if score < 0 {
		score = 0
	}
	if score > 1000 {
		score = 1000
	}
	return score, nil
}

// CreationInfo is the immutable lineage record, one per agent. Same
// construction and digest pattern as contexts.AgentContext.
type CreationInfo struct {
	creationType  CreationType
	agentID       string
	parentAgentID string
	createdBy     string
	createdAt     time.Time
	creationHash  string
}

type creationDigestFields struct {
	CreationType  CreationType `json:"creation_type"`
	AgentID       string       `json:"agent_id"`
	ParentAgentID string       `json:"parent_agent_id,omitempty"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     string       `json:"created_at"`
}

// NewCreationInfo validates and seals a creation record. Cloned and evolved
// agents must name a parent; fresh agents must not.
func NewCreationInfo(ct CreationType, agentID, parentAgentID, createdBy string) (*CreationInfo, error) {
	return newCreationInfoAt(ct, agentID, parentAgentID, createdBy, time.Now().UTC())
}

func newCreationInfoAt(ct CreationType, agentID, parentAgentID, createdBy string, at time.Time) (*CreationInfo, error) {
	if !ct.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCreationType, ct)
	}
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidCreationType)
	}
	switch ct {
	case CreationCloned, CreationEvolved:
		if parentAgentID == "" {
			return nil, fmt.Errorf("%w: %s lineage requires a parent agent", ErrInvalidCreationType, ct)
		}
	case CreationFresh:
		if parentAgentID != "" {
			return nil, fmt.Errorf("%w: fresh lineage cannot name a parent", ErrInvalidCreationType)
		}
	}

	info := &CreationInfo{
		creationType:  ct,
		agentID:       agentID,
		parentAgentID: parentAgentID,
		createdBy:     createdBy,
		createdAt:     at,
	}
	hash, err := canonicalize.CanonicalHash(creationDigestFields{
		CreationType:  info.creationType,
		AgentID:       info.agentID,
		ParentAgentID: info.parentAgentID,
		CreatedBy:     info.createdBy,
		CreatedAt:     info.createdAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	info.creationHash = hash
	return info, nil
}

// VerifyIntegrity recomputes the lineage digest and compares.
func (c *CreationInfo) VerifyIntegrity() error {
	recomputed, err := canonicalize.CanonicalHash(creationDigestFields{
		CreationType:  c.creationType,
		AgentID:       c.agentID,
		ParentAgentID: c.parentAgentID,
		CreatedBy:     c.createdBy,
		CreatedAt:     c.createdAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if recomputed != c.creationHash {
		return fmt.Errorf("%w: agent %s", ErrIntegrityViolation, c.agentID)
	}
	return nil
}

func (c *CreationInfo) CreationType() CreationType { return c.creationType }
func (c *CreationInfo) AgentID() string            { return c.agentID }
func (c *CreationInfo) ParentAgentID() string      { return c.parentAgentID }
func (c *CreationInfo) CreatedBy() string          { return c.createdBy }
func (c *CreationInfo) CreatedAt() time.Time       { return c.createdAt }
func (c *CreationInfo) CreationHash() string       { return c.creationHash }
