package provenance

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vorion-Labs/aci/core/pkg/canonicalize"
)

// MigrationEvent records one lineage reclassification. The original
// CreationInfo is never mutated; migrations accumulate as separate hashed
// events.
type MigrationEvent struct {
	EventID   string       `json:"event_id"`
	AgentID   string       `json:"agent_id"`
	FromType  CreationType `json:"from_type"`
	ToType    CreationType `json:"to_type"`
	Reason    string       `json:"reason"`
	Actor     string       `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	EventHash string       `json:"event_hash"`
}

// Ledger owns the creation records and migration history for all agents.
type Ledger struct {
	mu         sync.RWMutex
	creations  map[string]*CreationInfo
	migrations map[string][]MigrationEvent // agentID -> ordered events
	clock      func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		creations:  make(map[string]*CreationInfo),
		migrations: make(map[string][]MigrationEvent),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// CreateCreationInfo seals and registers the one creation record an agent
// will ever have.
func (l *Ledger) CreateCreationInfo(ct CreationType, agentID, parentAgentID, createdBy string) (*CreationInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.creations[agentID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCreationExists, agentID)
	}
	info, err := newCreationInfoAt(ct, agentID, parentAgentID, createdBy, l.clock())
	if err != nil {
		return nil, err
	}
	l.creations[agentID] = info
	return info, nil
}

// Creation returns the agent's creation record, or nil when none exists.
func (l *Ledger) Creation(agentID string) *CreationInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.creations[agentID]
}

// RecordMigration appends a hashed lineage migration for an agent. The from
// type must match the agent's current effective lineage (original creation
// type, or the target of its latest migration).
func (l *Ledger) RecordMigration(agentID string, from, to CreationType, reason, actor string) (*MigrationEvent, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCreationType, from)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCreationType, to)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current := l.effectiveTypeLocked(agentID); current != "" && current != from {
		return nil, fmt.Errorf("%w: agent %s is %s, not %s", ErrInvalidCreationType, agentID, current, from)
	}

	evt := MigrationEvent{
		EventID:   uuid.New().String(),
		AgentID:   agentID,
		FromType:  from,
		ToType:    to,
		Reason:    reason,
		Actor:     actor,
		Timestamp: l.clock(),
	}
	hash, err := canonicalize.CanonicalHash(struct {
		AgentID   string       `json:"agent_id"`
		FromType  CreationType `json:"from_type"`
		ToType    CreationType `json:"to_type"`
		Reason    string       `json:"reason"`
		Actor     string       `json:"actor"`
		Timestamp string       `json:"timestamp"`
	}{evt.AgentID, evt.FromType, evt.ToType, evt.Reason, evt.Actor, evt.Timestamp.Format(time.RFC3339Nano)})
	if err != nil {
		return nil, err
	}
	evt.EventHash = hash

	l.migrations[agentID] = append(l.migrations[agentID], evt)
	return &evt, nil
}

// MigrationHistory returns the agent's migrations in recording order.
func (l *Ledger) MigrationHistory(agentID string) []MigrationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.migrations[agentID]
	out := make([]MigrationEvent, len(events))
	copy(out, events)
	return out
}

// AllMigrations returns every migration across agents, for global audit.
func (l *Ledger) AllMigrations() []MigrationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []MigrationEvent
	for _, events := range l.migrations {
		out = append(out, events...)
	}
	return out
}

// EffectiveType returns the agent's current lineage classification: the
// target of its latest migration, falling back to the original creation
// type, or empty when the agent is unknown.
func (l *Ledger) EffectiveType(agentID string) CreationType {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.effectiveTypeLocked(agentID)
}

func (l *Ledger) effectiveTypeLocked(agentID string) CreationType {
	if events := l.migrations[agentID]; len(events) > 0 {
		return events[len(events)-1].ToType
	}
	if info, ok := l.creations[agentID]; ok {
		return info.creationType
	}
	return ""
}
