package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Vorion-Labs/aci/core/pkg/ceiling"
	"github.com/Vorion-Labs/aci/core/pkg/contexts"
	"github.com/Vorion-Labs/aci/core/pkg/events"
	"github.com/Vorion-Labs/aci/core/pkg/provenance"
)

// Event topics published by the engine. Delivery is synchronous and, for a
// single agent, in call order.
const (
	TopicDecayApplied      = "trust.decay_applied"
	TopicRecoveryApplied   = "trust.recovery_applied"
	TopicTierChanged       = "trust.tier_changed"
	TopicFailureDetected   = "trust.failure_detected"
	TopicRecoveryMilestone = "trust.recovery_milestone"
)

// Milestone names carried by TopicRecoveryMilestone payloads.
const (
	MilestoneAcceleratedRecovery = "accelerated_recovery_earned"
	MilestoneTierRestored        = "tier_restored"
)

// DecayEvent is the payload for TopicDecayApplied.
type DecayEvent struct {
	EntityID    string  `json:"entity_id"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	ElapsedDays float64 `json:"elapsed_days"`
	Accelerated bool    `json:"accelerated"`
	Failures    int     `json:"failures"`
}

// RecoveryEvent is the payload for TopicRecoveryApplied.
type RecoveryEvent struct {
	EntityID    string  `json:"entity_id"`
	Before      float64 `json:"before"`
	After       float64 `json:"after"`
	Amount      float64 `json:"amount"`
	Accelerated bool    `json:"accelerated"`
}

// TierChangeEvent is the payload for TopicTierChanged. Direction is
// "promoted" or "demoted".
type TierChangeEvent struct {
	EntityID  string `json:"entity_id"`
	FromTier  int    `json:"from_tier"`
	ToTier    int    `json:"to_tier"`
	Direction string `json:"direction"`
}

// FailureEvent is the payload for TopicFailureDetected.
type FailureEvent struct {
	EntityID       string  `json:"entity_id"`
	SignalValue    float64 `json:"signal_value"`
	WindowedCount  int     `json:"windowed_count"`
	AccelerationOn bool    `json:"acceleration_on"`
}

// MilestoneEvent is the payload for TopicRecoveryMilestone.
type MilestoneEvent struct {
	EntityID  string `json:"entity_id"`
	Milestone string `json:"milestone"`
	Tier      int    `json:"tier,omitempty"`
}

// Config holds the engine tunables. Zero values are replaced by defaults.
type Config struct {
	FailureThreshold            float64       // signal value below this is a failure
	SuccessThreshold            float64       // signal value at or above this is a success
	RecoveryRate                float64       // base points recovered per unit of signal value
	MaxRecoveryPerSignal        float64       // hard cap on one signal's recovery
	RecoveryAcceleration        float64       // multiplier once the success streak qualifies
	MinFailuresForAcceleration  int
	MinSuccessesForAcceleration int
	FailureWindow               time.Duration
	SuccessWindow               time.Duration
	MaxRetainedSignals          int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:            0.3,
		SuccessThreshold:            0.7,
		RecoveryRate:                50,
		MaxRecoveryPerSignal:        100,
		RecoveryAcceleration:        2,
		MinFailuresForAcceleration:  3,
		MinSuccessesForAcceleration: 5,
		FailureWindow:               7 * 24 * time.Hour,
		SuccessWindow:               24 * time.Hour,
		MaxRetainedSignals:          50,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.RecoveryRate == 0 {
		c.RecoveryRate = d.RecoveryRate
	}
	if c.MaxRecoveryPerSignal == 0 {
		c.MaxRecoveryPerSignal = d.MaxRecoveryPerSignal
	}
	if c.RecoveryAcceleration == 0 {
		c.RecoveryAcceleration = d.RecoveryAcceleration
	}
	if c.MinFailuresForAcceleration == 0 {
		c.MinFailuresForAcceleration = d.MinFailuresForAcceleration
	}
	if c.MinSuccessesForAcceleration == 0 {
		c.MinSuccessesForAcceleration = d.MinSuccessesForAcceleration
	}
	if c.FailureWindow == 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.SuccessWindow == 0 {
		c.SuccessWindow = d.SuccessWindow
	}
	if c.MaxRetainedSignals == 0 {
		c.MaxRetainedSignals = d.MaxRetainedSignals
	}
}

// Store is the persistence surface the engine consumes. pkg/store providers
// implement the full contract; the engine only needs this subset.
type Store interface {
	Save(ctx context.Context, rec *TrustRecord) error
	Get(ctx context.Context, entityID string) (*TrustRecord, error)
	Delete(ctx context.Context, entityID string) error
}

// entity serializes all updates for one agent id.
type entity struct {
	mu  sync.Mutex
	rec *TrustRecord
}

type pendingEvent struct {
	topic   string
	payload any
}

type pendingAudit struct {
	agentID string
	res     ceiling.Result
	reason  string
}

// pending buffers the events and audit entries produced while a mutation is
// in flight. Nothing becomes visible until the record is persisted, so a
// failed Save leaves no trace of the attempt and a retry applies the signal
// exactly once.
type pending struct {
	events []pendingEvent
	audits []pendingAudit
}

func (p *pending) publish(topic string, payload any) {
	p.events = append(p.events, pendingEvent{topic: topic, payload: payload})
}

func (p *pending) audit(agentID string, res ceiling.Result, reason string) {
	p.audits = append(p.audits, pendingAudit{agentID: agentID, res: res, reason: reason})
}

// Engine is the decay/recovery state machine. Safe for concurrent use:
// different entity ids proceed in parallel, updates to the same id are
// serialized end to end, persistence included.
type Engine struct {
	cfg      Config
	store    Store
	bus      *events.Bus
	registry *contexts.Registry
	audit    *ceiling.AuditLog
	profiles map[ProfileID]DecayProfile
	logger   *slog.Logger
	clock    func() time.Time

	mu       sync.Mutex
	entities map[string]*entity
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default tunables.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithContextRegistry lets the engine clamp scores against each agent's
// context. Without a registry every agent is treated as sovereign (no
// ceiling below the global maximum).
func WithContextRegistry(r *contexts.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithAuditLog records every ceiling enforcement the engine performs.
func WithAuditLog(l *ceiling.AuditLog) Option {
	return func(e *Engine) { e.audit = l }
}

// WithProfiles replaces the built-in decay profiles, e.g. from a loaded
// profile pack.
func WithProfiles(profiles map[ProfileID]DecayProfile) Option {
	return func(e *Engine) { e.profiles = profiles }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine wires the engine to its store and event bus.
func NewEngine(store Store, bus *events.Bus, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("trust: store is required")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	e := &Engine{
		cfg:      DefaultConfig(),
		store:    store,
		bus:      bus,
		profiles: DefaultProfiles(),
		logger:   slog.Default().With("component", "trust"),
		clock:    func() time.Time { return time.Now().UTC() },
		entities: make(map[string]*entity),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.applyDefaults()
	for _, p := range e.profiles {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("trust: %w", err)
		}
	}
	return e, nil
}

// InitializeEntity creates the trust record for a new agent. The creation
// modifier is applied here, exactly once; a second call for the same id
// fails with ErrEntityExists.
func (e *Engine) InitializeEntity(ctx context.Context, entityID string, creation provenance.CreationType) (*TrustRecord, error) {
	return e.InitializeEntityWithProfile(ctx, entityID, creation, ProfileStandard)
}

// InitializeEntityWithProfile is InitializeEntity with an explicit decay
// profile override.
func (e *Engine) InitializeEntityWithProfile(ctx context.Context, entityID string, creation provenance.CreationType, profile ProfileID) (*TrustRecord, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidSignal)
	}
	if _, ok := e.profiles[profile]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
	initial, err := provenance.ComputeInitialTrustScore(creation)
	if err != nil {
		return nil, err
	}

	ent := e.entityFor(entityID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if err := e.loadLocked(ctx, entityID, ent); err != nil && !errors.Is(err, ErrEntityNotFound) {
		return nil, err
	}
	if ent.rec != nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, entityID)
	}

	now := e.clock()
	rec := &TrustRecord{
		EntityID:         entityID,
		Score:            initial,
		PeakScore:        initial,
		Profile:          profile,
		LastCalculatedAt: now,
		CreatedAt:        now,
	}
	p := &pending{}
	rec.Level = e.deriveTier(rec, "entity initialized", p)

	if err := e.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("trust: persist new record: %w", err)
	}
	e.commit(ent, rec, p)
	return rec.Clone(), nil
}

// RecordSignal applies one signal: lazy decay first, then failure/recovery
// classification, tier transition, and persistence, all under the entity's
// lock.
func (e *Engine) RecordSignal(ctx context.Context, entityID string, sig Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}

	ent := e.entityFor(entityID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if err := e.loadLocked(ctx, entityID, ent); err != nil {
		return err
	}
	now := e.clock()
	if sig.Timestamp.IsZero() {
		sig.Timestamp = now
	}

	// All mutation happens on a working copy; the cached record and the bus
	// only see the signal once it is durable.
	rec := ent.rec.Clone()
	p := &pending{}

	e.applyDecay(rec, now, p)

	switch {
	case sig.Value < e.cfg.FailureThreshold:
		e.applyFailure(rec, sig, now, p)
	case sig.Value >= e.cfg.SuccessThreshold:
		e.applyRecovery(rec, sig, now, p)
	}

	rec.Signals = append(rec.Signals, sig)
	if len(rec.Signals) > e.cfg.MaxRetainedSignals {
		rec.Signals = rec.Signals[len(rec.Signals)-e.cfg.MaxRetainedSignals:]
	}
	rec.LastCalculatedAt = now

	// Tier transition runs against the pre-signal peak so a first-time
	// promotion is not reported as a restoration.
	e.transitionTier(rec, fmt.Sprintf("signal %s", sig.Type), p)

	if rec.Score > rec.PeakScore {
		rec.PeakScore = rec.Score
	}

	if err := e.store.Save(ctx, rec); err != nil {
		// In-memory state stays the last known-good and no events fire;
		// the caller decides whether to retry.
		return fmt.Errorf("trust: persist after signal: %w", err)
	}
	e.commit(ent, rec, p)
	return nil
}

// GetScore returns the agent's record with decay applied up to now. The
// recomputed record is persisted so durable state tracks reads as well as
// writes.
func (e *Engine) GetScore(ctx context.Context, entityID string) (*TrustRecord, error) {
	ent := e.entityFor(entityID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if err := e.loadLocked(ctx, entityID, ent); err != nil {
		return nil, err
	}
	now := e.clock()

	rec := ent.rec.Clone()
	p := &pending{}

	decayed := e.applyDecay(rec, now, p)
	rec.LastCalculatedAt = now
	e.transitionTier(rec, "score read", p)

	if decayed {
		if err := e.store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("trust: persist after decay: %w", err)
		}
	}
	e.commit(ent, rec, p)
	return rec.Clone(), nil
}

// Delete removes the agent's record from the engine and the store.
func (e *Engine) Delete(ctx context.Context, entityID string) error {
	ent := e.entityFor(entityID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if err := e.store.Delete(ctx, entityID); err != nil {
		return fmt.Errorf("trust: delete record: %w", err)
	}
	ent.rec = nil
	return nil
}

func (e *Engine) entityFor(entityID string) *entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entities[entityID]
	if !ok {
		ent = &entity{}
		e.entities[entityID] = ent
	}
	return ent
}

// commit installs the persisted record as the cached state and flushes the
// buffered audit entries and events. Caller holds ent.mu.
func (e *Engine) commit(ent *entity, rec *TrustRecord, p *pending) {
	ent.rec = rec
	if e.audit != nil {
		for _, a := range p.audits {
			e.audit.Add(a.agentID, a.res, a.reason, "engine")
		}
	}
	for _, ev := range p.events {
		e.bus.Publish(ev.topic, ev.payload)
	}
}

// loadLocked populates ent.rec from the store when the engine has not seen
// this entity yet. Caller holds ent.mu.
func (e *Engine) loadLocked(ctx context.Context, entityID string, ent *entity) error {
	if ent.rec != nil {
		return nil
	}
	rec, err := e.store.Get(ctx, entityID)
	if err != nil {
		return err
	}
	ent.rec = rec
	return nil
}

// applyDecay recomputes the score from elapsed time. Reports whether the
// score actually moved.
func (e *Engine) applyDecay(rec *TrustRecord, now time.Time, p *pending) bool {
	elapsed := now.Sub(rec.LastCalculatedAt)
	if elapsed <= 0 || rec.Score <= 0 {
		return false
	}

	profile, ok := e.profiles[rec.Profile]
	if !ok {
		// A record persisted under a profile this engine does not carry
		// decays at the standard rate, never at a zero half-life.
		profile, ok = e.profiles[ProfileStandard]
		if !ok {
			profile = DefaultProfiles()[ProfileStandard]
		}
		e.logger.Warn("unknown decay profile, using standard",
			"entity", rec.EntityID, "profile", rec.Profile)
	}
	days := elapsed.Hours() / 24
	factor := math.Pow(0.5, days/profile.HalfLifeDays)

	rec.pruneFailures(now, e.cfg.FailureWindow)
	failures := len(rec.FailureTimestamps)
	accelerated := failures >= e.cfg.MinFailuresForAcceleration
	if accelerated {
		factor /= math.Pow(profile.FailureMultiplier, float64(failures))
	}

	before := rec.Score
	after := before * factor
	if after < 0 {
		after = 0
	}
	if after == before {
		return false
	}
	rec.Score = after

	p.publish(TopicDecayApplied, DecayEvent{
		EntityID:    rec.EntityID,
		Before:      before,
		After:       after,
		ElapsedDays: days,
		Accelerated: accelerated,
		Failures:    failures,
	})
	return true
}

func (e *Engine) applyFailure(rec *TrustRecord, sig Signal, now time.Time, p *pending) {
	rec.FailureTimestamps = append(rec.FailureTimestamps, sig.Timestamp)
	rec.pruneFailures(now, e.cfg.FailureWindow)
	rec.ConsecutiveSuccesses = 0

	windowed := len(rec.FailureTimestamps)
	p.publish(TopicFailureDetected, FailureEvent{
		EntityID:       rec.EntityID,
		SignalValue:    sig.Value,
		WindowedCount:  windowed,
		AccelerationOn: windowed >= e.cfg.MinFailuresForAcceleration,
	})
}

func (e *Engine) applyRecovery(rec *TrustRecord, sig Signal, now time.Time, p *pending) {
	// A stale streak does not carry across the success window.
	if !rec.LastSuccessAt.IsZero() && now.Sub(rec.LastSuccessAt) > e.cfg.SuccessWindow {
		rec.ConsecutiveSuccesses = 0
	}
	rec.ConsecutiveSuccesses++
	rec.LastSuccessAt = now

	accel := 1.0
	accelerated := rec.ConsecutiveSuccesses >= e.cfg.MinSuccessesForAcceleration
	if accelerated {
		accel = e.cfg.RecoveryAcceleration
		if rec.ConsecutiveSuccesses == e.cfg.MinSuccessesForAcceleration {
			p.publish(TopicRecoveryMilestone, MilestoneEvent{
				EntityID:  rec.EntityID,
				Milestone: MilestoneAcceleratedRecovery,
			})
		}
	}

	amount := e.cfg.RecoveryRate * sig.Value * accel
	if amount > e.cfg.MaxRecoveryPerSignal {
		amount = e.cfg.MaxRecoveryPerSignal
	}

	before := rec.Score
	after := before + amount
	if after > ceiling.MaxScore {
		after = ceiling.MaxScore
	}
	rec.Score = after

	p.publish(TopicRecoveryApplied, RecoveryEvent{
		EntityID:    rec.EntityID,
		Before:      before,
		After:       after,
		Amount:      after - before,
		Accelerated: accelerated,
	})
}

// contextTypeFor resolves the agent's ceiling class; sovereign when no
// context is registered.
func (e *Engine) contextTypeFor(entityID string) contexts.ContextType {
	if e.registry != nil {
		if ctx := e.registry.Get(entityID); ctx != nil {
			return ctx.ContextType()
		}
	}
	return contexts.ContextSovereign
}

// deriveTier clamps the raw score against the agent's context and returns
// the resulting tier, buffering the enforcement decision for the audit log.
func (e *Engine) deriveTier(rec *TrustRecord, reason string, p *pending) int {
	ct := e.contextTypeFor(rec.EntityID)
	res, err := ceiling.ClampTrustScore(rec.Score, ct)
	if err != nil {
		// Unreachable with a registry-issued context; fall back to the
		// global bound rather than inventing a tier.
		e.logger.Error("ceiling clamp failed", "entity", rec.EntityID, "error", err)
		res, _ = ceiling.ClampTrustScore(rec.Score, contexts.ContextSovereign)
	}
	p.audit(rec.EntityID, res, reason)
	return ceiling.TierForScore(res.ClampedScore)
}

// transitionTier rederives the tier and emits promotion/demotion and
// restoration events on boundary crossings.
func (e *Engine) transitionTier(rec *TrustRecord, reason string, p *pending) {
	from := rec.Level
	to := e.deriveTier(rec, reason, p)
	if to == from {
		return
	}
	rec.Level = to

	direction := "promoted"
	if to < from {
		direction = "demoted"
	}
	p.publish(TopicTierChanged, TierChangeEvent{
		EntityID:  rec.EntityID,
		FromTier:  from,
		ToTier:    to,
		Direction: direction,
	})

	if direction == "promoted" && to == e.peakTier(rec) {
		p.publish(TopicRecoveryMilestone, MilestoneEvent{
			EntityID:  rec.EntityID,
			Milestone: MilestoneTierRestored,
			Tier:      to,
		})
	}
}

// peakTier is the tier the agent's high-water mark maps to under its current
// context ceiling.
func (e *Engine) peakTier(rec *TrustRecord) int {
	res, err := ceiling.ClampTrustScore(rec.PeakScore, e.contextTypeFor(rec.EntityID))
	if err != nil {
		return ceiling.TierForScore(rec.PeakScore)
	}
	return ceiling.TierForScore(res.ClampedScore)
}
