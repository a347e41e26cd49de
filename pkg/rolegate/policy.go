package rolegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"
)

// Effect is the outcome a rule or exception mandates.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// PolicyRule denies or allows a (role, tier) combination, optionally scoped
// to a domain string and optionally guarded by a CEL condition over the
// evaluation inputs. Rules only matter when they match; the layer default is
// allow.
type PolicyRule struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Tier      int    `json:"tier"`
	Domain    string `json:"domain,omitempty"` // empty = any domain
	Effect    Effect `json:"effect"`
	Reason    string `json:"reason"`
	Condition string `json:"condition,omitempty"` // CEL over agent/role/tier/domain
}

// PolicyException overrides matching rules for one agent. Expired exceptions
// are treated as absent.
type PolicyException struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Role       Role       `json:"role"`
	Tier       int        `json:"tier"`
	Effect     Effect     `json:"effect"`
	Reason     string     `json:"reason"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the exception has lapsed at the given instant.
func (e PolicyException) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// EvaluationRecord is one entry in the per-agent policy audit trail.
type EvaluationRecord struct {
	EvaluationID string    `json:"evaluation_id"`
	AgentID      string    `json:"agent_id"`
	Role         Role      `json:"role"`
	Tier         int       `json:"tier"`
	Domain       string    `json:"domain,omitempty"`
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason"`
	Basis        string    `json:"basis"` // exception | rule | default
	Timestamp    time.Time `json:"timestamp"`
}

// PolicyEngine is the overridable policy layer. Default-allow; explicit rules
// can deny; per-agent exceptions trump rules; expiry is honored on read.
type PolicyEngine struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      []PolicyRule
	programs   map[string]cel.Program // rule ID -> compiled condition
	exceptions []PolicyException
	trail      map[string][]EvaluationRecord // agentID -> records
	version    uint64
	clock      func() time.Time
}

// NewPolicyEngine initializes the CEL environment and an empty rule set.
func NewPolicyEngine() (*PolicyEngine, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("agent", types.StringType),
			decls.NewVariable("role", types.StringType),
			decls.NewVariable("tier", types.IntType),
			decls.NewVariable("domain", types.StringType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("rolegate: cel env: %w", err)
	}
	return &PolicyEngine{
		env:      env,
		programs: make(map[string]cel.Program),
		trail:    make(map[string][]EvaluationRecord),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the clock for testing.
func (pe *PolicyEngine) WithClock(clock func() time.Time) *PolicyEngine {
	pe.clock = clock
	return pe
}

// AddRule validates, compiles (when conditioned), and registers a rule.
// Any mutation bumps the policy version.
func (pe *PolicyEngine) AddRule(rule PolicyRule) (string, error) {
	if !rule.Role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, rule.Role)
	}
	if !ValidTier(rule.Tier) {
		return "", fmt.Errorf("%w: %d", ErrInvalidTier, rule.Tier)
	}
	if rule.Effect != EffectAllow && rule.Effect != EffectDeny {
		return "", fmt.Errorf("rolegate: invalid effect %q", rule.Effect)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	var prg cel.Program
	if rule.Condition != "" {
		ast, issues := pe.env.Compile(rule.Condition)
		if issues != nil && issues.Err() != nil {
			return "", fmt.Errorf("rolegate: rule condition: %w", issues.Err())
		}
		compiled, err := pe.env.Program(ast)
		if err != nil {
			return "", fmt.Errorf("rolegate: rule program: %w", err)
		}
		prg = compiled
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.rules = append(pe.rules, rule)
	if prg != nil {
		pe.programs[rule.ID] = prg
	}
	pe.version++
	return rule.ID, nil
}

// RemoveRule deletes a rule by id. Bumps the policy version when anything
// changed.
func (pe *PolicyEngine) RemoveRule(id string) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	for i, r := range pe.rules {
		if r.ID == id {
			pe.rules = append(pe.rules[:i], pe.rules[i+1:]...)
			delete(pe.programs, id)
			pe.version++
			return true
		}
	}
	return false
}

// AddException registers a per-agent override. Bumps the policy version.
func (pe *PolicyEngine) AddException(ex PolicyException) (string, error) {
	if ex.AgentID == "" {
		return "", fmt.Errorf("rolegate: exception requires agent id")
	}
	if !ex.Role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, ex.Role)
	}
	if !ValidTier(ex.Tier) {
		return "", fmt.Errorf("%w: %d", ErrInvalidTier, ex.Tier)
	}
	if ex.Effect != EffectAllow && ex.Effect != EffectDeny {
		return "", fmt.Errorf("rolegate: invalid effect %q", ex.Effect)
	}
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.exceptions = append(pe.exceptions, ex)
	pe.version++
	return ex.ID, nil
}

// Version returns the current policy version. It changes on every rule or
// exception mutation.
func (pe *PolicyEngine) Version() uint64 {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	return pe.version
}

// Trail returns a copy of the agent's evaluation audit trail.
func (pe *PolicyEngine) Trail(agentID string) []EvaluationRecord {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	records := pe.trail[agentID]
	out := make([]EvaluationRecord, len(records))
	copy(out, records)
	return out
}

// Decision is a policy-layer verdict.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Basis   string `json:"basis"`
}

// Evaluate decides for one agent. Precedence: unexpired exception, then
// domain-scoped rule, then any-domain rule, then default allow. Every call
// appends to the agent's audit trail.
func (pe *PolicyEngine) Evaluate(agentID string, role Role, tier int, domain string) Decision {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	now := pe.clock()
	decision := pe.decide(agentID, role, tier, domain, now)

	pe.trail[agentID] = append(pe.trail[agentID], EvaluationRecord{
		EvaluationID: uuid.New().String(),
		AgentID:      agentID,
		Role:         role,
		Tier:         tier,
		Domain:       domain,
		Allowed:      decision.Allowed,
		Reason:       decision.Reason,
		Basis:        decision.Basis,
		Timestamp:    now,
	})
	return decision
}

func (pe *PolicyEngine) decide(agentID string, role Role, tier int, domain string, now time.Time) Decision {
	// Exceptions first; expired entries are invisible.
	for _, ex := range pe.exceptions {
		if ex.AgentID != agentID || ex.Role != role || ex.Tier != tier || ex.Expired(now) {
			continue
		}
		return Decision{
			Allowed: ex.Effect == EffectAllow,
			Reason:  ex.Reason,
			Basis:   "exception",
		}
	}

	// Domain-scoped rules outrank any-domain rules.
	if d := pe.matchRule(agentID, role, tier, domain, true); d != nil {
		return *d
	}
	if d := pe.matchRule(agentID, role, tier, domain, false); d != nil {
		return *d
	}

	return Decision{Allowed: true, Reason: "no matching policy", Basis: "default"}
}

func (pe *PolicyEngine) matchRule(agentID string, role Role, tier int, domain string, scoped bool) *Decision {
	for _, rule := range pe.rules {
		if rule.Role != role || rule.Tier != tier {
			continue
		}
		if scoped {
			if rule.Domain == "" || rule.Domain != domain {
				continue
			}
		} else if rule.Domain != "" {
			continue
		}
		if !pe.conditionHolds(rule, agentID, role, tier, domain) {
			continue
		}
		return &Decision{
			Allowed: rule.Effect == EffectAllow,
			Reason:  rule.Reason,
			Basis:   "rule",
		}
	}
	return nil
}

// conditionHolds evaluates a rule's CEL condition. Evaluation errors make the
// rule match anyway when it denies (fail closed) and skip it when it allows.
func (pe *PolicyEngine) conditionHolds(rule PolicyRule, agentID string, role Role, tier int, domain string) bool {
	prg, ok := pe.programs[rule.ID]
	if !ok {
		return true // unconditioned rule
	}
	out, _, err := prg.Eval(map[string]any{
		"agent":  agentID,
		"role":   string(role),
		"tier":   int64(tier),
		"domain": domain,
	})
	if err != nil {
		return rule.Effect == EffectDeny
	}
	holds, ok := out.Value().(bool)
	if !ok {
		return rule.Effect == EffectDeny
	}
	return holds
}
