package ceiling

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vorion-Labs/aci/core/pkg/contexts"
)

// DefaultAuditCapacity bounds the audit ring buffer.
const DefaultAuditCapacity = 10_000

// DefaultAnomalyThreshold is the per-agent ceiling-hit rate above which an
// agent is flagged for manual review.
const DefaultAnomalyThreshold = 0.05

// AuditEntry records one ceiling enforcement call.
type AuditEntry struct {
	EventID      string               `json:"event_id"`
	AgentID      string               `json:"agent_id"`
	Timestamp    time.Time            `json:"timestamp"`
	RawScore     float64              `json:"raw_score"`
	ClampedScore float64              `json:"clamped_score"`
	Ceiling      float64              `json:"ceiling"`
	ContextType  contexts.ContextType `json:"context_type"`
	CeilingHit   bool                 `json:"ceiling_hit"`
	Reason       string               `json:"reason"`
	Tags         []string             `json:"tags,omitempty"`
}

// Statistics summarizes the current audit window.
type Statistics struct {
	TotalEvents      int                              `json:"total_events"`
	CeilingHits      int                              `json:"ceiling_hits"`
	HitRate          float64                          `json:"hit_rate"`
	AvgRawScore      float64                          `json:"avg_raw_score"`
	AvgClampedScore  float64                          `json:"avg_clamped_score"`
	PeakRawScore     float64                          `json:"peak_raw_score"`
	PeakClampedScore float64                          `json:"peak_clamped_score"`
	ByContext        map[contexts.ContextType]int     `json:"by_context"`
}

// Anomaly flags an agent whose personal ceiling-hit rate exceeds a threshold.
// Advisory only; nothing is auto-enforced from it.
type Anomaly struct {
	AgentID   string  `json:"agent_id"`
	Events    int     `json:"events"`
	Hits      int     `json:"hits"`
	HitRate   float64 `json:"hit_rate"`
	Threshold float64 `json:"threshold"`
}

// AuditLog is a bounded append-only ring of ceiling decisions. When full, the
// oldest entries rotate out; entries are never corrupted in place.
type AuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
	start   int // ring head
	size    int
	cap     int
	clock   func() time.Time
}

// NewAuditLog creates a log with the given capacity (DefaultAuditCapacity
// when capacity <= 0).
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{
		entries: make([]AuditEntry, capacity),
		cap:     capacity,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for testing.
func (l *AuditLog) WithClock(clock func() time.Time) *AuditLog {
	l.clock = clock
	return l
}

// Add appends an entry for one enforcement decision and returns it.
func (l *AuditLog) Add(agentID string, res Result, reason string, tags ...string) AuditEntry {
	entry := AuditEntry{
		EventID:      uuid.New().String(),
		AgentID:      agentID,
		RawScore:     res.RawScore,
		ClampedScore: res.ClampedScore,
		Ceiling:      res.Ceiling,
		ContextType:  res.ContextType,
		CeilingHit:   res.CeilingApplied,
		Reason:       reason,
		Tags:         tags,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = l.clock()
	idx := (l.start + l.size) % l.cap
	l.entries[idx] = entry
	if l.size < l.cap {
		l.size++
	} else {
		l.start = (l.start + 1) % l.cap // oldest rotates out
	}
	return entry
}

// Entries returns the retained entries, oldest first.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%l.cap])
	}
	return out
}

// Len returns the number of retained entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// ComputeStatistics aggregates the retained entries.
func (l *AuditLog) ComputeStatistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Statistics{ByContext: make(map[contexts.ContextType]int)}
	if l.size == 0 {
		return stats
	}

	var rawSum, clampedSum float64
	for i := 0; i < l.size; i++ {
		e := l.entries[(l.start+i)%l.cap]
		stats.TotalEvents++
		if e.CeilingHit {
			stats.CeilingHits++
		}
		rawSum += e.RawScore
		clampedSum += e.ClampedScore
		if e.RawScore > stats.PeakRawScore {
			stats.PeakRawScore = e.RawScore
		}
		if e.ClampedScore > stats.PeakClampedScore {
			stats.PeakClampedScore = e.ClampedScore
		}
		stats.ByContext[e.ContextType]++
	}
	stats.HitRate = float64(stats.CeilingHits) / float64(stats.TotalEvents)
	stats.AvgRawScore = rawSum / float64(stats.TotalEvents)
	stats.AvgClampedScore = clampedSum / float64(stats.TotalEvents)
	return stats
}

// DetectCeilingAnomalies reports whether the agent's personal ceiling-hit
// rate exceeds threshold (DefaultAnomalyThreshold when threshold <= 0).
// Returns nil when the agent is unremarkable or has no entries.
func (l *AuditLog) DetectCeilingAnomalies(agentID string, threshold float64) *Anomaly {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var events, hits int
	for i := 0; i < l.size; i++ {
		e := l.entries[(l.start+i)%l.cap]
		if e.AgentID != agentID {
			continue
		}
		events++
		if e.CeilingHit {
			hits++
		}
	}
	if events == 0 {
		return nil
	}

	rate := float64(hits) / float64(events)
	if rate <= threshold {
		return nil
	}
	return &Anomaly{
		AgentID:   agentID,
		Events:    events,
		Hits:      hits,
		HitRate:   rate,
		Threshold: threshold,
	}
}
