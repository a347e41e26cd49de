package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// Memory is the reference in-memory provider. Records are deep-copied on the
// way in and out so callers cannot alias store state.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*trust.TrustRecord
	closed  bool
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*trust.TrustRecord)}
}

func (m *Memory) Save(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil || rec.EntityID == "" {
		return fmt.Errorf("store: record requires an entity id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records[rec.EntityID] = rec.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, entityID string) (*trust.TrustRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.records[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, entityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.records[entityID]; !ok {
		return fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	delete(m.records, entityID)
	return nil
}

func (m *Memory) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	all := make([]*trust.TrustRecord, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec.Clone())
	}
	m.mu.RUnlock()
	return filter.apply(all)
}

func (m *Memory) Exists(ctx context.Context, entityID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.records[entityID]
	return ok, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.records), nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = make(map[string]*trust.TrustRecord)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
