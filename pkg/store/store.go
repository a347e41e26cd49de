// Package store defines the persistence contract for trust records and the
// reference adapters: in-memory, file-backed JSON, SQLite, Postgres, and
// Redis. Every adapter satisfies Provider, which is a superset of the
// trust.Store surface the engine consumes.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

var (
	// ErrClosed is returned by any operation on a closed provider.
	ErrClosed = errors.New("store is closed")
)

var (
	_ Provider = (*Memory)(nil)
	_ Provider = (*File)(nil)
	_ Provider = (*SQLite)(nil)
	_ Provider = (*Postgres)(nil)
	_ Provider = (*Redis)(nil)
)

// SortOrder directs query sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sortable fields for Filter.SortBy.
const (
	SortByScore          = "score"
	SortByLevel          = "level"
	SortByEntityID       = "entity_id"
	SortByLastCalculated = "last_calculated"
)

// Filter selects and orders records for Query. Min/Max bounds are inclusive;
// nil means unbounded. Limit 0 means no limit.
type Filter struct {
	MinLevel  *int
	MaxLevel  *int
	MinScore  *float64
	MaxScore  *float64
	SortBy    string
	SortOrder SortOrder
	Offset    int
	Limit     int
}

// Provider is the full persistence contract.
type Provider interface {
	Save(ctx context.Context, rec *trust.TrustRecord) error
	Get(ctx context.Context, entityID string) (*trust.TrustRecord, error)
	Delete(ctx context.Context, entityID string) error
	ListIDs(ctx context.Context) ([]string, error)
	Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error)
	Exists(ctx context.Context, entityID string) (bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// matches reports whether rec passes the filter bounds.
func (f Filter) matches(rec *trust.TrustRecord) bool {
	if f.MinLevel != nil && rec.Level < *f.MinLevel {
		return false
	}
	if f.MaxLevel != nil && rec.Level > *f.MaxLevel {
		return false
	}
	if f.MinScore != nil && rec.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && rec.Score > *f.MaxScore {
		return false
	}
	return true
}

// apply filters, sorts, and paginates records in memory. Used by adapters
// whose backends cannot push the query down.
func (f Filter) apply(records []*trust.TrustRecord) ([]*trust.TrustRecord, error) {
	out := make([]*trust.TrustRecord, 0, len(records))
	for _, rec := range records {
		if f.matches(rec) {
			out = append(out, rec)
		}
	}

	less, err := f.comparator()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (f Filter) comparator() (func(a, b *trust.TrustRecord) bool, error) {
	var less func(a, b *trust.TrustRecord) bool
	switch f.SortBy {
	case "", SortByEntityID:
		less = func(a, b *trust.TrustRecord) bool { return a.EntityID < b.EntityID }
	case SortByScore:
		less = func(a, b *trust.TrustRecord) bool { return a.Score < b.Score }
	case SortByLevel:
		less = func(a, b *trust.TrustRecord) bool { return a.Level < b.Level }
	case SortByLastCalculated:
		less = func(a, b *trust.TrustRecord) bool { return a.LastCalculatedAt.Before(b.LastCalculatedAt) }
	default:
		return nil, fmt.Errorf("store: unknown sort field %q", f.SortBy)
	}
	if f.SortOrder == SortDesc {
		inner := less
		less = func(a, b *trust.TrustRecord) bool { return inner(b, a) }
	}
	return less, nil
}
