package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// FileOptions configures the file-backed provider.
type FileOptions struct {
	// SyncWrites flushes on every mutation. When false, mutations mark the
	// document dirty and flushes are throttled to one per FlushInterval,
	// with a final flush on Close.
	SyncWrites    bool
	FlushInterval time.Duration
}

// File is a file-backed provider. The whole record set is loaded at open,
// served from memory, and flushed as a single JSON document. Flushes write a
// temp file and rename it over the target, so a crash mid-write can never
// leave a torn document behind.
type File struct {
	path    string
	opts    FileOptions
	limiter *rate.Limiter

	mu      sync.RWMutex
	records map[string]*trust.TrustRecord
	dirty   bool
	closed  bool
}

// fileDocument is the on-disk shape.
type fileDocument struct {
	Version int                            `json:"version"`
	Records map[string]*trust.TrustRecord `json:"records"`
}

// OpenFile loads (or creates) the JSON document at path.
func OpenFile(path string, opts FileOptions) (*File, error) {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	f := &File{
		path:    path,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.FlushInterval), 1),
		records: make(map[string]*trust.TrustRecord),
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fresh store; first flush creates the file.
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	default:
		var doc fileDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("store: parse %s: %w", path, err)
		}
		if doc.Records != nil {
			f.records = doc.Records
		}
	}
	return f, nil
}

// flushLocked writes the full document atomically. Caller holds f.mu.
func (f *File) flushLocked() error {
	doc := fileDocument{Version: 1, Records: f.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".trust-*.json")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace %s: %w", f.path, err)
	}
	f.dirty = false
	return nil
}

// afterMutationLocked applies the flush policy. I/O failures propagate to
// the mutating caller instead of being retried silently.
func (f *File) afterMutationLocked() error {
	f.dirty = true
	if f.opts.SyncWrites || f.limiter.Allow() {
		return f.flushLocked()
	}
	return nil
}

// Flush forces a write of any pending state.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if !f.dirty {
		return nil
	}
	return f.flushLocked()
}

func (f *File) Save(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil || rec.EntityID == "" {
		return fmt.Errorf("store: record requires an entity id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.records[rec.EntityID] = rec.Clone()
	return f.afterMutationLocked()
}

func (f *File) Get(ctx context.Context, entityID string) (*trust.TrustRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	rec, ok := f.records[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	return rec.Clone(), nil
}

func (f *File) Delete(ctx context.Context, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if _, ok := f.records[entityID]; !ok {
		return fmt.Errorf("%w: %s", trust.ErrEntityNotFound, entityID)
	}
	delete(f.records, entityID)
	return f.afterMutationLocked()
}

func (f *File) ListIDs(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *File) Query(ctx context.Context, filter Filter) ([]*trust.TrustRecord, error) {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return nil, ErrClosed
	}
	all := make([]*trust.TrustRecord, 0, len(f.records))
	for _, rec := range f.records {
		all = append(all, rec.Clone())
	}
	f.mu.RUnlock()
	return filter.apply(all)
}

func (f *File) Exists(ctx context.Context, entityID string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false, ErrClosed
	}
	_, ok := f.records[entityID]
	return ok, nil
}

func (f *File) Count(ctx context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, ErrClosed
	}
	return len(f.records), nil
}

func (f *File) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.records = make(map[string]*trust.TrustRecord)
	return f.afterMutationLocked()
}

// Close flushes pending state and marks the provider unusable.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	var err error
	if f.dirty {
		err = f.flushLocked()
	}
	f.closed = true
	return err
}
