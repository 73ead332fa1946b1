package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Source supplies the directory snapshot used for a scan.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Loader fetches the full identity list from storage.
type Loader interface {
	LoadIdentities(ctx context.Context) ([]Identity, error)
}

const snapshotKey = "snapshot"

// CachedSource keeps the last loaded snapshot for ttl before reloading.
type CachedSource struct {
	loader Loader
	cache  *cache.Cache
	ttl    time.Duration
	mu     sync.Mutex
}

// NewCachedSource creates a source that reloads from loader at most once per ttl.
func NewCachedSource(loader Loader, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSource{
		loader: loader,
		cache:  cache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// Snapshot returns the cached snapshot or loads a fresh one.
func (s *CachedSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*Snapshot), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(snapshotKey); ok {
		return v.(*Snapshot), nil
	}

	identities, err := s.loader.LoadIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	snap := NewSnapshot(identities, time.Now().UTC())
	s.cache.Set(snapshotKey, snap, s.ttl)
	return snap, nil
}

// Invalidate forces the next Snapshot call to reload.
func (s *CachedSource) Invalidate() {
	s.cache.Delete(snapshotKey)
}

// StaticSource always returns the same snapshot.
type StaticSource struct {
	Snap *Snapshot
}

// Snapshot returns the fixed snapshot.
func (s StaticSource) Snapshot(context.Context) (*Snapshot, error) {
	return s.Snap, nil
}
