// Package inmemorycache provides an ephemeral, thread-safe implementation
// of the cachestore.Store interface.
//
// It backs tests and sessions that opt out of durable storage. Entries live
// in a sync.Map keyed by node ID: the key space is stable (one slot per
// node) while values churn on every recompute, the access pattern sync.Map
// is optimized for.
package inmemorycache

import (
	"context"
	"sync"
	"time"

	"github.com/vk/mediagraph/internal/cachestore"
)

// Store is the in-memory cache backend.
type Store struct {
	entries sync.Map // key: node ID string, value: cachestore.Entry
}

// New creates an empty in-memory cache store.
func New() *Store {
	return &Store{}
}

// Put implements cachestore.Store. Last write per node ID wins.
func (s *Store) Put(ctx context.Context, entry cachestore.Entry) error {
	if entry.Age == 0 {
		entry.Age = cachestore.Now()
	}
	s.entries.Store(entry.ID, entry)
	return nil
}

// Get implements cachestore.Store.
func (s *Store) Get(ctx context.Context, nodeID, inputHash string) (*cachestore.Entry, error) {
	v, ok := s.entries.Load(nodeID)
	if !ok {
		return nil, nil
	}
	entry := v.(cachestore.Entry)
	if entry.InputHash != inputHash {
		return nil, nil
	}
	return &entry, nil
}

// GetByContentHash implements cachestore.Store.
func (s *Store) GetByContentHash(ctx context.Context, hash string) (*cachestore.Entry, error) {
	var found *cachestore.Entry
	s.entries.Range(func(_, v any) bool {
		entry := v.(cachestore.Entry)
		if entry.Hash == hash {
			found = &entry
			return false
		}
		return true
	})
	return found, nil
}

// GetForNode implements cachestore.Store.
func (s *Store) GetForNode(ctx context.Context, nodeID string) (*cachestore.Entry, error) {
	v, ok := s.entries.Load(nodeID)
	if !ok {
		return nil, nil
	}
	entry := v.(cachestore.Entry)
	return &entry, nil
}

// Touch implements cachestore.Store.
func (s *Store) Touch(ctx context.Context, nodeID string) error {
	v, ok := s.entries.Load(nodeID)
	if !ok {
		return nil
	}
	entry := v.(cachestore.Entry)
	entry.Age = cachestore.Now()
	s.entries.Store(nodeID, entry)
	return nil
}

// Cleanup implements cachestore.Store.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0
	s.entries.Range(func(k, v any) bool {
		if v.(cachestore.Entry).Age <= cutoff {
			s.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed, nil
}

// DeleteForNode implements cachestore.Store.
func (s *Store) DeleteForNode(ctx context.Context, nodeID string) error {
	s.entries.Delete(nodeID)
	return nil
}

// DeleteForNodes implements cachestore.Store.
func (s *Store) DeleteForNodes(ctx context.Context, nodeIDs []string) error {
	for _, id := range nodeIDs {
		s.entries.Delete(id)
	}
	return nil
}

// Close implements cachestore.Store. Nothing to release.
func (s *Store) Close() error {
	return nil
}
