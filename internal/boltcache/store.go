// Package boltcache provides the durable implementation of the
// cachestore.Store interface, backed by a single bbolt file.
//
// # Layout
//
//   - bucket "entries": node ID → JSON-encoded cachestore.Entry
//   - bucket "content": content hash → node ID (secondary index for
//     cross-node dedup lookups)
//
// bbolt gives per-key atomic writes and non-blocking reads, which is
// exactly the shared-resource policy the engine needs: each node's entry is
// independent and no cross-key transactions are required.
package boltcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vk/mediagraph/internal/cachestore"
)

var (
	entriesBucket = []byte("entries")
	contentBucket = []byte("content")
)

// Store is the bbolt-backed cache backend.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the cache file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltcache: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(contentBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltcache: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Put implements cachestore.Store. The write replaces any prior entry for
// the node and keeps the content index in sync.
func (s *Store) Put(ctx context.Context, entry cachestore.Entry) error {
	if entry.Age == 0 {
		entry.Age = cachestore.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		content := tx.Bucket(contentBucket)

		if prev := entries.Get([]byte(entry.ID)); prev != nil {
			var old cachestore.Entry
			if err := json.Unmarshal(prev, &old); err == nil && old.Hash != entry.Hash {
				if err := content.Delete([]byte(old.Hash)); err != nil {
					return err
				}
			}
		}

		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", entry.ID, err)
		}
		if err := entries.Put([]byte(entry.ID), raw); err != nil {
			return err
		}
		if entry.Hash != "" {
			return content.Put([]byte(entry.Hash), []byte(entry.ID))
		}
		return nil
	})
}

// Get implements cachestore.Store.
func (s *Store) Get(ctx context.Context, nodeID, inputHash string) (*cachestore.Entry, error) {
	var found *cachestore.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(nodeID))
		if raw == nil {
			return nil
		}
		var entry cachestore.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", nodeID, err)
		}
		if entry.InputHash == inputHash {
			found = &entry
		}
		return nil
	})
	return found, err
}

// GetByContentHash implements cachestore.Store.
func (s *Store) GetByContentHash(ctx context.Context, hash string) (*cachestore.Entry, error) {
	var found *cachestore.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		nodeID := tx.Bucket(contentBucket).Get([]byte(hash))
		if nodeID == nil {
			return nil
		}
		raw := tx.Bucket(entriesBucket).Get(nodeID)
		if raw == nil {
			return nil // index points at an evicted entry
		}
		var entry cachestore.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", nodeID, err)
		}
		found = &entry
		return nil
	})
	return found, err
}

// GetForNode implements cachestore.Store.
func (s *Store) GetForNode(ctx context.Context, nodeID string) (*cachestore.Entry, error) {
	var found *cachestore.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(nodeID))
		if raw == nil {
			return nil
		}
		var entry cachestore.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", nodeID, err)
		}
		found = &entry
		return nil
	})
	return found, err
}

// Touch implements cachestore.Store.
func (s *Store) Touch(ctx context.Context, nodeID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		raw := entries.Get([]byte(nodeID))
		if raw == nil {
			return nil
		}
		var entry cachestore.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", nodeID, err)
		}
		entry.Age = cachestore.Now()
		updated, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return entries.Put([]byte(nodeID), updated)
	})
}

// Cleanup implements cachestore.Store.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		content := tx.Bucket(contentBucket)

		var stale [][]byte
		var staleHashes [][]byte
		err := entries.ForEach(func(k, v []byte) error {
			var entry cachestore.Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			if entry.Age <= cutoff {
				stale = append(stale, append([]byte(nil), k...))
				if entry.Hash != "" {
					staleHashes = append(staleHashes, []byte(entry.Hash))
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := entries.Delete(k); err != nil {
				return err
			}
		}
		for _, h := range staleHashes {
			if err := content.Delete(h); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// DeleteForNode implements cachestore.Store.
func (s *Store) DeleteForNode(ctx context.Context, nodeID string) error {
	return s.DeleteForNodes(ctx, []string{nodeID})
}

// DeleteForNodes implements cachestore.Store.
func (s *Store) DeleteForNodes(ctx context.Context, nodeIDs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		content := tx.Bucket(contentBucket)
		for _, id := range nodeIDs {
			raw := entries.Get([]byte(id))
			if raw == nil {
				continue
			}
			var entry cachestore.Entry
			if err := json.Unmarshal(raw, &entry); err == nil && entry.Hash != "" {
				if err := content.Delete([]byte(entry.Hash)); err != nil {
					return err
				}
			}
			if err := entries.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements cachestore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
