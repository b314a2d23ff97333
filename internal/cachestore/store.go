// Package cachestore defines the contract for the durable result cache:
// a keyed table of (nodeID, inputHash) → committed result.
//
// # Why a separate interface package
//
// Processors and the engine only speak this interface; the concrete backend
// (in-memory for tests and ephemeral sessions, bbolt for durable local
// storage) is chosen once at session construction. See internal/inmemorycache
// and internal/boltcache for the implementations.
//
// # Invariants
//
//   - At most one entry per node ID. Put with an existing ID replaces the
//     prior entry, last write wins.
//   - InputHash is the memoization key: Get hits only on an exact match.
//   - Hash is the content identity of the stored result and supports
//     cross-node dedup lookups via GetByContentHash.
//   - Absence of an entry is never an error; storage failures are.
package cachestore

import (
	"context"
	"time"

	"github.com/vk/mediagraph/internal/graph"
)

// Entry is one cached processing result.
type Entry struct {
	// ID is the owning node's ID, the table's primary key.
	ID string `json:"id"`
	// Name is a human-readable label carried for cache inspection UIs.
	Name string `json:"name,omitempty"`
	// Hash is the content hash of Result.
	Hash string `json:"hash"`
	// InputHash is the fingerprint of upstream input + node config under
	// which Result was computed.
	InputHash string `json:"inputHash"`
	// Age is the last-touched time in milliseconds since the epoch.
	// Updated by Touch on every cache hit to support age-based eviction.
	Age int64 `json:"age"`
	// Result is the committed output payload.
	Result *graph.Result `json:"result"`
	// BlobID optionally references an externally stored binary payload.
	BlobID string `json:"blobId,omitempty"`
}

// Store is the interface every cache backend implements. All methods are
// safe for concurrent use; writes are atomic per key and reads never block
// writes on other keys.
type Store interface {
	// Put upserts the entry under entry.ID.
	Put(ctx context.Context, entry Entry) error

	// Get returns the entry for nodeID if and only if its InputHash
	// matches. A nil entry with nil error means a miss: either never
	// computed, or computed under a different input hash.
	Get(ctx context.Context, nodeID, inputHash string) (*Entry, error)

	// GetByContentHash returns any entry whose content hash matches,
	// regardless of owning node. Nil on no match.
	GetByContentHash(ctx context.Context, hash string) (*Entry, error)

	// GetForNode returns the node's entry whatever its input hash, or nil.
	// Chained processors fold the prior entry's content hash into the next
	// memoization key.
	GetForNode(ctx context.Context, nodeID string) (*Entry, error)

	// Touch refreshes the entry's Age to now without altering content.
	// Touching a missing entry is a no-op.
	Touch(ctx context.Context, nodeID string) error

	// Cleanup deletes every entry older than now-maxAge and reports how
	// many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)

	// DeleteForNode removes the node's entry regardless of age. Used when
	// a graph edit breaks the node's required upstream connection, so a
	// stale result cannot outlive the input it was computed from.
	DeleteForNode(ctx context.Context, nodeID string) error

	// DeleteForNodes removes entries for all given nodes.
	DeleteForNodes(ctx context.Context, nodeIDs []string) error

	// Close releases the backing storage.
	Close() error
}

// Now returns the current time in the millisecond-epoch representation
// entries use. Split out so tests can reason about Age arithmetic.
func Now() int64 {
	return time.Now().UnixMilli()
}
