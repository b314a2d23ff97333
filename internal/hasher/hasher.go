// Package hasher computes the deterministic fingerprints the cache is keyed
// by. A node's memoization key is the concatenation of its upstream result
// hash and its own config hash, so the key changes whenever either side
// changes.
//
// Exactly one Hasher instance is injected per editor session. Mixing
// algorithms within a session would make "have we seen this configuration"
// and "is this the same result" disagree, so the engine never constructs
// more than one.
package hasher

import (
	"encoding/json"
	"fmt"
	"strings"
)

// dataURLPrefixLen bounds how much of an embedded data-URL participates in
// the fingerprint. Enough to distinguish distinct payload headers without
// canonicalizing multi-megabyte blobs.
const dataURLPrefixLen = 100

// Hasher turns an arbitrary config or result value into a stable
// fingerprint string.
type Hasher interface {
	// Canonicalize produces a deterministic byte serialization of v.
	// Map key insertion order never affects the output.
	Canonicalize(v any) ([]byte, error)
	// Digest hashes an already-canonical byte string.
	Digest(b []byte) string
	// Hash is Canonicalize followed by Digest.
	Hash(v any) (string, error)
}

// InputHash composes the cache memoization key for a node from its resolved
// upstream hash, its config hash, and (for chained processors) the hash of
// the prior cache entry it builds on. Empty segments contribute nothing.
func InputHash(sourceHash, configHash, priorHash string) string {
	return sourceHash + configHash + priorHash
}

// canonicalize is shared by every Hasher implementation: JSON-normalize the
// value into maps/slices/scalars, substitute blob payloads with stable
// identities, then re-marshal. encoding/json serializes map keys sorted,
// which gives key-order independence for free.
func canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: value is not serializable: %w", err)
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("canonicalize: re-parse failed: %w", err)
	}

	out, err := json.Marshal(substituteBlobs(tree))
	if err != nil {
		return nil, fmt.Errorf("canonicalize: re-marshal failed: %w", err)
	}
	return out, nil
}

// substituteBlobs rewrites blob-like payloads into stable identities:
// a referenced file collapses to its ID, and any embedded data-URL string
// is truncated to a bounded prefix.
func substituteBlobs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		fileID := ""
		if file, ok := t["file"].(map[string]any); ok {
			if id, ok := file["id"].(string); ok {
				fileID = id
			}
		}
		for k, val := range t {
			switch {
			case k == "file" && fileID != "":
				out[k] = fileID
			case k == "data" && fileID != "":
				// The file reference is the payload's identity; the
				// embedded copy adds nothing but bytes.
				continue
			default:
				out[k] = substituteBlobs(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = substituteBlobs(val)
		}
		return out
	case string:
		if strings.HasPrefix(t, "data:") && len(t) > dataURLPrefixLen {
			return t[:dataURLPrefixLen]
		}
		return t
	default:
		return v
	}
}
