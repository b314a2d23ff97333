package hasher

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// XX64 is a fast non-cryptographic alternative for deployments where cache
// keys are low-stakes and throughput matters. It satisfies the same
// determinism contract as SHA256; pick one per session, never both.
type XX64 struct{}

// NewXX64 creates the fast hasher variant.
func NewXX64() *XX64 {
	return &XX64{}
}

// Canonicalize implements Hasher.
func (h *XX64) Canonicalize(v any) ([]byte, error) {
	return canonicalize(v)
}

// Digest implements Hasher.
func (h *XX64) Digest(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

// Hash implements Hasher.
func (h *XX64) Hash(v any) (string, error) {
	b, err := h.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return h.Digest(b), nil
}
