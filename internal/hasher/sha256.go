package hasher

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 is the default engine hasher: a full cryptographic digest over the
// canonical serialization, hex-encoded. Stable across architectures.
type SHA256 struct{}

// NewSHA256 creates the default hasher.
func NewSHA256() *SHA256 {
	return &SHA256{}
}

// Canonicalize implements Hasher.
func (h *SHA256) Canonicalize(v any) ([]byte, error) {
	return canonicalize(v)
}

// Digest implements Hasher.
func (h *SHA256) Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Hash implements Hasher.
func (h *SHA256) Hash(v any) (string, error) {
	b, err := h.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return h.Digest(b), nil
}
