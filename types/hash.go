package types

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte SHA-256 digest of a dashboard passphrase.
// The zero Hash means no passphrase has been set.
type Hash [32]byte

// HashPassphrase digests the UTF-8 bytes of a passphrase.
func HashPassphrase(passphrase string) Hash {
	return Hash(sha256.Sum256([]byte(passphrase)))
}

// Matches reports whether passphrase hashes to h. A zero hash never matches.
func (h Hash) Matches(passphrase string) bool {
	if h.IsZero() {
		return false
	}
	candidate := HashPassphrase(passphrase)
	return subtle.ConstantTimeCompare(h[:], candidate[:]) == 1
}

// IsZero reports whether no hash is set.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the lowercase hex encoding.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the zero hash.
func (h *Hash) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*h = Hash{}
		return nil
	}
	raw := make([]byte, hex.DecodedLen(len(data)))
	n, err := hex.Decode(raw, data)
	if err != nil {
		return fmt.Errorf("types: decode hash: %w", err)
	}
	return h.SetBytes(raw[:n])
}

// SetBytes copies a 32-byte slice into h. An empty slice resets h.
func (h *Hash) SetBytes(b []byte) error {
	if len(b) == 0 {
		*h = Hash{}
		return nil
	}
	if len(b) != len(h) {
		return fmt.Errorf("types: hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}
