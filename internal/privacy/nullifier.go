package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NullifierSize is the length of a nullifier secret in bytes.
const NullifierSize = 32

// Nullifier is a random secret and its keccak256 hash, both hex encoded.
// Only the hash is ever recorded.
type Nullifier struct {
	Nullifier     string
	NullifierHash string
}

// GenerateNullifier draws a fresh nullifier.
func GenerateNullifier() (*Nullifier, error) {
	secret := make([]byte, NullifierSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate nullifier: %w", err)
	}
	return &Nullifier{
		Nullifier:     hex.EncodeToString(secret),
		NullifierHash: HashNullifier(secret),
	}, nil
}

// HashNullifier returns hex(keccak256(nullifier)).
func HashNullifier(nullifier []byte) string {
	return hex.EncodeToString(Keccak256(nullifier))
}
