package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/hkdf"
)

// SecretSize is the length of generated swap secrets.
const SecretSize = 32

// NewSecret returns a random swap secret and its sha256 hashlock.
func NewSecret() ([]byte, common.Hash, error) {
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, sha256.Sum256(secret), nil
}

// DeriveSecret deterministically derives the secret for an order salt and
// fill index from a maker seed, so a lost secret can be regenerated.
// Uses HKDF with SHA-256.
func DeriveSecret(seed []byte, salt string, index int) ([]byte, common.Hash, error) {
	if len(seed) < 32 {
		return nil, common.Hash{}, fmt.Errorf("seed must be at least 32 bytes")
	}

	info := []byte(fmt.Sprintf("htlc-secret-%s-%d", salt, index))
	reader := hkdf.New(sha256.New, seed, nil, info)

	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to derive secret: %w", err)
	}
	return secret, sha256.Sum256(secret), nil
}
