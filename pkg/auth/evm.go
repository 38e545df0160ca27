package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSignerMismatch is returned when a signature recovers to someone other
// than the expected signer.
var ErrSignerMismatch = errors.New("signature was not produced by the expected signer")

// VerifyEIP191Signature verifies an EIP-191 personal_sign signature
// Returns the recovered Ethereum address if valid
func VerifyEIP191Signature(message, signature string) (common.Address, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	return recoverEIP191(message, sigBytes)
}

func recoverEIP191(message string, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: expected 65, got %d", len(sig))
	}

	// v can be 0, 1, 27, or 28 - normalize to 0 or 1
	sigBytes := make([]byte, 65)
	copy(sigBytes, sig)
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}

	prefixedMsg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	msgHash := crypto.Keccak256Hash([]byte(prefixedMsg))

	pubKey, err := crypto.SigToPub(msgHash.Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifyOrderSignature checks that signature is the maker's EIP-191
// signature over the hex order hash.
func VerifyOrderSignature(orderHash common.Hash, signature, maker string) error {
	signer, err := VerifyEIP191Signature(orderHash.Hex(), signature)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(maker) {
		return fmt.Errorf("%w: recovered %s, want %s", ErrSignerMismatch, signer.Hex(), NormalizeAddress(maker))
	}
	return nil
}

// DigestVerifier checks escrow creation signatures. It satisfies
// escrow.Verifier.
type DigestVerifier struct{}

// Verify recovers the signer of digest and compares it with signer.
func (DigestVerifier) Verify(digest common.Hash, signature []byte, signer common.Address) error {
	recovered, err := recoverEIP191(digest.Hex(), signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return fmt.Errorf("%w: recovered %s, want %s", ErrSignerMismatch, recovered.Hex(), signer.Hex())
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed hex signature.
func DecodeSignature(signature string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return b, nil
}

// ValidateEVMAddress checks if a string is a valid EVM address
func ValidateEVMAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") {
		return false
	}
	if len(address) != 42 {
		return false
	}
	_, err := hex.DecodeString(address[2:])
	return err == nil
}

// NormalizeAddress returns a checksummed EVM address
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
