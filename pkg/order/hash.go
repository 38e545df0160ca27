package order

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var orderArgs = mustArguments(
	"bytes32", // salt
	"address", // maker
	"address", // receiver
	"address", // taker
	"address", // maker asset
	"address", // taker asset
	"uint256", // making amount
	"uint256", // taking amount
	"bytes32", // maker traits
	"string",  // src chain
	"string",  // dst chain
	"uint64",  // deadline
	"bytes32", // secret hash
	"uint64",  // timelock
	"uint256", // safety deposit
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("order: bad abi type %q: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Hash computes the order hash: keccak256 over the ABI-encoded intent and
// commitment.
func Hash(in Intent, c Commitment) common.Hash {
	return crypto.Keccak256Hash(Encode(in, c))
}

// Encode returns the ABI encoding of the order that Hash digests and escrow
// contracts receive. Free-form strings are folded to bytes32 first.
func Encode(in Intent, c Commitment) []byte {
	packed, err := orderArgs.Pack(
		crypto.Keccak256Hash([]byte(in.Salt)),
		common.HexToAddress(in.Maker),
		common.HexToAddress(in.Receiver),
		common.HexToAddress(in.Taker),
		common.HexToAddress(in.MakerAsset),
		common.HexToAddress(in.TakerAsset),
		BaseUnits(in.MakingAmount),
		BaseUnits(in.TakingAmount),
		crypto.Keccak256Hash([]byte(in.MakerTraits)),
		in.SrcChainID,
		in.DstChainID,
		uint64(in.Deadline),
		c.SecretHash,
		c.Timelock,
		BaseUnits(c.SafetyDeposit),
	)
	if err != nil {
		// Argument types are fixed above, so packing cannot fail.
		panic(fmt.Sprintf("order: pack order: %v", err))
	}
	return packed
}

// SecretHash returns sha256(secret), the hashlock escrows commit to.
func SecretHash(secret []byte) common.Hash {
	return sha256.Sum256(secret)
}

// BaseUnits converts a decimal amount into the integer escrows work with.
// Fractions are truncated.
func BaseUnits(d decimal.Decimal) *big.Int {
	return d.BigInt()
}

// FromBaseUnits is the inverse of BaseUnits.
func FromBaseUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
