// Package ordertest builds signed orders for tests.
package ordertest

import (
	"crypto/ecdsa"
	"encoding/hex"
	"time"

	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const (
	SrcChain = "31337"
	DstChain = "31338"
)

var (
	SrcToken = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	DstToken = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	Resolver = common.HexToAddress("0x2222222222222222222222222222222222222222")
	// Secret is the preimage of the hashlock New commits to.
	Secret = []byte("correct horse battery staple")
)

// Key returns a deterministic maker key.
func Key() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		panic(err)
	}
	return key
}

// New returns an unmatched order signed by key. mutate runs before hashing.
func New(key *ecdsa.PrivateKey, mutate func(*order.Order)) *order.Order {
	maker := crypto.PubkeyToAddress(key.PublicKey)
	o := &order.Order{
		Intent: order.Intent{
			Salt:         "42",
			Maker:        maker.Hex(),
			Receiver:     maker.Hex(),
			Taker:        Resolver.Hex(),
			MakerAsset:   SrcToken.Hex(),
			TakerAsset:   DstToken.Hex(),
			MakingAmount: decimal.NewFromInt(100),
			TakingAmount: decimal.NewFromInt(99),
			MakerTraits:  "0",
			SrcChainID:   SrcChain,
			DstChainID:   DstChain,
			Deadline:     time.Now().Add(time.Hour).UnixMilli(),
		},
		Commitment: order.Commitment{
			SecretHash:    order.SecretHash(Secret),
			Timelock:      10,
			SafetyDeposit: decimal.NewFromInt(7),
		},
		Type:   order.TypeSingleFill,
		Status: order.StatusUnmatched,
	}
	if mutate != nil {
		mutate(o)
	}
	o.OrderHash = o.Digest()
	o.Signature = Sign(key, o.OrderHash)
	return o
}

// Sign produces an EIP-191 personal signature over the hex order hash.
func Sign(key *ecdsa.PrivateKey, hash common.Hash) string {
	sig, err := crypto.Sign(accounts.TextHash([]byte(hash.Hex())), key)
	if err != nil {
		panic(err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}
