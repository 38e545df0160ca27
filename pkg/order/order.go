// Package order defines the cross-chain swap order, its status lattice and
// the digest makers sign.
package order

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Type distinguishes single-secret orders from multi-fill orders.
type Type string

const (
	TypeSingleFill    Type = "single_fill"
	TypeMultipleFills Type = "multiple_fills"
)

// Intent is the maker's signed swap intent. It never changes after signing.
// Amounts are in token base units.
type Intent struct {
	Salt         string          `json:"salt" validate:"required"`
	Maker        string          `json:"maker" validate:"required,eth_addr"`
	Receiver     string          `json:"receiver" validate:"required,eth_addr"`
	Taker        string          `json:"taker" validate:"required,eth_addr"`
	MakerAsset   string          `json:"maker_asset" validate:"required,eth_addr"`
	TakerAsset   string          `json:"taker_asset" validate:"required,eth_addr"`
	MakingAmount decimal.Decimal `json:"making_amount" validate:"positive_amount"`
	TakingAmount decimal.Decimal `json:"taking_amount" validate:"positive_amount"`
	MakerTraits  string          `json:"maker_traits,omitempty"`
	SrcChainID   string          `json:"src_chain_id" validate:"required"`
	DstChainID   string          `json:"dst_chain_id" validate:"required,nefield=SrcChainID"`
	// Deadline is a unix timestamp in milliseconds.
	Deadline int64 `json:"deadline" validate:"gt=0"`
}

// Commitment binds the order to a secret and a timelock. It never changes
// after creation.
type Commitment struct {
	// SecretHash is sha256 of the secret, or the root over several secret
	// hashes for multi-fill orders.
	SecretHash common.Hash `json:"secret_hash" validate:"nonzero_hash"`
	// Timelock is the escrow timelock in blocks.
	Timelock uint64 `json:"timelock" validate:"gt=0"`
	// SafetyDeposit is the deposit each escrow of the order carries.
	SafetyDeposit decimal.Decimal `json:"safety_deposit"`
}

// Immutables is the parameter set both chains' escrows must agree on.
type Immutables struct {
	OrderHash     common.Hash     `json:"order_hash"`
	Hashlock      common.Hash     `json:"hashlock"`
	Maker         string          `json:"maker"`
	Taker         string          `json:"taker"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	SafetyDeposit decimal.Decimal `json:"safety_deposit"`
	Timelock      uint64          `json:"timelock"`
	ChainID       string          `json:"chain_id"`
	EscrowAddress string          `json:"escrow_address,omitempty"`
	// DeployedAt is the block the escrow was created in, once known.
	DeployedAt uint64 `json:"deployed_at,omitempty"`
}

// SecretEntry is one disclosed secret. Index orders fills of multi-fill orders.
type SecretEntry struct {
	Index      int         `json:"index"`
	Secret     string      `json:"secret,omitempty"`
	SecretHash common.Hash `json:"secret_hash"`
}

// Order is the registry's full snapshot of a swap.
type Order struct {
	OrderHash  common.Hash `json:"order_hash"`
	Intent     Intent      `json:"order"`
	Commitment Commitment  `json:"commitment"`
	Signature  string      `json:"signature"`
	Type       Type        `json:"order_type"`
	Status     Status      `json:"status"`

	SrcEscrowAddress  string          `json:"src_escrow_address,omitempty"`
	DstEscrowAddress  string          `json:"dst_escrow_address,omitempty"`
	SrcTxHash         string          `json:"src_tx_hash,omitempty"`
	DstTxHash         string          `json:"dst_tx_hash,omitempty"`
	SrcWithdrawTxHash string          `json:"src_withdraw_tx_hash,omitempty"`
	DstWithdrawTxHash string          `json:"dst_withdraw_tx_hash,omitempty"`
	FilledMakerAmount decimal.Decimal `json:"filled_maker_amount"`
	FilledTakerAmount decimal.Decimal `json:"filled_taker_amount"`

	SrcImmutables         *Immutables `json:"src_immutables,omitempty"`
	DstImmutables         *Immutables `json:"dst_immutables,omitempty"`
	SrcWithdrawImmutables *Immutables `json:"src_withdraw_immutables,omitempty"`
	DstWithdrawImmutables *Immutables `json:"dst_withdraw_immutables,omitempty"`

	Secrets []SecretEntry `json:"secrets"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Digest returns the hash the maker signs and escrows key on.
func (o *Order) Digest() common.Hash {
	return Hash(o.Intent, o.Commitment)
}

// Expired reports whether the intent deadline is before now.
func (o *Order) Expired(now time.Time) bool {
	return o.Intent.Deadline < now.UnixMilli()
}

// UnlockSecret returns the disclosed secret that opens the order hashlock.
// Recorded secrets that do not hash to the commitment are ignored.
func (o *Order) UnlockSecret() ([]byte, bool) {
	for _, s := range o.Secrets {
		if s.Secret == "" {
			continue
		}
		b, err := DecodeSecret(s.Secret)
		if err == nil && SecretHash(b) == o.Commitment.SecretHash {
			return b, true
		}
	}
	return nil, false
}

// HasSecret reports whether secret hex was already recorded.
func (o *Order) HasSecret(secretHex string) bool {
	for _, s := range o.Secrets {
		if strings.EqualFold(s.Secret, secretHex) {
			return true
		}
	}
	return false
}

// AppendSecret records a disclosed secret and returns its entry.
func (o *Order) AppendSecret(secret []byte) SecretEntry {
	entry := SecretEntry{
		Index:      len(o.Secrets),
		Secret:     hex.EncodeToString(secret),
		SecretHash: SecretHash(secret),
	}
	o.Secrets = append(o.Secrets, entry)
	return entry
}

// DecodeSecret parses a secret given as hex without the 0x prefix.
func DecodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("secret is empty")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("secret must be hex without 0x prefix")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secret is not valid hex: %w", err)
	}
	return b, nil
}

// Side tells which leg of an order a chain carries.
type Side int

const (
	SideNone Side = iota
	SideSource
	SideDestination
)

func (s Side) String() string {
	switch s {
	case SideSource:
		return "src"
	case SideDestination:
		return "dst"
	default:
		return "none"
	}
}

// SideOf returns the leg chainID plays in the order.
func (o *Order) SideOf(chainID string) Side {
	switch chainID {
	case o.Intent.SrcChainID:
		return SideSource
	case o.Intent.DstChainID:
		return SideDestination
	default:
		return SideNone
	}
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.SrcImmutables = cloneImmutables(o.SrcImmutables)
	c.DstImmutables = cloneImmutables(o.DstImmutables)
	c.SrcWithdrawImmutables = cloneImmutables(o.SrcWithdrawImmutables)
	c.DstWithdrawImmutables = cloneImmutables(o.DstWithdrawImmutables)
	if o.Secrets != nil {
		c.Secrets = append([]SecretEntry(nil), o.Secrets...)
	}
	return &c
}

func cloneImmutables(im *Immutables) *Immutables {
	if im == nil {
		return nil
	}
	c := *im
	return &c
}
