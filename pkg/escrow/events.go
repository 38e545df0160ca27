package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names the three events an escrow emits.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventWithdraw EventKind = "withdraw"
	EventRescue   EventKind = "rescue"
)

// Event is emitted by every successful state change of an escrow record.
type Event struct {
	Kind       EventKind
	Token      common.Address
	OrderHash  common.Hash
	SecretHash common.Hash
	Amount     *big.Int
	Deposit    *big.Int
	Initiator  common.Address
	Redeemer   common.Address
	Caller     common.Address
	Timelock   uint64
	// Secret is set on withdraw events only.
	Secret []byte
	// IsPublic marks withdraw and rescue calls made by a third party.
	IsPublic bool
	// Inbound marks created events that came through CreateInboundOrder.
	Inbound bool
}
