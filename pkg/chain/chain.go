// Package chain defines the capability every supported chain family offers
// to the watcher and the resolver.
//
// Adapters report contract rejections as *escrow.Error so callers branch on
// escrow.Code the same way for every chain. Any other error is an
// infrastructure failure and may be retried.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// Event is an escrow event together with where it was included.
type Event struct {
	escrow.Event

	ChainID     string
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	LogIndex    uint
}

// Key identifies the event on its chain.
func (e Event) Key() string {
	return fmt.Sprintf("%s:%s:%d", e.ChainID, e.TxHash.Hex(), e.LogIndex)
}

// Receipt describes an included transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// OutboundRequest creates a source escrow on behalf of the maker, who
// authorized it by signing the order.
type OutboundRequest struct {
	Order     *order.Order
	Signature []byte
	Params    escrow.CreateParams
}

// Reader is the read side of a chain.
type Reader interface {
	ID() string
	LatestBlock(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	// Events returns escrow events in blocks [from, to], in chain order.
	Events(ctx context.Context, from, to uint64) ([]Event, error)
	// Escrow reads the record at (token, orderHash). A missing record is
	// escrow.ErrOrderNotFound.
	Escrow(ctx context.Context, token common.Address, orderHash common.Hash) (*escrow.Record, error)
	// EscrowAddress is the escrow deployment orders on this chain refer to.
	EscrowAddress() string
}

// Chain adds the escrow operations, sent from Account.
type Chain interface {
	Reader

	Account() common.Address
	CreateOutbound(ctx context.Context, req OutboundRequest) (*Receipt, error)
	CreateInbound(ctx context.Context, p escrow.CreateParams) (*Receipt, error)
	Withdraw(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*Receipt, error)
	WithdrawPublic(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*Receipt, error)
	Rescue(ctx context.Context, token common.Address, orderHash common.Hash) (*Receipt, error)
	RescuePublic(ctx context.Context, token common.Address, orderHash common.Hash) (*Receipt, error)
}
