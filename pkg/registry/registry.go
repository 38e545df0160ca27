// Package registry is the order registry: the single source of truth for the
// status of every swap order.
//
// Makers submit signed orders, resolvers page through active orders and
// report the transactions they sent, and the watcher is the only writer of
// status. Each write is a single-row transaction on the order.
package registry

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

var (
	// ErrOrderNotFound is returned when no order has the requested hash.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when an order with the same hash exists.
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrTransitionConflict is returned when the current status does not
	// permit the requested transition.
	ErrTransitionConflict = errors.New("status transition conflict")
	// ErrEventAlreadyApplied is returned when a transition carries an event
	// ID that was applied before.
	ErrEventAlreadyApplied = errors.New("event already applied")
	// ErrSecretRejected is returned when a secret does not fit the order.
	ErrSecretRejected = errors.New("secret rejected")
)

// Service is the order registry API.
type Service interface {
	// Submit validates and stores a signed order and returns its hash.
	Submit(ctx context.Context, o *order.Order) (common.Hash, error)
	// Get returns the current snapshot of one order.
	Get(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	// GetActive pages through orders that have not reached a terminal status.
	GetActive(ctx context.Context, q ActiveQuery) (*Page, error)
	// ApplyTransition moves an order to a new status together with its
	// field updates.
	ApplyTransition(ctx context.Context, t *Transition) (*order.Order, error)
	// RecordExecution stores the escrow address and transaction hash a
	// resolver produced. It never changes status.
	RecordExecution(ctx context.Context, e *Execution) (*order.Order, error)
	// SubmitSecret discloses a secret for an order whose escrows both exist.
	SubmitSecret(ctx context.Context, orderHash common.Hash, secret string) (*order.SecretEntry, error)
	// GetSecret returns every secret disclosed for an order.
	GetSecret(ctx context.Context, orderHash common.Hash) ([]order.SecretEntry, error)
}

// ActiveQuery selects a page of active orders. Zero values take the
// configured defaults.
type ActiveQuery struct {
	Page   int
	Limit  int
	Status order.Status
}

// Meta describes one page of a listing.
type Meta struct {
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
	TotalPages   int `json:"total_pages"`
	CurrentPage  int `json:"current_page"`
}

// Page is one page of active orders.
type Page struct {
	Items []*order.Order `json:"items"`
	Meta  Meta           `json:"meta"`
}

// Transition is one status write. An empty To applies the updates without
// moving the status.
type Transition struct {
	OrderHash common.Hash  `json:"order_hash"`
	To        order.Status `json:"to,omitempty"`
	Updates   Updates      `json:"updates"`
	// EventID identifies the chain event behind the transition. A repeated
	// event ID is rejected with ErrEventAlreadyApplied.
	EventID string `json:"event_id,omitempty"`
}

// Updates are the derived fields written together with a transition. Zero
// fields are left untouched.
type Updates struct {
	SrcEscrowAddress      string            `json:"src_escrow_address,omitempty"`
	DstEscrowAddress      string            `json:"dst_escrow_address,omitempty"`
	SrcTxHash             string            `json:"src_tx_hash,omitempty"`
	DstTxHash             string            `json:"dst_tx_hash,omitempty"`
	SrcWithdrawTxHash     string            `json:"src_withdraw_tx_hash,omitempty"`
	DstWithdrawTxHash     string            `json:"dst_withdraw_tx_hash,omitempty"`
	SrcImmutables         *order.Immutables `json:"src_immutables,omitempty"`
	DstImmutables         *order.Immutables `json:"dst_immutables,omitempty"`
	SrcWithdrawImmutables *order.Immutables `json:"src_withdraw_immutables,omitempty"`
	DstWithdrawImmutables *order.Immutables `json:"dst_withdraw_immutables,omitempty"`
	FilledMakerAmount     string            `json:"filled_maker_amount,omitempty"`
	FilledTakerAmount     string            `json:"filled_taker_amount,omitempty"`
	// Secret is a secret revealed on chain, hex without 0x.
	Secret string `json:"secret,omitempty"`
}

// Stage is the kind of transaction an execution report describes.
type Stage string

const (
	StageDeploy   Stage = "deploy"
	StageWithdraw Stage = "withdraw"
	StageRescue   Stage = "rescue"
)

// Execution is a resolver's report of a transaction it sent.
type Execution struct {
	OrderHash     common.Hash `json:"order_hash"`
	ChainID       string      `json:"chain_id"`
	Stage         Stage       `json:"stage"`
	TxHash        string      `json:"tx_hash"`
	EscrowAddress string      `json:"escrow_address,omitempty"`
}
