package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// UpdateFunc mutates a locked order snapshot. Returning an error aborts the
// update and nothing is written.
type UpdateFunc func(o *order.Order) error

// ListQuery filters a listing. Statuses empty means any status.
type ListQuery struct {
	Statuses []order.Status
	Offset   int
	Limit    int
}

// Store persists orders.
type Store interface {
	// CreateOrder inserts o. It returns ErrDuplicateOrder if the hash exists.
	CreateOrder(ctx context.Context, o *order.Order) error
	// GetOrder returns ErrOrderNotFound if no order has the hash.
	GetOrder(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	// ListOrders returns one page ordered newest first, plus the total
	// number of matching orders.
	ListOrders(ctx context.Context, q ListQuery) ([]*order.Order, int, error)
	// UpdateOrder locks the order row, runs fn on it and writes the result
	// in one transaction. A non-empty eventID is recorded in the same
	// transaction; a repeated eventID fails with ErrEventAlreadyApplied
	// before fn runs.
	UpdateOrder(ctx context.Context, orderHash common.Hash, eventID string, fn UpdateFunc) (*order.Order, error)
}

// activeStatuses lists every non-terminal status.
func activeStatuses() []order.Status {
	var out []order.Status
	for _, s := range order.AllStatuses() {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}
