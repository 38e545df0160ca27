// Package publisher announces applied order transitions to downstream
// consumers.
package publisher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// TransitionEvent is one applied status change.
type TransitionEvent struct {
	ID        string       `json:"id"`
	OrderHash common.Hash  `json:"order_hash"`
	From      order.Status `json:"from"`
	To        order.Status `json:"to"`
	// SourceEvent is the watcher event ID that caused the transition.
	SourceEvent string      `json:"source_event"`
	ChainID     string      `json:"chain_id,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	TxHash      common.Hash `json:"tx_hash,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// NewTransitionEvent stamps a fresh event ID and time.
func NewTransitionEvent(orderHash common.Hash, from, to order.Status, sourceEvent string) *TransitionEvent {
	return &TransitionEvent{
		ID:          uuid.NewString(),
		OrderHash:   orderHash,
		From:        from,
		To:          to,
		SourceEvent: sourceEvent,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher delivers transition events. Publish blocks until the event is
// acknowledged or ctx ends.
type Publisher interface {
	Publish(ctx context.Context, ev *TransitionEvent) error
	Close()
}

type nop struct{}

// NewNop returns a publisher that drops every event.
func NewNop() Publisher {
	return nop{}
}

func (nop) Publish(context.Context, *TransitionEvent) error { return nil }

func (nop) Close() {}
