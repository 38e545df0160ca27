package watcher

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// Decision tells the poller what to do with a chain event.
type Decision int

const (
	// Apply writes the transition to the registry.
	Apply Decision = iota
	// Skip drops the event; Reason says why.
	Skip
	// Defer holds the event until the order catches up, e.g. a destination
	// escrow seen before the source escrow was applied.
	Defer
)

// Skip reasons, used as metric labels.
const (
	ReasonDuplicate        = "duplicate"
	ReasonForeignChain     = "foreign_chain"
	ReasonUnknownOrder     = "unknown_order"
	ReasonHashlockMismatch = "hashlock_mismatch"
	ReasonTermsMismatch    = "terms_mismatch"
	ReasonForeignEscrow    = "foreign_escrow"
	ReasonSecretMismatch   = "secret_mismatch"
	ReasonNotApplicable    = "not_applicable"
	ReasonAlreadyApplied   = "already_applied"
	ReasonConflict         = "conflict"
	ReasonDeferredTooLong  = "deferred_too_long"
	ReasonRejected         = "rejected"
)

// Outcome is the result of translating one event.
type Outcome struct {
	Decision   Decision
	Transition *registry.Transition
	Reason     string
}

func skip(reason string) Outcome {
	return Outcome{Decision: Skip, Reason: reason}
}

func apply(t *registry.Transition) Outcome {
	return Outcome{Decision: Apply, Transition: t}
}

// EventID names the effect of an escrow event on an order. It is stable
// across redelivery and reorgs, so the registry applies each effect once.
func EventID(orderHash common.Hash, kind string, side order.Side) string {
	return fmt.Sprintf("%s:%s-%s", orderHash.Hex(), kind, side)
}

// Translate maps ev onto the next transition of o.
//
// confirmed is false for events inside the confirmation window; those only
// move an order into a withdraw-pending status. escrows maps chain IDs to
// their escrow deployment addresses.
func Translate(o *order.Order, ev chain.Event, confirmed bool, escrows map[string]string) Outcome {
	side := o.SideOf(ev.ChainID)
	if side == order.SideNone {
		return skip(ReasonForeignChain)
	}

	switch ev.Kind {
	case escrow.EventCreated:
		if !confirmed {
			return skip(ReasonNotApplicable)
		}
		if side == order.SideSource {
			return sourceCreated(o, ev, escrows)
		}
		return destinationCreated(o, ev, escrows)
	case escrow.EventWithdraw:
		if !confirmed {
			return withdrawPending(o, ev, side)
		}
		return withdrawn(o, ev, side)
	case escrow.EventRescue:
		if !confirmed {
			return skip(ReasonNotApplicable)
		}
		return rescued(o, ev, side)
	default:
		return skip(ReasonNotApplicable)
	}
}

// sourceCreated accepts only the escrow the maker funded through its signed
// intent: outbound, in the maker asset, for at least the making amount.
func sourceCreated(o *order.Order, ev chain.Event, escrows map[string]string) Outcome {
	if o.Status != order.StatusUnmatched {
		return skip(ReasonDuplicate)
	}
	if ev.SecretHash != o.Commitment.SecretHash {
		return skip(ReasonHashlockMismatch)
	}
	if ev.Inbound ||
		ev.Token != common.HexToAddress(o.Intent.MakerAsset) ||
		ev.Initiator != common.HexToAddress(o.Intent.Maker) ||
		ev.Amount == nil || ev.Amount.Cmp(o.Intent.MakingAmount.BigInt()) < 0 {
		return skip(ReasonTermsMismatch)
	}

	srcEscrow := escrows[o.Intent.SrcChainID]
	src := &order.Immutables{
		OrderHash:     o.OrderHash,
		Hashlock:      ev.SecretHash,
		Maker:         ev.Initiator.Hex(),
		Taker:         ev.Redeemer.Hex(),
		Token:         ev.Token.Hex(),
		Amount:        amount(ev.Amount),
		SafetyDeposit: amount(ev.Deposit),
		Timelock:      ev.Timelock,
		ChainID:       ev.ChainID,
		EscrowAddress: srcEscrow,
		DeployedAt:    ev.BlockNumber,
	}
	// The destination escrow pays the maker's receiver and is funded by the
	// resolver that redeems the source escrow.
	dst := &order.Immutables{
		OrderHash:     o.OrderHash,
		Hashlock:      o.Commitment.SecretHash,
		Maker:         o.Intent.Receiver,
		Taker:         ev.Redeemer.Hex(),
		Token:         o.Intent.TakerAsset,
		Amount:        o.Intent.TakingAmount,
		SafetyDeposit: o.Commitment.SafetyDeposit,
		Timelock:      o.Commitment.Timelock,
		ChainID:       o.Intent.DstChainID,
		EscrowAddress: escrows[o.Intent.DstChainID],
	}

	return apply(&registry.Transition{
		OrderHash: o.OrderHash,
		To:        order.StatusSourceFilled,
		EventID:   EventID(o.OrderHash, "created", order.SideSource),
		Updates: registry.Updates{
			SrcEscrowAddress:  srcEscrow,
			SrcTxHash:         ev.TxHash.Hex(),
			SrcImmutables:     src,
			DstImmutables:     dst,
			FilledMakerAmount: src.Amount.String(),
			FilledTakerAmount: o.Intent.TakingAmount.String(),
		},
	})
}

// destinationCreated checks the escrow terms before looking at status, so
// only an escrow that could fill the order is ever deferred.
func destinationCreated(o *order.Order, ev chain.Event, escrows map[string]string) Outcome {
	if o.Status.IsTerminal() {
		return skip(ReasonDuplicate)
	}
	if ev.SecretHash != o.Commitment.SecretHash {
		return skip(ReasonHashlockMismatch)
	}
	if ev.Token != common.HexToAddress(o.Intent.TakerAsset) ||
		ev.Redeemer != common.HexToAddress(o.Intent.Receiver) ||
		ev.Amount == nil || ev.Amount.Cmp(o.Intent.TakingAmount.BigInt()) < 0 {
		return skip(ReasonTermsMismatch)
	}
	switch o.Status {
	case order.StatusUnmatched:
		return Outcome{Decision: Defer}
	case order.StatusSourceFilled:
	default:
		return skip(ReasonDuplicate)
	}

	dstEscrow := escrows[o.Intent.DstChainID]
	dst := &order.Immutables{
		OrderHash:     o.OrderHash,
		Hashlock:      ev.SecretHash,
		Maker:         ev.Redeemer.Hex(),
		Taker:         ev.Initiator.Hex(),
		Token:         ev.Token.Hex(),
		Amount:        amount(ev.Amount),
		SafetyDeposit: amount(ev.Deposit),
		Timelock:      ev.Timelock,
		ChainID:       ev.ChainID,
		EscrowAddress: dstEscrow,
		DeployedAt:    ev.BlockNumber,
	}

	return apply(&registry.Transition{
		OrderHash: o.OrderHash,
		To:        order.StatusDestinationFilled,
		EventID:   EventID(o.OrderHash, "created", order.SideDestination),
		Updates: registry.Updates{
			DstEscrowAddress:      dstEscrow,
			DstTxHash:             ev.TxHash.Hex(),
			DstImmutables:         dst,
			SrcWithdrawImmutables: o.SrcImmutables,
			DstWithdrawImmutables: dst,
		},
	})
}

// ownEscrow reports whether ev came from the escrow that carries the given
// leg of o. Escrows are keyed by token and order hash, so anyone can open
// another one under the same hash in a different token.
func ownEscrow(o *order.Order, ev chain.Event, side order.Side) bool {
	token := o.Intent.MakerAsset
	im := o.SrcImmutables
	if side == order.SideDestination {
		token, im = o.Intent.TakerAsset, o.DstImmutables
	}
	if im != nil && im.Token != "" {
		token = im.Token
	}
	return ev.Token == common.HexToAddress(token)
}

// checkWithdraw validates a withdraw event against o. A withdraw that
// reveals anything but the preimage of the order hashlock is not ours.
func checkWithdraw(o *order.Order, ev chain.Event, side order.Side) (string, bool) {
	if !ownEscrow(o, ev, side) {
		return ReasonForeignEscrow, false
	}
	if order.SecretHash(ev.Secret) != o.Commitment.SecretHash {
		return ReasonSecretMismatch, false
	}
	return "", true
}

func withdrawPending(o *order.Order, ev chain.Event, side order.Side) Outcome {
	if reason, ok := checkWithdraw(o, ev, side); !ok {
		return skip(reason)
	}
	target := order.StatusSourceWithdrawPending
	if side == order.SideDestination {
		target = order.StatusDestinationWithdrawPending
	}
	if !order.CanTransition(o.Status, target) {
		return skip(ReasonNotApplicable)
	}
	return apply(&registry.Transition{
		OrderHash: o.OrderHash,
		To:        target,
		EventID:   EventID(o.OrderHash, "withdraw-pending", side),
		Updates:   registry.Updates{Secret: hex.EncodeToString(ev.Secret)},
	})
}

func withdrawn(o *order.Order, ev chain.Event, side order.Side) Outcome {
	own, counterpart := order.StatusSourceSettled, order.StatusDestinationSettled
	if side == order.SideDestination {
		own, counterpart = counterpart, own
	}
	if o.Status.IsTerminal() || o.Status == own {
		return skip(ReasonDuplicate)
	}
	if reason, ok := checkWithdraw(o, ev, side); !ok {
		return skip(reason)
	}

	target := own
	if o.Status == counterpart {
		target = order.StatusFulfilled
	}
	if !order.CanTransition(o.Status, target) {
		return Outcome{Decision: Defer}
	}

	u := registry.Updates{Secret: hex.EncodeToString(ev.Secret)}
	if side == order.SideSource {
		u.SrcWithdrawTxHash = ev.TxHash.Hex()
	} else {
		u.DstWithdrawTxHash = ev.TxHash.Hex()
	}
	return apply(&registry.Transition{
		OrderHash: o.OrderHash,
		To:        target,
		EventID:   EventID(o.OrderHash, "withdraw", side),
		Updates:   u,
	})
}

// rescued maps a private rescue (the initiator reclaiming its funds) to
// *_refunded and a public one to *_canceled.
func rescued(o *order.Order, ev chain.Event, side order.Side) Outcome {
	if o.Status.IsTerminal() {
		return skip(ReasonDuplicate)
	}
	if !ownEscrow(o, ev, side) {
		return skip(ReasonForeignEscrow)
	}
	var target order.Status
	switch {
	case side == order.SideSource && ev.IsPublic:
		target = order.StatusSourceCanceled
	case side == order.SideSource:
		target = order.StatusSourceRefunded
	case ev.IsPublic:
		target = order.StatusDestinationCanceled
	default:
		target = order.StatusDestinationRefunded
	}
	return apply(&registry.Transition{
		OrderHash: o.OrderHash,
		To:        target,
		EventID:   EventID(o.OrderHash, "rescue", side),
	})
}

func amount(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}
