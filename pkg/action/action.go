// Package action derives the on-chain step a resolver must take next for an
// order, given the chain it serves. Derivation is pure and deterministic.
package action

import (
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// Kind is one on-chain step of the swap.
type Kind int

const (
	NoOp Kind = iota
	DeploySrcEscrow
	DeployDestEscrow
	WithdrawSrcEscrow
	WithdrawDestEscrow
)

var kindNames = map[Kind]string{
	NoOp:               "NoOp",
	DeploySrcEscrow:    "DeploySrcEscrow",
	DeployDestEscrow:   "DeployDestEscrow",
	WithdrawSrcEscrow:  "WithdrawSrcEscrow",
	WithdrawDestEscrow: "WithdrawDestEscrow",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Pair holds the step for each leg. A leg the local chain does not serve is
// always NoOp.
type Pair struct {
	Source      Kind
	Destination Kind
}

// IsNoOp reports whether neither leg needs work.
func (p Pair) IsNoOp() bool {
	return p.Source == NoOp && p.Destination == NoOp
}

// Derive returns the next steps for o as seen by a service on localChainID.
func Derive(o *order.Order, localChainID string) Pair {
	var p Pair
	if o.Intent.SrcChainID == localChainID {
		p.Source = sourceStep(o.Status)
	}
	if o.Intent.DstChainID == localChainID {
		p.Destination = destinationStep(o.Status)
	}
	return p
}

func sourceStep(s order.Status) Kind {
	switch s {
	case order.StatusUnmatched:
		return DeploySrcEscrow
	case order.StatusDestinationFilled, order.StatusSourceWithdrawPending:
		return WithdrawSrcEscrow
	default:
		return NoOp
	}
}

func destinationStep(s order.Status) Kind {
	switch s {
	case order.StatusSourceFilled:
		return DeployDestEscrow
	case order.StatusDestinationWithdrawPending, order.StatusSourceSettled:
		return WithdrawDestEscrow
	default:
		return NoOp
	}
}

// Action is one derived step bound to the order and chain it applies to.
type Action struct {
	Kind    Kind
	ChainID string
	Order   *order.Order
}

// Required flattens Derive into the list of non-NoOp actions for localChainID.
// The source step, if any, comes first.
func Required(o *order.Order, localChainID string) []Action {
	p := Derive(o, localChainID)
	var out []Action
	if p.Source != NoOp {
		out = append(out, Action{Kind: p.Source, ChainID: localChainID, Order: o})
	}
	if p.Destination != NoOp {
		out = append(out, Action{Kind: p.Destination, ChainID: localChainID, Order: o})
	}
	return out
}

// Satisfied reports whether status s already reflects the effect of k, which
// makes k moot for an order at s.
func Satisfied(k Kind, s order.Status) bool {
	switch k {
	case DeploySrcEscrow:
		return s != order.StatusUnmatched
	case DeployDestEscrow:
		return s != order.StatusUnmatched && s != order.StatusSourceFilled
	case WithdrawSrcEscrow:
		switch s {
		case order.StatusSourceSettled, order.StatusFulfilled:
			return true
		}
		return s.IsFailure()
	case WithdrawDestEscrow:
		switch s {
		case order.StatusDestinationSettled, order.StatusFulfilled:
			return true
		}
		return s.IsFailure()
	default:
		return false
	}
}
