package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// Sweeper recovers funds from escrows whose swap stalled. It rescues
// destination escrows this resolver initiated once their timelock passed,
// and public-rescues source escrows it is redeemer of once the rescue grace
// period passed too, collecting their deposit.
//
// Orders stay tracked after they leave the active set until none of their
// escrows needs attention.
type Sweeper struct {
	exec           *Executor
	rescueTimelock uint64
	logger         *zap.Logger

	mu      sync.Mutex
	tracked map[common.Hash]struct{}
}

// NewSweeper creates a sweeper sending through exec's chains.
func NewSweeper(exec *Executor, rescueTimelock uint64, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		exec:           exec,
		rescueTimelock: rescueTimelock,
		logger:         logger,
		tracked:        make(map[common.Hash]struct{}),
	}
}

// Track adds o once it may have escrows on chain.
func (s *Sweeper) Track(o *order.Order) {
	if o.Status == order.StatusUnmatched || o.Status == order.StatusExpired {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[o.OrderHash] = struct{}{}
}

// Tracked returns the number of tracked orders.
func (s *Sweeper) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Sweep checks every tracked order and returns how many rescues it sent.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	hashes := make([]common.Hash, 0, len(s.tracked))
	for h := range s.tracked {
		hashes = append(hashes, h)
	}
	s.mu.Unlock()

	var sent int
	var errs []error
	for _, h := range hashes {
		if !s.exec.claim(h) {
			continue
		}
		n, open, err := s.sweep(ctx, h)
		s.exec.release(h)

		sent += n
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", h.Hex(), err))
		}
		if !open && err == nil {
			s.mu.Lock()
			delete(s.tracked, h)
			s.mu.Unlock()
		}
	}
	return sent, errors.Join(errs...)
}

// sweep handles both legs of one order. open is true while a leg still
// holds an escrow the resolver may need to rescue later.
func (s *Sweeper) sweep(ctx context.Context, orderHash common.Hash) (int, bool, error) {
	o, err := s.exec.registry.Get(ctx, orderHash)
	if err != nil {
		return 0, true, fmt.Errorf("failed to refresh order: %w", err)
	}

	var sent int
	var open bool
	for _, side := range []order.Side{order.SideSource, order.SideDestination} {
		done, stillOpen, err := s.leg(ctx, o, side)
		if err != nil {
			return sent, true, err
		}
		if done {
			sent++
		}
		open = open || stillOpen
	}
	return sent, open, nil
}

func (s *Sweeper) leg(ctx context.Context, o *order.Order, side order.Side) (sent, open bool, err error) {
	chainID, token := o.Intent.SrcChainID, o.Intent.MakerAsset
	if side == order.SideDestination {
		chainID, token = o.Intent.DstChainID, o.Intent.TakerAsset
	}
	c, ok := s.exec.chains[chainID]
	if !ok {
		return false, false, nil
	}

	rec, err := c.Escrow(ctx, common.HexToAddress(token), o.OrderHash)
	if errors.Is(err, escrow.ErrOrderNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, true, err
	}
	if rec.IsFulfilled {
		return false, false, nil
	}

	// A revealed secret means the swap completes through withdrawals.
	if _, revealed := o.UnlockSecret(); revealed {
		return false, false, nil
	}

	var opens uint64
	var kind string
	switch {
	case side == order.SideDestination && rec.Initiator == c.Account():
		opens, kind = escrow.OpensAt(rec.InitiatedAt, rec.Timelock), "private"
	case side == order.SideSource && rec.Redeemer == c.Account():
		opens, kind = escrow.OpensAt(rec.InitiatedAt, rec.Timelock, s.rescueTimelock), "public"
	default:
		return false, false, nil
	}

	latest, err := c.LatestBlock(ctx)
	if err != nil {
		return false, true, err
	}
	// The transaction lands in the next block at the earliest.
	if latest+1 < opens {
		return false, true, nil
	}

	if err := s.exec.limiters[chainID].Wait(ctx); err != nil {
		return false, true, err
	}
	var receipt *chain.Receipt
	if kind == "private" {
		receipt, err = c.Rescue(ctx, rec.Token, o.OrderHash)
	} else {
		receipt, err = c.RescuePublic(ctx, rec.Token, o.OrderHash)
	}
	switch {
	case escrow.IsIdempotentSuccess(err):
		metrics.RescuesTotal.WithLabelValues(chainID, kind, string(ResultAlreadyDone)).Inc()
		return false, false, nil
	case errors.Is(err, escrow.ErrTooEarly):
		return false, true, nil
	case err != nil:
		metrics.RescuesTotal.WithLabelValues(chainID, kind, string(ResultFailed)).Inc()
		return false, true, fmt.Errorf("failed to rescue %s escrow: %w", side, err)
	}

	metrics.RescuesTotal.WithLabelValues(chainID, kind, string(ResultDone)).Inc()
	s.logger.Info("Rescued escrow",
		zap.String("order_hash", o.OrderHash.Hex()),
		zap.String("chain", chainID),
		zap.String("side", side.String()),
		zap.String("kind", kind),
		zap.String("tx_hash", receipt.TxHash.Hex()))

	if _, err := s.exec.registry.RecordExecution(ctx, &registry.Execution{
		OrderHash: o.OrderHash,
		ChainID:   chainID,
		Stage:     registry.StageRescue,
		TxHash:    receipt.TxHash.Hex(),
	}); err != nil {
		s.logger.Warn("Failed to record rescue",
			zap.String("order_hash", o.OrderHash.Hex()),
			zap.Error(err))
	}
	return true, false, nil
}
