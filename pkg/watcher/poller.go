package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/db"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/publisher"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

const (
	defaultDeferralTimeout = time.Hour
	defaultMaxRetries      = 5
)

// Registry is the part of the order registry the watcher uses.
type Registry interface {
	Get(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	GetActive(ctx context.Context, q registry.ActiveQuery) (*registry.Page, error)
	ApplyTransition(ctx context.Context, t *registry.Transition) (*order.Order, error)
}

// Poller scans one chain for escrow events and applies the transitions
// they imply. Only one Poller may run per chain.
type Poller struct {
	chain     chain.Reader
	cfg       config.ChainConfig
	registry  Registry
	cursors   db.CursorStore
	publisher publisher.Publisher
	escrows   map[string]string
	logger    *zap.Logger

	retry  func() backoff.BackOff
	synced atomic.Bool

	// Events waiting for their order to catch up. They do not hold back
	// scanning; the persisted cursor stays below the oldest of them so a
	// restart finds them again.
	deferred        map[string]*deferredEvent
	deferralTimeout time.Duration
	now             func() time.Time

	// In-memory scan position, ahead of the cursor while events are deferred.
	scanning    bool
	scanned     uint64
	scannedHash common.Hash
	saved       bool
	savedBlock  uint64
}

type deferredEvent struct {
	event chain.Event
	since time.Time
}

// NewPoller creates a poller for c. escrows maps every configured chain ID to
// its escrow address and is used to fill order immutables.
func NewPoller(
	c chain.Reader,
	cfg config.ChainConfig,
	reg Registry,
	cursors db.CursorStore,
	pub publisher.Publisher,
	escrows map[string]string,
	logger *zap.Logger,
) *Poller {
	if pub == nil {
		pub = publisher.NewNop()
	}
	timeout := cfg.DeferralTimeout
	if timeout <= 0 {
		timeout = defaultDeferralTimeout
	}
	return &Poller{
		chain:        c,
		cfg:          cfg,
		registry:     reg,
		cursors:      cursors,
		publisher:    pub,
		escrows:      escrows,
		logger:       logger.With(zap.String("chain", cfg.ID)),
		retry: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), defaultMaxRetries)
		},
		deferred:        make(map[string]*deferredEvent),
		deferralTimeout: timeout,
		now:             time.Now,
	}
}

// Synced reports whether the last poll reached the chain head.
func (p *Poller) Synced() bool {
	return p.synced.Load()
}

// Deferred returns how many events are waiting for their order to catch up.
func (p *Poller) Deferred() int {
	return len(p.deferred)
}

// Run polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Starting escrow event poller",
		zap.Uint64("confirmation_depth", p.cfg.ConfirmationDepth),
		zap.Duration("interval", p.cfg.PollingInterval))

	ticker := time.NewTicker(p.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.synced.Store(false)
			metrics.ErrorsTotal.WithLabelValues("watcher", "poll").Inc()
			p.logger.Error("Poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll scans every confirmed block past the cursor, then the unconfirmed
// window for withdrawals.
func (p *Poller) Poll(ctx context.Context) error {
	latest, err := p.chain.LatestBlock(ctx)
	if err != nil {
		return err
	}
	next, err := p.resume(ctx)
	if err != nil {
		return err
	}
	if err := p.retryDeferred(ctx); err != nil {
		return err
	}

	if latest >= p.cfg.ConfirmationDepth {
		safe := latest - p.cfg.ConfirmationDepth
		for from := next; from <= safe; {
			to := min(from+p.cfg.MaxBlockSpan-1, safe)

			if err := p.scan(ctx, from, to, true); err != nil {
				return err
			}
			hash, err := p.chain.BlockHash(ctx, to)
			if err != nil {
				return err
			}
			p.scanning, p.scanned, p.scannedHash = true, to, hash
			if err := p.checkpoint(ctx); err != nil {
				return err
			}
			from = to + 1
		}
		next = max(next, safe+1)
	}

	if next <= latest {
		if err := p.scan(ctx, next, latest, false); err != nil {
			return err
		}
	}

	p.synced.Store(true)
	return nil
}

// resume returns the first block to scan. A cursor whose block hash no
// longer matches the chain was reorged away, so scanning restarts a full
// confirmation depth earlier.
func (p *Poller) resume(ctx context.Context) (uint64, error) {
	if p.scanning {
		hash, err := p.chain.BlockHash(ctx, p.scanned)
		if err != nil {
			return 0, err
		}
		if hash == p.scannedHash {
			return p.scanned + 1, nil
		}
		// Drop everything past the persisted cursor; rescanning from it
		// finds the deferred events again.
		p.logger.Warn("Scanned block was reorganized, falling back to cursor",
			zap.Uint64("block", p.scanned),
			zap.Int("deferred", len(p.deferred)))
		p.scanning, p.saved = false, false
		p.deferred = make(map[string]*deferredEvent)
	}

	cur, err := p.cursors.GetCursor(ctx, p.cfg.ID)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return p.cfg.StartBlock, nil
	}

	if cur.LastBlockHash != "" {
		hash, err := p.chain.BlockHash(ctx, cur.LastBlock)
		if err != nil {
			return 0, err
		}
		if hash.Hex() != cur.LastBlockHash {
			rewind := p.cfg.StartBlock
			if cur.LastBlock > p.cfg.ConfirmationDepth+p.cfg.StartBlock {
				rewind = cur.LastBlock - p.cfg.ConfirmationDepth
			}
			p.logger.Warn("Cursor block was reorganized, rescanning",
				zap.Uint64("cursor_block", cur.LastBlock),
				zap.String("cursor_hash", cur.LastBlockHash),
				zap.String("chain_hash", hash.Hex()),
				zap.Uint64("rescan_from", rewind))
			metrics.ErrorsTotal.WithLabelValues("watcher", "reorg").Inc()
			return rewind, nil
		}
	}
	return cur.LastBlock + 1, nil
}

// checkpoint persists the scan position, held below the oldest deferred
// event.
func (p *Poller) checkpoint(ctx context.Context) error {
	if !p.scanning {
		return nil
	}
	block := p.scanned
	for _, d := range p.deferred {
		if d.event.BlockNumber > block {
			continue
		}
		if d.event.BlockNumber == 0 {
			return nil
		}
		block = d.event.BlockNumber - 1
	}
	if p.saved && block <= p.savedBlock {
		return nil
	}
	if err := p.save(ctx, block); err != nil {
		return err
	}
	p.saved, p.savedBlock = true, block
	return nil
}

// retryDeferred replays held events in chain order. An event still waiting
// after the deferral timeout is dropped.
func (p *Poller) retryDeferred(ctx context.Context) error {
	if len(p.deferred) == 0 {
		return nil
	}
	held := make([]*deferredEvent, 0, len(p.deferred))
	for _, d := range p.deferred {
		held = append(held, d)
	}
	sort.Slice(held, func(i, j int) bool {
		a, b := held[i].event, held[j].event
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})

	for _, d := range held {
		key := d.event.Key()
		waiting, err := p.process(ctx, d.event, true)
		if err != nil {
			return fmt.Errorf("deferred event %s: %w", key, err)
		}
		switch {
		case !waiting:
			delete(p.deferred, key)
		case p.now().Sub(d.since) > p.deferralTimeout:
			delete(p.deferred, key)
			p.logger.Error("Giving up on deferred event",
				zap.String("order_hash", d.event.OrderHash.Hex()),
				zap.String("event", key),
				zap.Duration("waited", p.now().Sub(d.since)))
			p.skipped(d.event, ReasonDeferredTooLong)
		}
	}
	return p.checkpoint(ctx)
}

func (p *Poller) hold(ev chain.Event) {
	key := ev.Key()
	if _, ok := p.deferred[key]; ok {
		return
	}
	p.deferred[key] = &deferredEvent{event: ev, since: p.now()}
}

func (p *Poller) save(ctx context.Context, block uint64) error {
	hash, err := p.chain.BlockHash(ctx, block)
	if err != nil {
		return err
	}
	if err := p.cursors.SaveCursor(ctx, db.Cursor{
		ChainID:       p.cfg.ID,
		LastBlock:     block,
		LastBlockHash: hash.Hex(),
	}); err != nil {
		return err
	}
	metrics.LastProcessedBlock.WithLabelValues(p.cfg.ID).Set(float64(block))
	return nil
}

// scan processes events in [from, to]. Confirmed events that must wait for
// their order are held for retry on later polls.
func (p *Poller) scan(ctx context.Context, from, to uint64, confirmed bool) error {
	op := func() error {
		events, err := p.chain.Events(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if !confirmed && ev.Kind != escrow.EventWithdraw {
				continue
			}
			waiting, err := p.process(ctx, ev, confirmed)
			if err != nil {
				return fmt.Errorf("event %s: %w", ev.Key(), err)
			}
			if waiting && confirmed {
				p.hold(ev)
			}
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Warn("Retrying block range",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(p.retry(), ctx), notify); err != nil {
		return fmt.Errorf("failed to process blocks [%d, %d]: %w", from, to, err)
	}
	return nil
}

// process applies one event. It returns true when the event must wait for
// the order to catch up. Errors are infrastructure failures only.
func (p *Poller) process(ctx context.Context, ev chain.Event, confirmed bool) (bool, error) {
	o, err := p.registry.Get(ctx, ev.OrderHash)
	if errors.Is(err, registry.ErrOrderNotFound) {
		p.skipped(ev, ReasonUnknownOrder)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if confirmed {
		metrics.EventsDetected.WithLabelValues(p.cfg.ID, string(ev.Kind)).Inc()
	}

	out := Translate(o, ev, confirmed, p.escrows)
	switch out.Decision {
	case Skip:
		p.skipped(ev, out.Reason)
		return false, nil
	case Defer:
		p.logger.Debug("Deferring event",
			zap.String("order_hash", ev.OrderHash.Hex()),
			zap.String("event", ev.Key()),
			zap.String("status", string(o.Status)))
		return true, nil
	}

	updated, err := p.registry.ApplyTransition(ctx, out.Transition)
	switch {
	case errors.Is(err, registry.ErrEventAlreadyApplied):
		p.skipped(ev, ReasonAlreadyApplied)
		return false, nil
	case errors.Is(err, registry.ErrTransitionConflict):
		p.skipped(ev, ReasonConflict)
		return false, nil
	case errors.Is(err, registry.ErrOrderNotFound):
		p.skipped(ev, ReasonUnknownOrder)
		return false, nil
	case apperrors.Permanent(err):
		p.logger.Warn("Registry rejected transition",
			zap.String("order_hash", ev.OrderHash.Hex()),
			zap.String("event", out.Transition.EventID),
			zap.Error(err))
		p.skipped(ev, ReasonRejected)
		return false, nil
	case err != nil:
		return false, err
	}

	p.logger.Info("Applied transition",
		zap.String("order_hash", ev.OrderHash.Hex()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("event", out.Transition.EventID),
		zap.Uint64("block", ev.BlockNumber))

	msg := publisher.NewTransitionEvent(ev.OrderHash, o.Status, updated.Status, out.Transition.EventID)
	msg.ChainID, msg.BlockNumber, msg.TxHash = ev.ChainID, ev.BlockNumber, ev.TxHash
	if err := p.publisher.Publish(ctx, msg); err != nil {
		p.logger.Warn("Failed to publish transition",
			zap.String("order_hash", ev.OrderHash.Hex()),
			zap.Error(err))
	}
	return false, nil
}

func (p *Poller) skipped(ev chain.Event, reason string) {
	metrics.TransitionsSkipped.WithLabelValues(reason).Inc()
	p.logger.Debug("Skipped event",
		zap.String("order_hash", ev.OrderHash.Hex()),
		zap.String("kind", string(ev.Kind)),
		zap.String("reason", reason))
}
