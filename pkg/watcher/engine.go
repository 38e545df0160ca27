// Package watcher turns escrow events into order status transitions.
//
// One Poller scans each configured chain; the Engine runs them together with
// the expiry sweep that closes unmatched orders past their deadline.
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/publisher"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

const expiryPageLimit = 100

// Engine orchestrates the chain pollers and the expiry sweep.
type Engine struct {
	pollers        []*Poller
	registry       Registry
	publisher      publisher.Publisher
	expiryInterval time.Duration
	logger         *zap.Logger
	now            func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a watcher engine.
func NewEngine(pollers []*Poller, reg Registry, pub publisher.Publisher, expiryInterval time.Duration, logger *zap.Logger) *Engine {
	if pub == nil {
		pub = publisher.NewNop()
	}
	return &Engine{
		pollers:        pollers,
		registry:       reg,
		publisher:      pub,
		expiryInterval: expiryInterval,
		logger:         logger,
		now:            time.Now,
	}
}

// Start launches every poller and the expiry sweep.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting watcher engine", zap.Int("chains", len(e.pollers)))

	ctx, e.cancel = context.WithCancel(ctx)
	for _, p := range e.pollers {
		e.wg.Add(1)
		go func(p *Poller) {
			defer e.wg.Done()
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("Poller stopped", zap.String("chain", p.cfg.ID), zap.Error(err))
			}
		}(p)
	}

	e.wg.Add(1)
	go e.expire(ctx)

	e.logger.Info("Watcher engine started")
	return nil
}

// Stop cancels the pollers and waits for them to return.
func (e *Engine) Stop() {
	e.logger.Info("Stopping watcher engine")
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("Watcher engine stopped")
}

// IsReady reports whether every chain is scanned up to its head.
func (e *Engine) IsReady() bool {
	if len(e.pollers) == 0 {
		return false
	}
	for _, p := range e.pollers {
		if !p.Synced() {
			return false
		}
	}
	return true
}

func (e *Engine) expire(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.ExpireOrders(ctx); err != nil {
				metrics.ErrorsTotal.WithLabelValues("watcher", "expiry").Inc()
				e.logger.Error("Expiry sweep failed", zap.Error(err))
			} else if n > 0 {
				e.logger.Info("Expired unmatched orders", zap.Int("count", n))
			}
		}
	}
}

// ExpireOrders moves unmatched orders whose deadline has passed to expired
// and returns how many it moved. Orders that already have a source escrow
// are left to the rescue path.
func (e *Engine) ExpireOrders(ctx context.Context) (int, error) {
	now := e.now()
	var expired []*order.Order

	for page := 1; ; page++ {
		res, err := e.registry.GetActive(ctx, registry.ActiveQuery{
			Page: page, Limit: expiryPageLimit, Status: order.StatusUnmatched,
		})
		if err != nil {
			return 0, err
		}
		for _, o := range res.Items {
			if o.Expired(now) {
				expired = append(expired, o)
			}
		}
		if page >= res.Meta.TotalPages {
			break
		}
	}

	n := 0
	for _, o := range expired {
		eventID := o.OrderHash.Hex() + ":expired"
		_, err := e.registry.ApplyTransition(ctx, &registry.Transition{
			OrderHash: o.OrderHash,
			To:        order.StatusExpired,
			EventID:   eventID,
		})
		switch {
		case errors.Is(err, registry.ErrTransitionConflict), errors.Is(err, registry.ErrEventAlreadyApplied):
			metrics.TransitionsSkipped.WithLabelValues(ReasonConflict).Inc()
			continue
		case err != nil:
			return n, err
		}
		n++
		if err := e.publisher.Publish(ctx, publisher.NewTransitionEvent(o.OrderHash, order.StatusUnmatched, order.StatusExpired, eventID)); err != nil {
			e.logger.Warn("Failed to publish transition",
				zap.String("order_hash", o.OrderHash.Hex()),
				zap.Error(err))
		}
	}
	return n, nil
}
