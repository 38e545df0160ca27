// Package resolver executes the on-chain actions a resolver owes its
// orders. The engine polls the registry for active orders, keeps the ones
// this resolver serves, derives the next action per local chain and hands
// it to the executor. A sweeper recovers funds from stalled escrows.
//
// The resolver never moves order status itself; it only sends transactions
// and reports their hashes. The watcher advances status once the events
// confirm.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// Engine drives the resolver loops.
type Engine struct {
	registry Registry
	mapper   *Mapper
	executor *Executor
	sweeper  *Sweeper
	cfg      config.ExecutorConfig
	logger   *zap.Logger

	ready  atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a resolver engine.
func NewEngine(reg Registry, mapper *Mapper, executor *Executor, sweeper *Sweeper, cfg config.ExecutorConfig, logger *zap.Logger) *Engine {
	return &Engine{
		registry: reg,
		mapper:   mapper,
		executor: executor,
		sweeper:  sweeper,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start starts the poll and rescue loops
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting resolver engine",
		zap.Int("workers", e.cfg.Workers),
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Duration("rescue_interval", e.cfg.RescueInterval))

	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.loop(ctx, e.cfg.PollInterval, "poll", func(ctx context.Context) error {
		_, err := e.Poll(ctx)
		return err
	})
	go e.loop(ctx, e.cfg.RescueInterval, "rescue", func(ctx context.Context) error {
		n, err := e.sweeper.Sweep(ctx)
		if n > 0 {
			e.logger.Info("Rescue sweep finished", zap.Int("rescued", n), zap.Int("tracked", e.sweeper.Tracked()))
		}
		return err
	})

	e.logger.Info("Resolver engine started")
	return nil
}

// Stop stops the loops and waits for running actions
func (e *Engine) Stop() {
	e.logger.Info("Stopping resolver engine")
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.executor.Wait()
	e.logger.Info("Resolver engine stopped")
}

// IsReady reports whether the registry has been read at least once and the
// last poll succeeded.
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

func (e *Engine) loop(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			metrics.ErrorsTotal.WithLabelValues("resolver", name).Inc()
			e.logger.Error("Resolver loop iteration failed", zap.String("loop", name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll pages through active orders and dispatches the actions they need.
// It returns the number of actions dispatched.
func (e *Engine) Poll(ctx context.Context) (int, error) {
	var dispatched int
	for page := 1; ; page++ {
		p, err := e.registry.GetActive(ctx, registry.ActiveQuery{Page: page, Limit: e.cfg.PageSize})
		if err != nil {
			e.ready.Store(false)
			return dispatched, fmt.Errorf("failed to list active orders: %w", err)
		}

		for _, o := range p.Items {
			if !e.mapper.Supported(o) {
				continue
			}
			e.sweeper.Track(o)
			for _, a := range e.mapper.Actions(o) {
				if e.executor.Dispatch(ctx, a) {
					dispatched++
				}
			}
		}

		if page >= p.Meta.TotalPages {
			break
		}
	}

	e.ready.Store(true)
	return dispatched, nil
}
