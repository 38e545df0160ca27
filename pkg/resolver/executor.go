package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	"github.com/chainsafe/htlc-resolver/pkg/action"
	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// Result is the outcome of one action.
type Result string

const (
	// ResultDone means the transaction was included.
	ResultDone Result = "done"
	// ResultAlreadyDone means the effect already existed on chain or in the registry.
	ResultAlreadyDone Result = "already_done"
	// ResultRetryLater means the chain rejected the action for now; the next
	// poll derives it again.
	ResultRetryLater Result = "retry_later"
	// ResultSkipped means the action no longer applies or lacks inputs.
	ResultSkipped Result = "skipped"
	// ResultFailed means the action can never succeed as derived.
	ResultFailed Result = "failed"
)

var (
	errNoSecret          = errors.New("no secret revealed yet")
	errMissingImmutables = errors.New("destination immutables are missing")
)

// Registry is the part of the order registry the resolver uses.
type Registry interface {
	Get(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	GetActive(ctx context.Context, q registry.ActiveQuery) (*registry.Page, error)
	RecordExecution(ctx context.Context, e *registry.Execution) (*order.Order, error)
}

// Executor sends the transactions actions call for. At most cfg.Workers
// actions run at once and at most one per order.
type Executor struct {
	chains   map[string]chain.Chain
	limiters map[string]*rate.Limiter
	registry Registry
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	now      func() time.Time

	sem      *semaphore.Weighted
	mu       sync.Mutex
	inflight map[common.Hash]struct{}
	wg       sync.WaitGroup
}

// NewExecutor creates an executor over chains. chainCfgs supplies the
// per-chain transaction rate; chains without one are not rate limited.
func NewExecutor(chains []chain.Chain, chainCfgs []config.ChainConfig, reg Registry, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	x := &Executor{
		chains:   make(map[string]chain.Chain, len(chains)),
		limiters: make(map[string]*rate.Limiter, len(chains)),
		registry: reg,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sem:      semaphore.NewWeighted(int64(max(cfg.Workers, 1))),
		inflight: make(map[common.Hash]struct{}),
	}
	for _, c := range chains {
		x.chains[c.ID()] = c
		x.limiters[c.ID()] = rate.NewLimiter(rate.Inf, 1)
		if cc, ok := config.Chain(chainCfgs, c.ID()); ok && cc.TxRate > 0 {
			x.limiters[c.ID()] = rate.NewLimiter(rate.Limit(cc.TxRate), max(cc.TxBurst, 1))
		}
	}
	return x
}

// Dispatch runs a in the background. It returns false when an action for the
// same order is still running or ctx ended while waiting for a worker.
func (x *Executor) Dispatch(ctx context.Context, a action.Action) bool {
	hash := a.Order.OrderHash
	if !x.claim(hash) {
		return false
	}
	if err := x.sem.Acquire(ctx, 1); err != nil {
		x.release(hash)
		return false
	}

	metrics.InFlightActions.Inc()
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		defer x.sem.Release(1)
		defer metrics.InFlightActions.Dec()
		defer x.release(hash)
		_, _ = x.Execute(ctx, a)
	}()
	return true
}

// Wait blocks until every dispatched action has finished.
func (x *Executor) Wait() {
	x.wg.Wait()
}

// InFlight reports whether an action for orderHash is running.
func (x *Executor) InFlight(orderHash common.Hash) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.inflight[orderHash]
	return ok
}

func (x *Executor) claim(orderHash common.Hash) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, busy := x.inflight[orderHash]; busy {
		return false
	}
	x.inflight[orderHash] = struct{}{}
	return true
}

func (x *Executor) release(orderHash common.Hash) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.inflight, orderHash)
}

// Execute runs a synchronously against a fresh snapshot of its order.
func (x *Executor) Execute(ctx context.Context, a action.Action) (Result, error) {
	start := time.Now()
	res, err := x.execute(ctx, a)
	metrics.ActionsTotal.WithLabelValues(a.ChainID, a.Kind.String(), string(res)).Inc()
	metrics.ActionDuration.WithLabelValues(a.Kind.String()).Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("order_hash", a.Order.OrderHash.Hex()),
		zap.String("chain", a.ChainID),
		zap.String("action", a.Kind.String()),
		zap.String("result", string(res)),
		zap.Duration("duration", time.Since(start)),
	}
	switch res {
	case ResultFailed:
		x.logger.Error("Action failed", append(fields, zap.Error(err))...)
	case ResultRetryLater:
		x.logger.Warn("Action postponed", append(fields, zap.Error(err))...)
	default:
		x.logger.Info("Action finished", fields...)
	}
	return res, err
}

func (x *Executor) execute(ctx context.Context, a action.Action) (Result, error) {
	c, ok := x.chains[a.ChainID]
	if !ok {
		return ResultFailed, fmt.Errorf("chain %s is not configured", a.ChainID)
	}
	if x.cfg.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.cfg.ActionTimeout)
		defer cancel()
	}

	o, err := x.registry.Get(ctx, a.Order.OrderHash)
	if err != nil {
		return ResultRetryLater, fmt.Errorf("failed to refresh order: %w", err)
	}
	if action.Satisfied(a.Kind, o.Status) {
		return ResultAlreadyDone, nil
	}
	if !required(o, a) {
		return ResultSkipped, nil
	}
	// Past the deadline the expiry sweep will close the order; a source
	// escrow opened now would only lock the maker's funds.
	if a.Kind == action.DeploySrcEscrow && o.Expired(x.now()) {
		return ResultSkipped, nil
	}

	var receipt *chain.Receipt
	op := func() error {
		if err := x.limiters[a.ChainID].Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		r, err := x.send(ctx, c, a.Kind, o)
		if err != nil {
			if escrow.CodeOf(err) != escrow.CodeUnknown || errors.Is(err, errNoSecret) || errors.Is(err, errMissingImmutables) {
				return backoff.Permanent(err)
			}
			return err
		}
		receipt = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		x.logger.Warn("Retrying action",
			zap.String("order_hash", o.OrderHash.Hex()),
			zap.String("action", a.Kind.String()),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(x.backoff(), ctx), notify); err != nil {
		return classify(err)
	}

	x.record(ctx, a, c, receipt)
	return ResultDone, nil
}

// required reports whether a is still derived from the current snapshot.
func required(o *order.Order, a action.Action) bool {
	for _, r := range action.Required(o, a.ChainID) {
		if r.Kind == a.Kind {
			return true
		}
	}
	return false
}

func (x *Executor) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if x.cfg.InitialInterval > 0 {
		b.InitialInterval = x.cfg.InitialInterval
	}
	if x.cfg.MaxInterval > 0 {
		b.MaxInterval = x.cfg.MaxInterval
	}
	b.MaxElapsedTime = x.cfg.MaxElapsedTime
	b.Reset()
	return b
}

// classify maps a final send error to a result. Conflicts mean someone
// already produced the effect, so they count as success.
func classify(err error) (Result, error) {
	switch escrow.CodeOf(err).Class() {
	case escrow.ClassConflict:
		return ResultAlreadyDone, nil
	case escrow.ClassTiming, escrow.ClassFunds:
		return ResultRetryLater, err
	case escrow.ClassValidation, escrow.ClassAuthorization:
		return ResultFailed, err
	}
	switch {
	case errors.Is(err, errNoSecret):
		return ResultSkipped, nil
	case errors.Is(err, errMissingImmutables):
		return ResultFailed, err
	default:
		return ResultRetryLater, err
	}
}

func (x *Executor) send(ctx context.Context, c chain.Chain, kind action.Kind, o *order.Order) (*chain.Receipt, error) {
	switch kind {
	case action.DeploySrcEscrow:
		sig, err := hexutil.Decode(o.Signature)
		if err != nil {
			return nil, &escrow.Error{Code: escrow.CodeInvalidSignature, Msg: err.Error()}
		}
		return c.CreateOutbound(ctx, chain.OutboundRequest{
			Order:     o,
			Signature: sig,
			Params: escrow.CreateParams{
				Token:      common.HexToAddress(o.Intent.MakerAsset),
				OrderHash:  o.OrderHash,
				Initiator:  common.HexToAddress(o.Intent.Maker),
				Redeemer:   c.Account(),
				Timelock:   o.Commitment.Timelock,
				Amount:     o.Intent.MakingAmount.BigInt(),
				SecretHash: o.Commitment.SecretHash,
			},
		})

	case action.DeployDestEscrow:
		im := o.DstImmutables
		if im == nil {
			return nil, errMissingImmutables
		}
		return c.CreateInbound(ctx, escrow.CreateParams{
			Token:      common.HexToAddress(im.Token),
			OrderHash:  o.OrderHash,
			Initiator:  c.Account(),
			Redeemer:   common.HexToAddress(im.Maker),
			Timelock:   im.Timelock,
			Amount:     im.Amount.BigInt(),
			SecretHash: im.Hashlock,
		})

	case action.WithdrawSrcEscrow:
		secret, ok := o.UnlockSecret()
		if !ok {
			return nil, errNoSecret
		}
		return c.Withdraw(ctx, common.HexToAddress(o.Intent.MakerAsset), o.OrderHash, secret)

	case action.WithdrawDestEscrow:
		secret, ok := o.UnlockSecret()
		if !ok {
			return nil, errNoSecret
		}
		return c.WithdrawPublic(ctx, common.HexToAddress(o.Intent.TakerAsset), o.OrderHash, secret)

	default:
		return nil, fmt.Errorf("unsupported action %s", kind)
	}
}

// record reports a sent transaction. The transaction stands even if the
// report fails; the watcher still picks up its event.
func (x *Executor) record(ctx context.Context, a action.Action, c chain.Chain, receipt *chain.Receipt) {
	e := &registry.Execution{
		OrderHash: a.Order.OrderHash,
		ChainID:   a.ChainID,
		Stage:     registry.StageWithdraw,
		TxHash:    receipt.TxHash.Hex(),
	}
	if a.Kind == action.DeploySrcEscrow || a.Kind == action.DeployDestEscrow {
		e.Stage = registry.StageDeploy
		e.EscrowAddress = c.EscrowAddress()
	}
	if _, err := x.registry.RecordExecution(ctx, e); err != nil {
		metrics.ErrorsTotal.WithLabelValues("resolver", "record_execution").Inc()
		x.logger.Warn("Failed to record execution",
			zap.String("order_hash", a.Order.OrderHash.Hex()),
			zap.String("tx_hash", e.TxHash),
			zap.Error(err))
	}
}
