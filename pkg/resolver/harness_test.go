package resolver

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/chain/sim"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/db"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/order/ordertest"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
	"github.com/chainsafe/htlc-resolver/pkg/watcher"
)

const rescueTimelock = 5

var native = common.Address{}

func testExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		Workers:         4,
		PollInterval:    10 * time.Millisecond,
		PageSize:        10,
		ActionTimeout:   5 * time.Second,
		MaxElapsedTime:  200 * time.Millisecond,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		RescueInterval:  10 * time.Millisecond,
	}
}

// harness wires two simulated chains, an in-memory registry, the watcher
// pollers and a resolver serving both chains.
type harness struct {
	t     *testing.T
	ctx   context.Context
	src   *sim.Chain
	dst   *sim.Chain
	reg   registry.Service
	order *order.Order
	maker common.Address

	chains   []chain.Chain
	exec     *Executor
	sweeper  *Sweeper
	engine   *Engine
	watchers []*watcher.Poller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := escrow.Config{WithdrawTimelock: 2, RescueTimelock: rescueTimelock, SecurityDeposit: big.NewInt(7)}
	src := sim.New(ordertest.SrcChain, cfg, auth.DigestVerifier{})
	dst := sim.New(ordertest.DstChain, cfg, auth.DigestVerifier{})

	maker := crypto.PubkeyToAddress(ordertest.Key().PublicKey)
	src.Mint(ordertest.SrcToken, maker, big.NewInt(1000))
	src.Mint(native, ordertest.Resolver, big.NewInt(1000))
	dst.Mint(ordertest.DstToken, ordertest.Resolver, big.NewInt(1000))
	dst.Mint(native, ordertest.Resolver, big.NewInt(1000))

	reg := registry.NewService(registry.NewMemoryStore(), config.RegistryConfig{DefaultPageLimit: 100, MaxPageLimit: 500})
	o := ordertest.New(ordertest.Key(), nil)
	_, err := reg.Submit(ctx, o)
	require.NoError(t, err)

	h := &harness{
		t:      t,
		ctx:    ctx,
		src:    src,
		dst:    dst,
		reg:    reg,
		order:  o,
		maker:  maker,
		chains: []chain.Chain{src.As(ordertest.Resolver), dst.As(ordertest.Resolver)},
	}
	h.exec = NewExecutor(h.chains, nil, reg, testExecutorConfig(), zap.NewNop())
	h.sweeper = NewSweeper(h.exec, rescueTimelock, zap.NewNop())
	mapper := NewMapper([]config.ChainConfig{{ID: ordertest.SrcChain}, {ID: ordertest.DstChain}}, ordertest.Resolver)
	h.engine = NewEngine(reg, mapper, h.exec, h.sweeper, testExecutorConfig(), zap.NewNop())

	escrows := map[string]string{
		ordertest.SrcChain: h.chains[0].EscrowAddress(),
		ordertest.DstChain: h.chains[1].EscrowAddress(),
	}
	cursors := db.NewMemoryCursorStore()
	for _, c := range []*sim.Chain{src, dst} {
		reader := c.As(common.Address{})
		h.watchers = append(h.watchers, watcher.NewPoller(reader, config.ChainConfig{
			ID:              reader.ID(),
			MaxBlockSpan:    100,
			PollingInterval: time.Second,
		}, reg, cursors, nil, escrows, zap.NewNop()))
	}
	return h
}

// round runs one resolver poll to completion, then lets both watchers
// catch up.
func (h *harness) round() {
	h.t.Helper()
	_, err := h.engine.Poll(h.ctx)
	require.NoError(h.t, err)
	h.exec.Wait()
	h.watch()
}

func (h *harness) watch() {
	h.t.Helper()
	for _, w := range h.watchers {
		require.NoError(h.t, w.Poll(h.ctx))
	}
}

func (h *harness) current() *order.Order {
	h.t.Helper()
	o, err := h.reg.Get(h.ctx, h.order.OrderHash)
	require.NoError(h.t, err)
	return o
}

func (h *harness) status() order.Status {
	return h.current().Status
}

func (h *harness) record(c *sim.Chain, token common.Address) *escrow.Record {
	h.t.Helper()
	rec, ok := c.Engine().Record(escrow.Key{Token: token, OrderHash: h.order.OrderHash})
	require.True(h.t, ok, "escrow record missing")
	return rec
}

func (h *harness) balance(c *sim.Chain, token, holder common.Address) int64 {
	return c.BalanceOf(token, holder).Int64()
}

// matched drives the order to destination_filled.
func (h *harness) matched() {
	h.t.Helper()
	h.round()
	require.Equal(h.t, order.StatusSourceFilled, h.status())
	h.round()
	require.Equal(h.t, order.StatusDestinationFilled, h.status())
}
