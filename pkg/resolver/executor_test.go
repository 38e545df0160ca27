package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/action"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/order/ordertest"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    Result
		wantErr bool
	}{
		{"duplicate order", escrow.ErrDuplicateOrder, ResultAlreadyDone, false},
		{"already fulfilled", fmt.Errorf("send: %w", escrow.ErrAlreadyFulfilled), ResultAlreadyDone, false},
		{"too early", escrow.ErrTooEarly, ResultRetryLater, true},
		{"insufficient funds", escrow.ErrInsufficientFunds, ResultRetryLater, true},
		{"secret mismatch", escrow.ErrSecretMismatch, ResultFailed, true},
		{"unauthorized", escrow.ErrUnauthorized, ResultFailed, true},
		{"no secret", errNoSecret, ResultSkipped, false},
		{"missing immutables", errMissingImmutables, ResultFailed, true},
		{"transport", errors.New("dial tcp: connection refused"), ResultRetryLater, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classify(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestExecute_SendErrors(t *testing.T) {
	transient := errors.New("connection reset by peer")
	flood := make([]error, 1000)
	for i := range flood {
		flood[i] = transient
	}

	tests := []struct {
		name   string
		faults []error
		want   Result
		height uint64
	}{
		{"transient then success", []error{transient, transient}, ResultDone, 1},
		{"persistent transport failure", flood, ResultRetryLater, 0},
		{"insufficient funds", []error{escrow.ErrInsufficientFunds}, ResultRetryLater, 0},
		{"unauthorized", []error{escrow.ErrUnauthorized}, ResultFailed, 0},
		{"already fulfilled", []error{escrow.ErrAlreadyFulfilled}, ResultAlreadyDone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.src.FailNext(tt.faults...)

			res, _ := h.exec.Execute(h.ctx, action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: h.order})
			assert.Equal(t, tt.want, res)
			assert.Equal(t, tt.height, h.src.Height())
		})
	}
}

func TestExecute_RecordsExecution(t *testing.T) {
	h := newHarness(t)
	var recorded []*registry.Execution
	reg := &MockRegistry{
		GetFunc: h.reg.Get,
		RecordExecutionFunc: func(ctx context.Context, e *registry.Execution) (*order.Order, error) {
			recorded = append(recorded, e)
			return nil, errors.New("registry unavailable")
		},
	}
	x := NewExecutor(h.chains, nil, reg, testExecutorConfig(), zap.NewNop())

	res, err := x.Execute(h.ctx, action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: h.order})
	require.NoError(t, err, "a failed report does not fail the action")
	assert.Equal(t, ResultDone, res)
	require.Len(t, recorded, 1)
	assert.Equal(t, registry.StageDeploy, recorded[0].Stage)
	assert.Equal(t, ordertest.SrcChain, recorded[0].ChainID)
	assert.Equal(t, h.chains[0].EscrowAddress(), recorded[0].EscrowAddress)
	assert.NotEmpty(t, recorded[0].TxHash)
}

func TestExecute_StaleActionIsSkipped(t *testing.T) {
	h := newHarness(t)

	// derived for the destination while the order is still unmatched
	res, err := h.exec.Execute(h.ctx, action.Action{Kind: action.DeployDestEscrow, ChainID: ordertest.DstChain, Order: h.order})
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, res)
	assert.Equal(t, uint64(0), h.dst.Height())

	res, err = h.exec.Execute(h.ctx, action.Action{Kind: action.DeploySrcEscrow, ChainID: "1", Order: h.order})
	require.Error(t, err)
	assert.Equal(t, ResultFailed, res)
}

func TestExecute_ExpiredOrderIsNotDeployed(t *testing.T) {
	h := newHarness(t)
	h.exec.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := h.exec.Execute(h.ctx, action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: h.order})
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, res)
	assert.Equal(t, uint64(0), h.src.Height(), "no escrow may be opened past the deadline")
}

func TestExecute_MissingImmutables(t *testing.T) {
	h := newHarness(t)
	reg := &MockRegistry{
		GetFunc: func(context.Context, common.Hash) (*order.Order, error) {
			o := h.order.Clone()
			o.Status = order.StatusSourceFilled
			return o, nil
		},
	}
	x := NewExecutor(h.chains, nil, reg, testExecutorConfig(), zap.NewNop())

	res, err := x.Execute(h.ctx, action.Action{Kind: action.DeployDestEscrow, ChainID: ordertest.DstChain, Order: h.order})
	assert.Equal(t, ResultFailed, res)
	assert.ErrorIs(t, err, errMissingImmutables)
}

func TestDispatch_SerializesPerOrder(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	reg := &MockRegistry{
		GetFunc: func(ctx context.Context, hash common.Hash) (*order.Order, error) {
			close(entered)
			<-release
			return h.reg.Get(ctx, hash)
		},
	}
	x := NewExecutor(h.chains, nil, reg, testExecutorConfig(), zap.NewNop())
	a := action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: h.order}

	require.True(t, x.Dispatch(h.ctx, a))
	<-entered
	assert.True(t, x.InFlight(h.order.OrderHash))
	assert.False(t, x.Dispatch(h.ctx, a), "second action for a busy order")

	close(release)
	x.Wait()
	assert.False(t, x.InFlight(h.order.OrderHash))
	assert.Equal(t, uint64(1), h.src.Height())
}

func TestDispatch_BoundsWorkers(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	reg := &MockRegistry{
		GetFunc: func(ctx context.Context, hash common.Hash) (*order.Order, error) {
			<-release
			return nil, registry.ErrOrderNotFound
		},
	}
	cfg := testExecutorConfig()
	cfg.Workers = 1
	x := NewExecutor(h.chains, nil, reg, cfg, zap.NewNop())

	first := action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: h.order}
	other := ordertest.New(ordertest.Key(), func(o *order.Order) { o.Intent.Salt = "43" })
	second := action.Action{Kind: action.DeploySrcEscrow, ChainID: ordertest.SrcChain, Order: other}

	require.True(t, x.Dispatch(h.ctx, first))

	ctx, cancel := context.WithTimeout(h.ctx, 20*time.Millisecond)
	defer cancel()
	assert.False(t, x.Dispatch(ctx, second), "no worker frees up before the deadline")
	assert.False(t, x.InFlight(other.OrderHash))

	close(release)
	x.Wait()
}

func TestNewExecutor_RateLimits(t *testing.T) {
	h := newHarness(t)
	x := NewExecutor(h.chains, []config.ChainConfig{{ID: ordertest.SrcChain, TxRate: 2, TxBurst: 3}}, h.reg, testExecutorConfig(), zap.NewNop())

	assert.InDelta(t, 2, float64(x.limiters[ordertest.SrcChain].Limit()), 0)
	assert.Equal(t, 3, x.limiters[ordertest.SrcChain].Burst())
	assert.True(t, x.limiters[ordertest.DstChain].Limit() > 1e9)
}
