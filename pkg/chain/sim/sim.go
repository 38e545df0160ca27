// Package sim is an in-process chain backed by the escrow engine. Every
// successful transaction is mined into its own block; Mine advances the
// height without transactions.
package sim

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
)

// Chain is one simulated chain with a single escrow deployment.
type Chain struct {
	id     string
	engine *escrow.Engine

	mu     sync.Mutex
	height uint64
	events []chain.Event
	faults []error
}

// New creates a chain at height 0.
func New(id string, cfg escrow.Config, verifier escrow.Verifier) *Chain {
	if cfg.Address == (common.Address{}) {
		cfg.Address = common.BytesToAddress(crypto.Keccak256([]byte("escrow:" + id))[12:])
	}
	return &Chain{id: id, engine: escrow.NewEngine(cfg, verifier, nil)}
}

// Engine exposes the escrow engine for assertions.
func (c *Chain) Engine() *escrow.Engine {
	return c.engine
}

// Height returns the current block number.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Mine advances the chain by n empty blocks.
func (c *Chain) Mine(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
}

// Mint credits holder with amount of token.
func (c *Chain) Mint(token, holder common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Ledger().Mint(token, holder, amount)
}

// BalanceOf returns holder's balance of token.
func (c *Chain) BalanceOf(token, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Ledger().BalanceOf(token, holder)
}

// FundDeposit prefunds security deposits for holder.
func (c *Chain) FundDeposit(holder common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.FundDeposit(escrow.Call{Caller: holder, Height: c.height}, amount)
}

// FailNext makes the next len(errs) transactions fail with errs, in order,
// before reaching the engine.
func (c *Chain) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, errs...)
}

// As returns a handle that sends transactions from account.
func (c *Chain) As(account common.Address) *Account {
	return &Account{chain: c, account: account}
}

func (c *Chain) blockHash(number uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return crypto.Keccak256Hash([]byte(c.id), buf[:])
}

// send runs op in a new block. Failed transactions do not mine.
func (c *Chain) send(op func(call escrow.Call) (*escrow.Event, error), caller common.Address) (*chain.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.faults) > 0 {
		err := c.faults[0]
		c.faults = c.faults[1:]
		return nil, err
	}

	height := c.height + 1
	ev, err := op(escrow.Call{Caller: caller, Height: height})
	if err != nil {
		return nil, err
	}
	c.height = height

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], uint64(len(c.events)))
	txHash := crypto.Keccak256Hash([]byte(c.id), nonce[:], ev.OrderHash[:])
	c.events = append(c.events, chain.Event{
		Event:       *ev,
		ChainID:     c.id,
		BlockNumber: height,
		BlockHash:   c.blockHash(height),
		TxHash:      txHash,
	})
	return &chain.Receipt{TxHash: txHash, BlockNumber: height}, nil
}

// Account is a Chain bound to the account it sends from.
type Account struct {
	chain   *Chain
	account common.Address
}

var _ chain.Chain = (*Account)(nil)

func (a *Account) ID() string { return a.chain.id }

func (a *Account) Account() common.Address { return a.account }

func (a *Account) EscrowAddress() string {
	return a.chain.engine.Config().Address.Hex()
}

func (a *Account) LatestBlock(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return a.chain.Height(), nil
}

func (a *Account) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	return a.chain.blockHash(number), nil
}

func (a *Account) Events(ctx context.Context, from, to uint64) ([]chain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.chain.mu.Lock()
	defer a.chain.mu.Unlock()

	var out []chain.Event
	for _, ev := range a.chain.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (a *Account) Escrow(ctx context.Context, token common.Address, orderHash common.Hash) (*escrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := a.chain.engine.Record(escrow.Key{Token: token, OrderHash: orderHash})
	if !ok {
		return nil, escrow.ErrOrderNotFound
	}
	return rec, nil
}

func (a *Account) CreateOutbound(ctx context.Context, req chain.OutboundRequest) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Order == nil {
		return nil, &escrow.Error{Code: escrow.CodeInvalidParams, Msg: "outbound order without intent"}
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.CreateOutboundOrder(call, req.Order, req.Signature, req.Params)
	}, a.account)
}

func (a *Account) CreateInbound(ctx context.Context, p escrow.CreateParams) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.CreateInboundOrder(call, p)
	}, a.account)
}

func (a *Account) Withdraw(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.Withdraw(call, token, orderHash, secret)
	}, a.account)
}

func (a *Account) WithdrawPublic(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.WithdrawPublic(call, token, orderHash, secret)
	}, a.account)
}

func (a *Account) Rescue(ctx context.Context, token common.Address, orderHash common.Hash) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.Rescue(call, token, orderHash)
	}, a.account)
}

func (a *Account) RescuePublic(ctx context.Context, token common.Address, orderHash common.Hash) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.chain.send(func(call escrow.Call) (*escrow.Event, error) {
		return a.chain.engine.RescuePublic(call, token, orderHash)
	}, a.account)
}
