// Package evm is the chain adapter for EVM networks running the HTLC escrow
// contract.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
	"github.com/chainsafe/htlc-resolver/pkg/keys"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// ErrReadOnly is returned by write operations of a client without a key.
var ErrReadOnly = errors.New("evm client has no signing key")

// Backend is the RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Client implements chain.Chain over an EVM RPC endpoint.
type Client struct {
	cfg     config.ChainConfig
	backend Backend
	escrow  *Escrow
	key     *keys.SigningKey
	escrowC escrow.Config
	logger  *zap.Logger

	chainID *big.Int
	closer  func()
}

var _ chain.Chain = (*Client)(nil)

// Dial connects to cfg.RPCURL. key may be nil for a read-only client.
func Dial(ctx context.Context, cfg config.ChainConfig, escrowCfg config.EscrowConfig, key *keys.SigningKey, logger *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %s RPC: %w", cfg.ID, err)
	}
	c, err := NewClient(ctx, ec, cfg, escrowCfg, key, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// NewClient binds the escrow contract of cfg on backend.
func NewClient(ctx context.Context, backend Backend, cfg config.ChainConfig, escrowCfg config.EscrowConfig, key *keys.SigningKey, logger *zap.Logger) (*Client, error) {
	address := common.HexToAddress(cfg.EscrowContract)
	ecfg, err := chain.EscrowConfig(escrowCfg, address)
	if err != nil {
		return nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	fields := []zap.Field{
		zap.String("chain", cfg.ID),
		zap.String("network_id", chainID.String()),
		zap.String("escrow_contract", address.Hex()),
	}
	if key != nil {
		fields = append(fields, zap.String("account", key.Address.Hex()))
	}
	logger.Info("Connected to EVM chain", fields...)

	return &Client{
		cfg:     cfg,
		backend: backend,
		escrow:  NewEscrow(address, backend),
		key:     key,
		escrowC: ecfg,
		logger:  logger.With(zap.String("chain", cfg.ID)),
		chainID: chainID,
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) ID() string {
	return c.cfg.ID
}

func (c *Client) EscrowAddress() string {
	return c.escrow.Address().Hex()
}

func (c *Client) Account() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return c.key.Address
}

func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return n, nil
}

func (c *Client) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	return header.Hash(), nil
}

func (c *Client) Events(ctx context.Context, from, to uint64) ([]chain.Event, error) {
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.escrow.Address()},
		Topics:    [][]common.Hash{EventIDs()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter escrow logs [%d, %d]: %w", from, to, err)
	}

	events := make([]chain.Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := decodeLog(c.escrow, l)
		if err != nil {
			c.logger.Warn("Skipping undecodable escrow log",
				zap.String("tx_hash", l.TxHash.Hex()),
				zap.Uint("log_index", l.Index),
				zap.Error(err))
			continue
		}
		events = append(events, chain.Event{
			Event:       *ev,
			ChainID:     c.cfg.ID,
			BlockNumber: l.BlockNumber,
			BlockHash:   l.BlockHash,
			TxHash:      l.TxHash,
			LogIndex:    l.Index,
		})
	}
	return events, nil
}

func (c *Client) Escrow(ctx context.Context, token common.Address, orderHash common.Hash) (*escrow.Record, error) {
	out, err := c.escrow.Orders(&bind.CallOpts{Context: ctx}, token, orderHash)
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow: %w", decodeRevert(err))
	}
	if out.Initiator == (common.Address{}) {
		return nil, escrow.ErrOrderNotFound
	}
	return &escrow.Record{
		IsFulfilled: out.IsFulfilled,
		Initiator:   out.Initiator,
		Redeemer:    out.Redeemer,
		InitiatedAt: out.InitiatedAt.Uint64(),
		Timelock:    out.Timelock.Uint64(),
		Amount:      out.Amount,
		Deposit:     out.Deposit,
		SecretHash:  out.SecretHash,
		Token:       token,
	}, nil
}

func (c *Client) CreateOutbound(ctx context.Context, req chain.OutboundRequest) (*chain.Receipt, error) {
	if req.Order == nil {
		return nil, &escrow.Error{Code: escrow.CodeInvalidParams, Msg: "outbound creation needs the signed order"}
	}
	p := req.Params
	return c.send(ctx, "createOutboundOrder", c.createValue(p, false),
		[32]byte(p.OrderHash), order.Encode(req.Order.Intent, req.Order.Commitment), req.Signature,
		p.Token, p.Initiator, p.Redeemer, new(big.Int).SetUint64(p.Timelock), p.Amount, [32]byte(p.SecretHash))
}

func (c *Client) CreateInbound(ctx context.Context, p escrow.CreateParams) (*chain.Receipt, error) {
	return c.send(ctx, "createInboundOrder", c.createValue(p, true),
		[32]byte(p.OrderHash), p.Token, p.Initiator, p.Redeemer, new(big.Int).SetUint64(p.Timelock), p.Amount, [32]byte(p.SecretHash))
}

func (c *Client) Withdraw(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*chain.Receipt, error) {
	return c.send(ctx, "withdraw", nil, token, [32]byte(orderHash), secret)
}

func (c *Client) WithdrawPublic(ctx context.Context, token common.Address, orderHash common.Hash, secret []byte) (*chain.Receipt, error) {
	return c.send(ctx, "withdrawPublic", nil, token, [32]byte(orderHash), secret)
}

func (c *Client) Rescue(ctx context.Context, token common.Address, orderHash common.Hash) (*chain.Receipt, error) {
	return c.send(ctx, "rescue", nil, token, [32]byte(orderHash))
}

func (c *Client) RescuePublic(ctx context.Context, token common.Address, orderHash common.Hash) (*chain.Receipt, error) {
	return c.send(ctx, "rescuePublic", nil, token, [32]byte(orderHash))
}

// createValue is the native value attached to a creation. Under the
// additive policy a native deposit rides along with the call, and an inbound
// escrow of the native asset also carries the amount.
func (c *Client) createValue(p escrow.CreateParams, inbound bool) *big.Int {
	value := new(big.Int)
	if c.escrowC.DepositPolicy == escrow.DepositAdditive && c.escrowC.DepositToken == (common.Address{}) {
		value.Add(value, c.escrowC.SecurityDeposit)
	}
	if inbound && p.Token == (common.Address{}) && p.Amount != nil {
		value.Add(value, p.Amount)
	}
	return value
}

func (c *Client) send(ctx context.Context, method string, value *big.Int, args ...any) (*chain.Receipt, error) {
	if c.key == nil {
		return nil, ErrReadOnly
	}

	opts, err := c.transactor(ctx, method, value, args...)
	if err != nil {
		return nil, err
	}

	tx, err := c.escrow.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, decodeRevert(err))
	}
	c.logger.Debug("Sent escrow transaction",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s transaction %s reverted", method, tx.Hash().Hex())
	}
	return &chain.Receipt{TxHash: tx.Hash(), BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// transactor signs with the resolver key. Gas is estimated up front so a
// rejected call surfaces its revert reason instead of a mined failure.
func (c *Client) transactor(ctx context.Context, method string, value *big.Int, args ...any) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.key.PrivateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.Value = value

	input, err := escrowABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	to := c.escrow.Address()
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.key.Address, To: &to, Value: value, Data: input,
	})
	if err != nil {
		return nil, fmt.Errorf("%s rejected: %w", method, decodeRevert(err))
	}
	if c.cfg.GasLimit > 0 && gas > c.cfg.GasLimit {
		return nil, fmt.Errorf("%s needs %d gas, above the limit of %d", method, gas, c.cfg.GasLimit)
	}
	auth.GasLimit = gas

	nonce, err := c.backend.PendingNonceAt(ctx, c.key.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)

	if c.cfg.MaxGasPrice != "" {
		maxGasPrice, ok := new(big.Int).SetString(c.cfg.MaxGasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max gas price %q", c.cfg.MaxGasPrice)
		}
		gasPrice, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		if gasPrice.Cmp(maxGasPrice) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
		auth.GasPrice = gasPrice
	}
	return auth, nil
}

func decodeLog(e *Escrow, l types.Log) (*escrow.Event, error) {
	if len(l.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}
	switch l.Topics[0] {
	case escrowABI.Events["Created"].ID:
		var c EscrowCreated
		if err := e.UnpackLog(&c, "Created", l); err != nil {
			return nil, err
		}
		return &escrow.Event{
			Kind:       escrow.EventCreated,
			Token:      c.Token,
			OrderHash:  c.OrderHash,
			SecretHash: c.SecretHash,
			Amount:     c.Amount,
			Deposit:    c.Deposit,
			Initiator:  c.Initiator,
			Redeemer:   c.Redeemer,
			Caller:     c.Caller,
			Timelock:   c.Timelock.Uint64(),
			Inbound:    c.Inbound,
		}, nil
	case escrowABI.Events["Withdraw"].ID:
		var w EscrowWithdraw
		if err := e.UnpackLog(&w, "Withdraw", l); err != nil {
			return nil, err
		}
		return &escrow.Event{
			Kind:      escrow.EventWithdraw,
			Token:     w.Token,
			OrderHash: w.OrderHash,
			Secret:    w.Secret,
			Caller:    w.Caller,
			IsPublic:  w.IsPublic,
		}, nil
	case escrowABI.Events["Rescue"].ID:
		var r EscrowRescue
		if err := e.UnpackLog(&r, "Rescue", l); err != nil {
			return nil, err
		}
		return &escrow.Event{
			Kind:      escrow.EventRescue,
			Token:     r.Token,
			OrderHash: r.OrderHash,
			Caller:    r.Caller,
			IsPublic:  r.IsPublic,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
	}
}
