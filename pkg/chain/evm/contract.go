package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EscrowMetaData contains the interface of the HTLC escrow contract.
// Rejections revert with custom errors named after escrow codes.
var EscrowMetaData = &bind.MetaData{
	ABI: `[
{"type":"function","name":"createOutboundOrder","stateMutability":"payable","inputs":[
 {"name":"orderHash","type":"bytes32"},{"name":"orderData","type":"bytes"},{"name":"signature","type":"bytes"},
 {"name":"token","type":"address"},{"name":"initiator","type":"address"},{"name":"redeemer","type":"address"},
 {"name":"timelock","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"secretHash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"createInboundOrder","stateMutability":"payable","inputs":[
 {"name":"orderHash","type":"bytes32"},{"name":"token","type":"address"},{"name":"initiator","type":"address"},
 {"name":"redeemer","type":"address"},{"name":"timelock","type":"uint256"},{"name":"amount","type":"uint256"},
 {"name":"secretHash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[
 {"name":"token","type":"address"},{"name":"orderHash","type":"bytes32"},{"name":"secret","type":"bytes"}],"outputs":[]},
{"type":"function","name":"withdrawPublic","stateMutability":"nonpayable","inputs":[
 {"name":"token","type":"address"},{"name":"orderHash","type":"bytes32"},{"name":"secret","type":"bytes"}],"outputs":[]},
{"type":"function","name":"rescue","stateMutability":"nonpayable","inputs":[
 {"name":"token","type":"address"},{"name":"orderHash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"rescuePublic","stateMutability":"nonpayable","inputs":[
 {"name":"token","type":"address"},{"name":"orderHash","type":"bytes32"}],"outputs":[]},
{"type":"function","name":"orders","stateMutability":"view","inputs":[
 {"name":"token","type":"address"},{"name":"orderHash","type":"bytes32"}],"outputs":[
 {"name":"isFulfilled","type":"bool"},{"name":"initiator","type":"address"},{"name":"redeemer","type":"address"},
 {"name":"initiatedAt","type":"uint256"},{"name":"timelock","type":"uint256"},{"name":"amount","type":"uint256"},
 {"name":"deposit","type":"uint256"},{"name":"secretHash","type":"bytes32"}]},
{"type":"event","name":"Created","anonymous":false,"inputs":[
 {"name":"orderHash","type":"bytes32","indexed":true},{"name":"token","type":"address","indexed":true},
 {"name":"secretHash","type":"bytes32","indexed":false},{"name":"initiator","type":"address","indexed":false},
 {"name":"redeemer","type":"address","indexed":false},{"name":"caller","type":"address","indexed":false},
 {"name":"amount","type":"uint256","indexed":false},{"name":"deposit","type":"uint256","indexed":false},
 {"name":"timelock","type":"uint256","indexed":false},{"name":"inbound","type":"bool","indexed":false}]},
{"type":"event","name":"Withdraw","anonymous":false,"inputs":[
 {"name":"orderHash","type":"bytes32","indexed":true},{"name":"token","type":"address","indexed":true},
 {"name":"secret","type":"bytes","indexed":false},{"name":"caller","type":"address","indexed":false},
 {"name":"isPublic","type":"bool","indexed":false}]},
{"type":"event","name":"Rescue","anonymous":false,"inputs":[
 {"name":"orderHash","type":"bytes32","indexed":true},{"name":"token","type":"address","indexed":true},
 {"name":"caller","type":"address","indexed":false},{"name":"isPublic","type":"bool","indexed":false}]},
{"type":"error","name":"InvalidSignature","inputs":[]},
{"type":"error","name":"InvalidParams","inputs":[]},
{"type":"error","name":"DuplicateOrder","inputs":[]},
{"type":"error","name":"OrderNotFound","inputs":[]},
{"type":"error","name":"AlreadyFulfilled","inputs":[]},
{"type":"error","name":"SecretMismatch","inputs":[]},
{"type":"error","name":"Unauthorized","inputs":[]},
{"type":"error","name":"TooEarly","inputs":[]},
{"type":"error","name":"InsufficientFunds","inputs":[]}
]`,
}

var escrowABI = func() abi.ABI {
	parsed, err := EscrowMetaData.GetAbi()
	if err != nil {
		panic(fmt.Sprintf("evm: parse escrow abi: %v", err))
	}
	return *parsed
}()

// EscrowCreated is the decoded Created event.
type EscrowCreated struct {
	OrderHash  [32]byte
	Token      common.Address
	SecretHash [32]byte
	Initiator  common.Address
	Redeemer   common.Address
	Caller     common.Address
	Amount     *big.Int
	Deposit    *big.Int
	Timelock   *big.Int
	Inbound    bool
}

// EscrowWithdraw is the decoded Withdraw event.
type EscrowWithdraw struct {
	OrderHash [32]byte
	Token     common.Address
	Secret    []byte
	Caller    common.Address
	IsPublic  bool
}

// EscrowRescue is the decoded Rescue event.
type EscrowRescue struct {
	OrderHash [32]byte
	Token     common.Address
	Caller    common.Address
	IsPublic  bool
}

// EscrowOrder is the return value of the orders view.
type EscrowOrder struct {
	IsFulfilled bool
	Initiator   common.Address
	Redeemer    common.Address
	InitiatedAt *big.Int
	Timelock    *big.Int
	Amount      *big.Int
	Deposit     *big.Int
	SecretHash  [32]byte
}

// Escrow is a binding to one deployed escrow contract.
type Escrow struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewEscrow binds the escrow contract at address.
func NewEscrow(address common.Address, backend bind.ContractBackend) *Escrow {
	return &Escrow{
		address:  address,
		contract: bind.NewBoundContract(address, escrowABI, backend, backend, backend),
	}
}

// Address returns the contract address.
func (e *Escrow) Address() common.Address {
	return e.address
}

// Orders reads the escrow record at (token, orderHash).
func (e *Escrow) Orders(opts *bind.CallOpts, token common.Address, orderHash common.Hash) (*EscrowOrder, error) {
	var out []any
	if err := e.contract.Call(opts, &out, "orders", token, [32]byte(orderHash)); err != nil {
		return nil, err
	}
	if len(out) != 8 {
		return nil, fmt.Errorf("orders returned %d values", len(out))
	}
	return &EscrowOrder{
		IsFulfilled: *abi.ConvertType(out[0], new(bool)).(*bool),
		Initiator:   *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
		Redeemer:    *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		InitiatedAt: *abi.ConvertType(out[3], new(*big.Int)).(**big.Int),
		Timelock:    *abi.ConvertType(out[4], new(*big.Int)).(**big.Int),
		Amount:      *abi.ConvertType(out[5], new(*big.Int)).(**big.Int),
		Deposit:     *abi.ConvertType(out[6], new(*big.Int)).(**big.Int),
		SecretHash:  *abi.ConvertType(out[7], new([32]byte)).(*[32]byte),
	}, nil
}

// Transact sends a call to method.
func (e *Escrow) Transact(opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	return e.contract.Transact(opts, method, args...)
}

// UnpackLog decodes log as event into out.
func (e *Escrow) UnpackLog(out any, event string, log types.Log) error {
	return e.contract.UnpackLog(out, event, log)
}

// EventIDs returns the topic of every escrow event.
func EventIDs() []common.Hash {
	return []common.Hash{
		escrowABI.Events["Created"].ID,
		escrowABI.Events["Withdraw"].ID,
		escrowABI.Events["Rescue"].ID,
	}
}
