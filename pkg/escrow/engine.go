// Package escrow implements the hash-time-locked escrow rules that every
// supported chain enforces for a swap order.
//
// The engine is pure state: it performs no I/O and takes the current block
// height from the caller. All fund movement goes through an internal Ledger so
// payouts can be asserted directly.
package escrow

import (
	"crypto/sha256"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DepositPolicy selects where the security deposit comes from at creation.
type DepositPolicy int

const (
	// DepositAdditive pulls the deposit from the caller alongside the swap amount.
	DepositAdditive DepositPolicy = iota
	// DepositPrefunded draws the deposit from a balance the caller funded earlier
	// through FundDeposit.
	DepositPrefunded
)

// Config holds the per-deployment constants of an engine.
type Config struct {
	// Address is the custody account holding escrowed funds.
	Address common.Address
	// WithdrawTimelock is the number of blocks after creation before anyone may
	// call WithdrawPublic.
	WithdrawTimelock uint64
	// RescueTimelock is the grace period, in blocks, after an order's own
	// timelock before anyone may call RescuePublic.
	RescueTimelock uint64
	// SecurityDeposit is escrowed with every order and paid to whoever
	// finalizes it.
	SecurityDeposit *big.Int
	// DepositToken is the asset the deposit is denominated in. The zero
	// address stands for the chain's native asset.
	DepositToken  common.Address
	DepositPolicy DepositPolicy
}

// Intent is the signed order an outbound creation must be authorized by.
type Intent interface {
	Digest() common.Hash
}

// Verifier checks that signature over digest was produced by signer.
type Verifier interface {
	Verify(digest common.Hash, signature []byte, signer common.Address) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(digest common.Hash, signature []byte, signer common.Address) error

// Verify calls f.
func (f VerifierFunc) Verify(digest common.Hash, signature []byte, signer common.Address) error {
	return f(digest, signature, signer)
}

// Key addresses one escrow record.
type Key struct {
	Token     common.Address
	OrderHash common.Hash
}

// Record is the on-chain escrow entry for one order.
type Record struct {
	IsFulfilled bool
	Initiator   common.Address
	Redeemer    common.Address
	InitiatedAt uint64
	Timelock    uint64
	Amount      *big.Int
	Deposit     *big.Int
	SecretHash  common.Hash
	Token       common.Address
}

func (r *Record) clone() *Record {
	c := *r
	c.Amount = new(big.Int).Set(r.Amount)
	c.Deposit = new(big.Int).Set(r.Deposit)
	return &c
}

// CreateParams are the escrow parameters shared by both creation paths.
type CreateParams struct {
	Token      common.Address
	OrderHash  common.Hash
	Initiator  common.Address
	Redeemer   common.Address
	Timelock   uint64
	Amount     *big.Int
	SecretHash common.Hash
}

// Call carries the transaction context of an engine operation.
type Call struct {
	Caller common.Address
	Height uint64
}

// SecretHash returns the commitment for secret.
func SecretHash(secret []byte) common.Hash {
	return sha256.Sum256(secret)
}

// Engine holds every escrow record of one deployment.
//
// Each operation re-validates IsFulfilled under the engine lock, so a caller
// that checked a record earlier cannot race another finalization.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	verifier Verifier
	records  map[Key]*Record
	deposits map[common.Address]*big.Int
	ledger   *Ledger
}

// NewEngine creates an engine over ledger. A nil ledger starts empty.
func NewEngine(cfg Config, verifier Verifier, ledger *Ledger) *Engine {
	if cfg.SecurityDeposit == nil {
		cfg.SecurityDeposit = new(big.Int)
	}
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Engine{
		cfg:      cfg,
		verifier: verifier,
		records:  make(map[Key]*Record),
		deposits: make(map[common.Address]*big.Int),
		ledger:   ledger,
	}
}

// Config returns the engine constants.
func (e *Engine) Config() Config {
	return e.cfg
}

// Ledger exposes balances for funding and inspection.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Record returns a copy of the record at key.
func (e *Engine) Record(key Key) (*Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[key]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// FundDeposit moves amount of the deposit token from the caller into its
// prefunded deposit balance.
func (e *Engine) FundDeposit(call Call, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return newError(CodeInvalidParams, "deposit amount must be positive")
	}
	if err := e.ledger.transfer(e.cfg.DepositToken, call.Caller, e.cfg.Address, amount); err != nil {
		return err
	}
	bal, ok := e.deposits[call.Caller]
	if !ok {
		bal = new(big.Int)
		e.deposits[call.Caller] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// CreateOutboundOrder escrows funds authorized by the initiator's signature
// over intent.
func (e *Engine) CreateOutboundOrder(call Call, intent Intent, signature []byte, p CreateParams) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateParams(p); err != nil {
		return nil, err
	}
	if intent == nil || intent.Digest() != p.OrderHash {
		return nil, newError(CodeInvalidParams, "intent does not hash to order %s", p.OrderHash.Hex())
	}
	if e.verifier == nil {
		return nil, newError(CodeInvalidSignature, "no signature verifier configured")
	}
	if err := e.verifier.Verify(p.OrderHash, signature, p.Initiator); err != nil {
		return nil, newError(CodeInvalidSignature, "%v", err)
	}
	return e.create(call, p, false)
}

// CreateInboundOrder escrows funds attested directly by the caller, who must
// be the initiator.
func (e *Engine) CreateInboundOrder(call Call, p CreateParams) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateParams(p); err != nil {
		return nil, err
	}
	if call.Caller != p.Initiator {
		return nil, newError(CodeUnauthorized, "inbound order must be created by its initiator")
	}
	return e.create(call, p, true)
}

func validateParams(p CreateParams) error {
	switch {
	case p.Redeemer == (common.Address{}):
		return newError(CodeInvalidParams, "redeemer is zero")
	case p.Initiator == (common.Address{}):
		return newError(CodeInvalidParams, "initiator is zero")
	case p.Initiator == p.Redeemer:
		return newError(CodeInvalidParams, "initiator and redeemer are the same account")
	case p.Timelock == 0:
		return newError(CodeInvalidParams, "timelock is zero")
	case p.Amount == nil || p.Amount.Sign() <= 0:
		return newError(CodeInvalidParams, "amount must be positive")
	case p.SecretHash == (common.Hash{}):
		return newError(CodeInvalidParams, "secret hash is zero")
	}
	return nil
}

// create must be called with e.mu held.
func (e *Engine) create(call Call, p CreateParams, inbound bool) (*Event, error) {
	key := Key{Token: p.Token, OrderHash: p.OrderHash}
	if _, ok := e.records[key]; ok {
		return nil, newError(CodeDuplicateOrder, "order %s already escrowed", p.OrderHash.Hex())
	}

	deposit := new(big.Int).Set(e.cfg.SecurityDeposit)
	if err := e.ledger.transfer(p.Token, p.Initiator, e.cfg.Address, p.Amount); err != nil {
		return nil, err
	}
	if err := e.takeDeposit(call.Caller, deposit); err != nil {
		// put the swap amount back; custody just received it
		_ = e.ledger.transfer(p.Token, e.cfg.Address, p.Initiator, p.Amount)
		return nil, err
	}

	rec := &Record{
		Initiator:   p.Initiator,
		Redeemer:    p.Redeemer,
		InitiatedAt: call.Height,
		Timelock:    p.Timelock,
		Amount:      new(big.Int).Set(p.Amount),
		Deposit:     deposit,
		SecretHash:  p.SecretHash,
		Token:       p.Token,
	}
	e.records[key] = rec

	return &Event{
		Kind:       EventCreated,
		Token:      p.Token,
		OrderHash:  p.OrderHash,
		SecretHash: p.SecretHash,
		Amount:     new(big.Int).Set(p.Amount),
		Deposit:    new(big.Int).Set(deposit),
		Initiator:  p.Initiator,
		Redeemer:   p.Redeemer,
		Caller:     call.Caller,
		Timelock:   p.Timelock,
		Inbound:    inbound,
	}, nil
}

func (e *Engine) takeDeposit(from common.Address, deposit *big.Int) error {
	if deposit.Sign() == 0 {
		return nil
	}
	if e.cfg.DepositPolicy == DepositPrefunded {
		bal := e.deposits[from]
		if bal == nil || bal.Cmp(deposit) < 0 {
			return newError(CodeInsufficientFunds, "prefunded deposit of %s is below %s", from.Hex(), deposit)
		}
		bal.Sub(bal, deposit)
		return nil
	}
	return e.ledger.transfer(e.cfg.DepositToken, from, e.cfg.Address, deposit)
}

// Withdraw releases amount and deposit to the redeemer, who must present the secret.
func (e *Engine) Withdraw(call Call, token common.Address, orderHash common.Hash, secret []byte) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.open(token, orderHash)
	if err != nil {
		return nil, err
	}
	if call.Caller != rec.Redeemer {
		return nil, newError(CodeUnauthorized, "only the redeemer may withdraw")
	}
	if SecretHash(secret) != rec.SecretHash {
		return nil, newError(CodeSecretMismatch, "secret does not match order %s", orderHash.Hex())
	}
	if err := e.finalize(rec, rec.Redeemer, rec.Redeemer); err != nil {
		return nil, err
	}
	return e.event(EventWithdraw, call, orderHash, rec, secret, false), nil
}

// WithdrawPublic lets anyone complete a withdrawal once the withdraw timelock
// has passed. The deposit goes to the caller.
func (e *Engine) WithdrawPublic(call Call, token common.Address, orderHash common.Hash, secret []byte) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.open(token, orderHash)
	if err != nil {
		return nil, err
	}
	if opens := OpensAt(rec.InitiatedAt, e.cfg.WithdrawTimelock); call.Height < opens {
		return nil, newError(CodeTooEarly, "public withdraw opens at block %d", opens)
	}
	if SecretHash(secret) != rec.SecretHash {
		return nil, newError(CodeSecretMismatch, "secret does not match order %s", orderHash.Hex())
	}
	if err := e.finalize(rec, rec.Redeemer, call.Caller); err != nil {
		return nil, err
	}
	return e.event(EventWithdraw, call, orderHash, rec, secret, true), nil
}

// Rescue refunds an expired order to its initiator.
func (e *Engine) Rescue(call Call, token common.Address, orderHash common.Hash) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.open(token, orderHash)
	if err != nil {
		return nil, err
	}
	if call.Caller != rec.Initiator {
		return nil, newError(CodeUnauthorized, "only the initiator may rescue")
	}
	if opens := OpensAt(rec.InitiatedAt, rec.Timelock); call.Height < opens {
		return nil, newError(CodeTooEarly, "rescue opens at block %d", opens)
	}
	if err := e.finalize(rec, rec.Initiator, rec.Initiator); err != nil {
		return nil, err
	}
	return e.event(EventRescue, call, orderHash, rec, nil, false), nil
}

// RescuePublic lets anyone refund the initiator once the order timelock and
// the rescue grace period have both passed. The deposit goes to the caller.
func (e *Engine) RescuePublic(call Call, token common.Address, orderHash common.Hash) (*Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.open(token, orderHash)
	if err != nil {
		return nil, err
	}
	opens := OpensAt(rec.InitiatedAt, rec.Timelock, e.cfg.RescueTimelock)
	if call.Height < opens {
		return nil, newError(CodeTooEarly, "public rescue opens at block %d", opens)
	}
	if err := e.finalize(rec, rec.Initiator, call.Caller); err != nil {
		return nil, err
	}
	return e.event(EventRescue, call, orderHash, rec, nil, true), nil
}

// open returns the live record at the key. Must be called with e.mu held.
func (e *Engine) open(token common.Address, orderHash common.Hash) (*Record, error) {
	rec, ok := e.records[Key{Token: token, OrderHash: orderHash}]
	if !ok {
		return nil, newError(CodeOrderNotFound, "no escrow for order %s", orderHash.Hex())
	}
	if rec.IsFulfilled {
		return nil, newError(CodeAlreadyFulfilled, "order %s already finalized", orderHash.Hex())
	}
	return rec, nil
}

// finalize marks rec fulfilled and pays amount to amountTo and the deposit
// to depositTo. Must be called with e.mu held.
func (e *Engine) finalize(rec *Record, amountTo, depositTo common.Address) error {
	rec.IsFulfilled = true
	if err := e.ledger.transfer(rec.Token, e.cfg.Address, amountTo, rec.Amount); err != nil {
		rec.IsFulfilled = false
		return err
	}
	if err := e.ledger.transfer(e.cfg.DepositToken, e.cfg.Address, depositTo, rec.Deposit); err != nil {
		_ = e.ledger.transfer(rec.Token, amountTo, e.cfg.Address, rec.Amount)
		rec.IsFulfilled = false
		return err
	}
	return nil
}

func (e *Engine) event(kind EventKind, call Call, orderHash common.Hash, rec *Record, secret []byte, public bool) *Event {
	ev := &Event{
		Kind:       kind,
		Token:      rec.Token,
		OrderHash:  orderHash,
		SecretHash: rec.SecretHash,
		Amount:     new(big.Int).Set(rec.Amount),
		Deposit:    new(big.Int).Set(rec.Deposit),
		Initiator:  rec.Initiator,
		Redeemer:   rec.Redeemer,
		Caller:     call.Caller,
		Timelock:   rec.Timelock,
		IsPublic:   public,
	}
	if secret != nil {
		ev.Secret = append([]byte(nil), secret...)
	}
	return ev
}

// OpensAt returns the block at which a path gated by start plus the given
// waits opens. The sum saturates, so a huge timelock keeps the path closed
// instead of wrapping around to an early block.
func OpensAt(start uint64, waits ...uint64) uint64 {
	at := start
	for _, w := range waits {
		if w > math.MaxUint64-at {
			return math.MaxUint64
		}
		at += w
	}
	return at
}
