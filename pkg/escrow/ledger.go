package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is a minimal per-token balance sheet. It stands in for the token
// contracts an escrow pulls from and pays out to.
type Ledger struct {
	balances map[common.Address]map[common.Address]*big.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// BalanceOf returns a copy of the holder's balance of token.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	if b, ok := l.balances[token][holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) {
	l.add(token, holder, amount)
}

func (l *Ledger) add(token, holder common.Address, amount *big.Int) {
	byHolder, ok := l.balances[token]
	if !ok {
		byHolder = make(map[common.Address]*big.Int)
		l.balances[token] = byHolder
	}
	b, ok := byHolder[holder]
	if !ok {
		b = new(big.Int)
		byHolder[holder] = b
	}
	b.Add(b, amount)
}

// transfer moves amount of token between holders. It leaves both balances
// untouched when the sender cannot cover it.
func (l *Ledger) transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if l.BalanceOf(token, from).Cmp(amount) < 0 {
		return newError(CodeInsufficientFunds, "%s holds less than %s of %s", from.Hex(), amount, token.Hex())
	}
	l.add(token, from, new(big.Int).Neg(amount))
	l.add(token, to, amount)
	return nil
}
