package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"pgregory.net/rapid"
)

func mustCreate(t *rapid.T, eng *Engine, p CreateParams, caller common.Address) {
	if _, err := eng.CreateOutboundOrder(Call{Caller: caller, Height: createdAt}, testIntent(p.OrderHash), signedBy(p.Initiator), p); err != nil {
		t.Fatalf("create failed: %v", err)
	}
}

func totalOf(eng *Engine, token common.Address) *big.Int {
	sum := new(big.Int)
	for _, acct := range []common.Address{maker, resolver, stranger, custody} {
		sum.Add(sum, eng.Ledger().BalanceOf(token, acct))
	}
	return sum
}

func TestProperty_AtMostOneFulfillment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		eng := newFundedEngine(testConfig())
		mustCreate(t, eng, testParams(), resolver)
		tokensBefore, nativeBefore := totalOf(eng, testToken), totalOf(eng, nativeToken)

		callers := []common.Address{maker, resolver, stranger}
		n := rapid.IntRange(1, 12).Draw(t, "ops")
		successes := 0
		for i := 0; i < n; i++ {
			op := rapid.IntRange(0, 3).Draw(t, "op")
			call := Call{
				Caller: rapid.SampledFrom(callers).Draw(t, "caller"),
				Height: rapid.Uint64Range(createdAt, createdAt+3*(testTimelock+rescueTimelock)).Draw(t, "height"),
			}
			secret := testSecret
			if rapid.Bool().Draw(t, "wrong secret") {
				secret = []byte("not it")
			}

			var err error
			switch op {
			case 0:
				_, err = eng.Withdraw(call, testToken, testHash, secret)
			case 1:
				_, err = eng.WithdrawPublic(call, testToken, testHash, secret)
			case 2:
				_, err = eng.Rescue(call, testToken, testHash)
			case 3:
				_, err = eng.RescuePublic(call, testToken, testHash)
			}

			if err == nil {
				successes++
				continue
			}
			if successes > 0 && !errors.Is(err, ErrAlreadyFulfilled) {
				t.Fatalf("op %d after fulfillment failed with %v, want AlreadyFulfilled", op, err)
			}
		}

		if successes > 1 {
			t.Fatalf("%d finalizations succeeded", successes)
		}
		if totalOf(eng, testToken).Cmp(tokensBefore) != 0 || totalOf(eng, nativeToken).Cmp(nativeBefore) != 0 {
			t.Fatalf("funds were created or destroyed")
		}
		if successes == 1 && eng.Ledger().BalanceOf(testToken, custody).Sign() != 0 {
			t.Fatalf("custody still holds funds after finalization")
		}
	})
}

func TestProperty_SecretCorrectness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		eng := newFundedEngine(testConfig())
		mustCreate(t, eng, testParams(), resolver)

		secret := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "secret")
		public := rapid.Bool().Draw(t, "public")

		var err error
		if public {
			_, err = eng.WithdrawPublic(Call{Caller: stranger, Height: createdAt + withdrawTimelock}, testToken, testHash, secret)
		} else {
			_, err = eng.Withdraw(Call{Caller: resolver, Height: createdAt}, testToken, testHash, secret)
		}

		matches := bytes.Equal(secret, testSecret)
		switch {
		case matches && err != nil:
			t.Fatalf("matching secret rejected: %v", err)
		case !matches && !errors.Is(err, ErrSecretMismatch):
			t.Fatalf("mismatching secret returned %v, want SecretMismatch", err)
		}
	})
}

func TestProperty_TimelockMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		timelock := rapid.Uint64Range(1, 1000).Draw(t, "timelock")
		offset := rapid.Uint64Range(0, 2000).Draw(t, "offset")

		eng := newFundedEngine(testConfig())
		p := testParams()
		p.Timelock = timelock
		mustCreate(t, eng, p, maker)

		_, err := eng.Rescue(Call{Caller: maker, Height: createdAt + offset}, testToken, testHash)
		if offset < timelock {
			if !errors.Is(err, ErrTooEarly) {
				t.Fatalf("rescue at +%d with timelock %d returned %v, want TooEarly", offset, timelock, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("rescue at +%d with timelock %d failed: %v", offset, timelock, err)
		}
	})
}
