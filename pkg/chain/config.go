package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
)

// EscrowConfig converts the configured escrow constants for the deployment
// at address.
func EscrowConfig(cfg config.EscrowConfig, address common.Address) (escrow.Config, error) {
	deposit, ok := new(big.Int).SetString(cfg.SecurityDeposit, 10)
	if !ok || deposit.Sign() < 0 {
		return escrow.Config{}, fmt.Errorf("invalid security deposit %q", cfg.SecurityDeposit)
	}

	policy := escrow.DepositAdditive
	switch cfg.DepositPolicy {
	case "", "additive":
	case "prefunded":
		policy = escrow.DepositPrefunded
	default:
		return escrow.Config{}, fmt.Errorf("unknown deposit policy %q", cfg.DepositPolicy)
	}

	return escrow.Config{
		Address:          address,
		WithdrawTimelock: cfg.WithdrawTimelock,
		RescueTimelock:   cfg.RescueTimelock,
		SecurityDeposit:  deposit,
		DepositPolicy:    policy,
	}, nil
}
