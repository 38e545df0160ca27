package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/chain/evm"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/keys"
)

// DialChains connects to every configured chain. key may be nil for
// read-only clients. On error, clients already dialed are closed.
func DialChains(ctx context.Context, cfgs []config.ChainConfig, escrowCfg config.EscrowConfig, key *keys.SigningKey, logger *zap.Logger) ([]*evm.Client, error) {
	clients := make([]*evm.Client, 0, len(cfgs))
	for _, c := range cfgs {
		if c.Type != "evm" {
			CloseChains(clients)
			return nil, fmt.Errorf("chain %s: type %q cannot be dialed, sim chains only run in-process", c.ID, c.Type)
		}
		client, err := evm.Dial(ctx, c, escrowCfg, key, logger)
		if err != nil {
			CloseChains(clients)
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

// CloseChains closes every client.
func CloseChains(clients []*evm.Client) {
	for _, c := range clients {
		c.Close()
	}
}

// EscrowAddresses maps chain ID to the escrow deployment each reader serves.
func EscrowAddresses[R chain.Reader](readers []R) map[string]string {
	out := make(map[string]string, len(readers))
	for _, r := range readers {
		out[r.ID()] = r.EscrowAddress()
	}
	return out
}
