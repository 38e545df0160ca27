package app

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/chain/sim"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/escrow"
)

func TestDialChains_RejectsSimChains(t *testing.T) {
	cfgs := []config.ChainConfig{{ID: "31337", Type: "sim"}}

	clients, err := DialChains(context.Background(), cfgs, config.EscrowConfig{}, nil, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, clients)
	assert.Contains(t, err.Error(), "31337")
}

func TestEscrowAddresses(t *testing.T) {
	src := sim.New("1", escrow.Config{Address: common.HexToAddress("0xaa")}, nil)
	dst := sim.New("2", escrow.Config{Address: common.HexToAddress("0xbb")}, nil)

	got := EscrowAddresses([]*sim.Account{src.As(common.Address{}), dst.As(common.Address{})})
	assert.Equal(t, map[string]string{
		"1": src.As(common.Address{}).EscrowAddress(),
		"2": dst.As(common.Address{}).EscrowAddress(),
	}, got)
	assert.Len(t, got, 2)
}
