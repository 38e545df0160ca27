package resolver

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/action"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// Mapper decides which orders this resolver serves and what it must do next.
type Mapper struct {
	account common.Address
	// assets is keyed by chain ID. A nil set allows every asset.
	assets map[string]map[common.Address]bool
}

// NewMapper creates a mapper for account over chains.
func NewMapper(chains []config.ChainConfig, account common.Address) *Mapper {
	m := &Mapper{
		account: account,
		assets:  make(map[string]map[common.Address]bool, len(chains)),
	}
	for _, c := range chains {
		var allowed map[common.Address]bool
		if len(c.SupportedAssets) > 0 {
			allowed = make(map[common.Address]bool, len(c.SupportedAssets))
			for _, a := range c.SupportedAssets {
				allowed[common.HexToAddress(a)] = true
			}
		}
		m.assets[c.ID] = allowed
	}
	return m
}

// Supported reports whether both legs run on configured chains, both assets
// are allow-listed and the order names this resolver as taker.
func (m *Mapper) Supported(o *order.Order) bool {
	if !strings.EqualFold(o.Intent.Taker, m.account.Hex()) {
		return false
	}
	return m.allows(o.Intent.SrcChainID, o.Intent.MakerAsset) &&
		m.allows(o.Intent.DstChainID, o.Intent.TakerAsset)
}

func (m *Mapper) allows(chainID, asset string) bool {
	allowed, ok := m.assets[chainID]
	if !ok {
		return false
	}
	if allowed == nil {
		return true
	}
	return common.IsHexAddress(asset) && allowed[common.HexToAddress(asset)]
}

// Actions returns the actions o requires, source leg first.
func (m *Mapper) Actions(o *order.Order) []action.Action {
	var out []action.Action
	for _, id := range []string{o.Intent.SrcChainID, o.Intent.DstChainID} {
		if _, ok := m.assets[id]; ok {
			out = append(out, action.Required(o, id)...)
		}
	}
	return out
}
