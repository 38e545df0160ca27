package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// toOrderDao converts an order.Order to OrderDao.
func toOrderDao(o *order.Order) *dao.OrderDao {
	d := &dao.OrderDao{
		OrderHash:             o.OrderHash.Hex(),
		Status:                string(o.Status),
		OrderType:             string(o.Type),
		SrcChainID:            o.Intent.SrcChainID,
		DstChainID:            o.Intent.DstChainID,
		Maker:                 o.Intent.Maker,
		Deadline:              o.Intent.Deadline,
		Signature:             o.Signature,
		Intent:                o.Intent,
		Commitment:            o.Commitment,
		SrcEscrowAddress:      optional(o.SrcEscrowAddress),
		DstEscrowAddress:      optional(o.DstEscrowAddress),
		SrcTxHash:             optional(o.SrcTxHash),
		DstTxHash:             optional(o.DstTxHash),
		SrcWithdrawTxHash:     optional(o.SrcWithdrawTxHash),
		DstWithdrawTxHash:     optional(o.DstWithdrawTxHash),
		FilledMakerAmount:     o.FilledMakerAmount,
		FilledTakerAmount:     o.FilledTakerAmount,
		SrcImmutables:         o.SrcImmutables,
		DstImmutables:         o.DstImmutables,
		SrcWithdrawImmutables: o.SrcWithdrawImmutables,
		DstWithdrawImmutables: o.DstWithdrawImmutables,
		Secrets:               o.Secrets,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	if d.Secrets == nil {
		d.Secrets = []order.SecretEntry{}
	}
	return d
}

// toOrder converts an OrderDao to order.Order.
func toOrder(d *dao.OrderDao) *order.Order {
	o := &order.Order{
		OrderHash:             common.HexToHash(d.OrderHash),
		Intent:                d.Intent,
		Commitment:            d.Commitment,
		Signature:             d.Signature,
		Type:                  order.Type(d.OrderType),
		Status:                order.Status(d.Status),
		FilledMakerAmount:     d.FilledMakerAmount,
		FilledTakerAmount:     d.FilledTakerAmount,
		SrcImmutables:         d.SrcImmutables,
		DstImmutables:         d.DstImmutables,
		SrcWithdrawImmutables: d.SrcWithdrawImmutables,
		DstWithdrawImmutables: d.DstWithdrawImmutables,
		Secrets:               d.Secrets,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
	if d.SrcEscrowAddress != nil {
		o.SrcEscrowAddress = *d.SrcEscrowAddress
	}
	if d.DstEscrowAddress != nil {
		o.DstEscrowAddress = *d.DstEscrowAddress
	}
	if d.SrcTxHash != nil {
		o.SrcTxHash = *d.SrcTxHash
	}
	if d.DstTxHash != nil {
		o.DstTxHash = *d.DstTxHash
	}
	if d.SrcWithdrawTxHash != nil {
		o.SrcWithdrawTxHash = *d.SrcWithdrawTxHash
	}
	if d.DstWithdrawTxHash != nil {
		o.DstWithdrawTxHash = *d.DstWithdrawTxHash
	}
	if o.Secrets == nil {
		o.Secrets = []order.SecretEntry{}
	}
	return o
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
