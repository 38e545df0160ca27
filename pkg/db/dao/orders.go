package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// OrderDao is a data access object that maps directly to the 'orders' table in PostgreSQL.
// The signed intent and commitment are stored as JSON, with the columns the
// registry filters on lifted out next to them.
type OrderDao struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	OrderHash  string `bun:"order_hash,pk,type:varchar(66)"`
	Status     string `bun:"status,notnull,type:varchar(40)"`
	OrderType  string `bun:"order_type,notnull,type:varchar(20)"`
	SrcChainID string `bun:"src_chain_id,notnull,type:varchar(100)"`
	DstChainID string `bun:"dst_chain_id,notnull,type:varchar(100)"`
	Maker      string `bun:"maker,notnull,type:varchar(42)"`
	Deadline   int64  `bun:"deadline,notnull"`
	Signature  string `bun:"signature,notnull,type:text"`

	Intent     order.Intent     `bun:"intent,notnull,type:jsonb"`
	Commitment order.Commitment `bun:"commitment,notnull,type:jsonb"`

	SrcEscrowAddress  *string `bun:"src_escrow_address,type:varchar(66)"`
	DstEscrowAddress  *string `bun:"dst_escrow_address,type:varchar(66)"`
	SrcTxHash         *string `bun:"src_tx_hash,type:varchar(66)"`
	DstTxHash         *string `bun:"dst_tx_hash,type:varchar(66)"`
	SrcWithdrawTxHash *string `bun:"src_withdraw_tx_hash,type:varchar(66)"`
	DstWithdrawTxHash *string `bun:"dst_withdraw_tx_hash,type:varchar(66)"`

	FilledMakerAmount decimal.Decimal `bun:"filled_maker_amount,notnull,type:numeric(78,0),default:0"`
	FilledTakerAmount decimal.Decimal `bun:"filled_taker_amount,notnull,type:numeric(78,0),default:0"`

	SrcImmutables         *order.Immutables   `bun:"src_immutables,nullzero,type:jsonb"`
	DstImmutables         *order.Immutables   `bun:"dst_immutables,nullzero,type:jsonb"`
	SrcWithdrawImmutables *order.Immutables   `bun:"src_withdraw_immutables,nullzero,type:jsonb"`
	DstWithdrawImmutables *order.Immutables   `bun:"dst_withdraw_immutables,nullzero,type:jsonb"`
	Secrets               []order.SecretEntry `bun:"secrets,notnull,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// AppliedEventDao records every chain event already applied to an order so
// redelivered events are recognised.
type AppliedEventDao struct {
	bun.BaseModel `bun:"table:applied_events,alias:ae"`

	EventID   string    `bun:"event_id,pk,type:varchar(200)"`
	OrderHash string    `bun:"order_hash,notnull,type:varchar(66)"`
	AppliedAt time.Time `bun:"applied_at,notnull,nullzero,default:current_timestamp"`
}
