package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
	mghelper "github.com/chainsafe/htlc-resolver/pkg/pgutil/migrations"
)

var orderIndexColumns = []string{"status", "src_chain_id", "dst_chain_id", "created_at"}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating orders table...")
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := mghelper.CreateSchema(ctx, tx, &dao.OrderDao{}); err != nil {
				return err
			}
			return mghelper.CreateModelIndexes(ctx, tx, &dao.OrderDao{}, orderIndexColumns...)
		})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping orders table...")
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := mghelper.DropModelIndexes(ctx, tx, &dao.OrderDao{}, orderIndexColumns...); err != nil {
				return err
			}
			return mghelper.DropTables(ctx, tx, &dao.OrderDao{})
		})
	})
}
