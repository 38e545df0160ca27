package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
	mghelper "github.com/chainsafe/htlc-resolver/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating applied_events table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.AppliedEventDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.AppliedEventDao{}, "order_hash")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping applied_events table...")
		return mghelper.DropTables(ctx, db, &dao.AppliedEventDao{})
	})
}
