package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/htlc-resolver/pkg/migrations/relayerdb"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
)

var registryTables = []string{"orders", "chain_state", "applied_events"}

func migrateUp(t *testing.T) (context.Context, *bun.DB, *migrate.Migrator, func()) {
	t.Helper()
	db, cleanup := pgutil.SetupTestDB(t)
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, relayerdb.Migrations)
	if err := migrator.Init(ctx); err != nil {
		cleanup()
		t.Fatalf("Init() failed: %v", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		cleanup()
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("expected migrations to run, but none were applied")
	}

	for _, table := range append(registryTables, "bun_migrations") {
		pgutil.AssertTableExists(t, db, table)
	}
	return ctx, db, migrator, cleanup
}

func TestRelayerDBMigrations_Apply(t *testing.T) {
	_, db, _, cleanup := migrateUp(t)
	defer cleanup()

	for _, idx := range []string{
		"idx_orders_status",
		"idx_orders_src_chain_id",
		"idx_orders_dst_chain_id",
		"idx_orders_created_at",
		"idx_applied_events_order_hash",
	} {
		pgutil.AssertIndexExists(t, db, idx)
	}
	for _, table := range registryTables {
		pgutil.AssertRowCount(t, db, table, 0)
	}
}

func TestRelayerDBMigrations_Idempotency(t *testing.T) {
	ctx, _, migrator, cleanup := migrateUp(t)
	defer cleanup()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("expected no new migrations on second run")
	}
}

func TestRelayerDBMigrations_Rollback(t *testing.T) {
	ctx, db, migrator, cleanup := migrateUp(t)
	defer cleanup()

	// Migrate applies everything as one group, so a single rollback drops it all
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("expected rollback to process a migration")
	}

	for _, table := range registryTables {
		pgutil.AssertTableNotExists(t, db, table)
	}
	pgutil.AssertIndexNotExists(t, db, "idx_orders_status")
}
