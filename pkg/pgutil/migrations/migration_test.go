package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
)

type sweepDao struct {
	bun.BaseModel `bun:"table:sweeps"`
	ID            int64  `bun:",pk,autoincrement"`
	OrderHash     string `bun:",notnull,type:varchar(66)"`
	ChainID       string `bun:",notnull,type:varchar(32)"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:        "invalid-host-that-does-not-exist",
		Port:        5432,
		User:        "test",
		Password:    "test",
		Database:    "test",
		SSLMode:     "disable",
		DialTimeout: 2 * time.Second,
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestSchemaLifecycle(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := CreateSchema(ctx, db, &sweepDao{}); err != nil {
			t.Fatalf("CreateSchema() call %d failed: %v", i+1, err)
		}
	}
	pgutil.AssertTableExists(t, db, "sweeps")
	pgutil.AssertRowCount(t, db, "sweeps", 0)

	for i := 0; i < 2; i++ {
		if err := DropTables(ctx, db, &sweepDao{}); err != nil {
			t.Fatalf("DropTables() call %d failed: %v", i+1, err)
		}
	}
	pgutil.AssertTableNotExists(t, db, "sweeps")
}

func TestModelIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &sweepDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &sweepDao{}, "chain_id"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &sweepDao{}, "order_hash"); err != nil {
		t.Fatalf("CreateModelIndexes() second call failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_sweeps_chain_id")
	pgutil.AssertIndexExists(t, db, "idx_sweeps_order_hash")

	if err := DropModelIndexes(ctx, db, &sweepDao{}, "chain_id", "order_hash"); err != nil {
		t.Fatalf("DropModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexNotExists(t, db, "idx_sweeps_chain_id")
	pgutil.AssertIndexNotExists(t, db, "idx_sweeps_order_hash")
}

func TestModelIndexName_NilModel(t *testing.T) {
	if _, err := modelIndexName(nil, nil, "status"); err == nil {
		t.Fatal("expected error for nil model")
	}
}

func TestRunMigrations_RejectsUnknownCommands(t *testing.T) {
	if err := RunMigrations(context.Background(), nil); err == nil {
		t.Fatal("expected error without a command")
	}
	if err := RunMigrations(context.Background(), nil, "sideways"); err == nil {
		t.Fatal("expected error for an unknown command")
	}
}
