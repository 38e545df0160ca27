package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/order/ordertest"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
	mghelper "github.com/chainsafe/htlc-resolver/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, *pgStore) {
	t.Helper()

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &dao.OrderDao{}, &dao.AppliedEventDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, NewStore(db)
}

func storedOrder(salt string) *order.Order {
	o := ordertest.New(ordertest.Key(), func(o *order.Order) { o.Intent.Salt = salt })
	now := time.Now().UTC().Truncate(time.Microsecond)
	o.CreatedAt, o.UpdatedAt = now, now
	o.FilledMakerAmount, o.FilledTakerAmount = decimal.Zero, decimal.Zero
	o.Secrets = []order.SecretEntry{}
	return o
}

func TestPGStore_CreateAndGet(t *testing.T) {
	ctx, store := setupStore(t)
	o := storedOrder("create")

	if err := store.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
	if err := store.CreateOrder(ctx, o); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	got, err := store.GetOrder(ctx, o.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.Status != order.StatusUnmatched {
		t.Fatalf("expected status %s, got %s", order.StatusUnmatched, got.Status)
	}
	if got.Intent.Maker != o.Intent.Maker || !got.Intent.MakingAmount.Equal(o.Intent.MakingAmount) {
		t.Fatalf("intent did not round-trip: %+v", got.Intent)
	}
	if got.Commitment.SecretHash != o.Commitment.SecretHash || got.Commitment.Timelock != o.Commitment.Timelock {
		t.Fatalf("commitment did not round-trip: %+v", got.Commitment)
	}
	if got.Digest() != o.OrderHash {
		t.Fatalf("stored order no longer hashes to %s", o.OrderHash.Hex())
	}

	if _, err := store.GetOrder(ctx, testHash); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestPGStore_UpdateOrder_AppliedEvents(t *testing.T) {
	ctx, store := setupStore(t)
	o := storedOrder("update")
	if err := store.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}

	updated, err := store.UpdateOrder(ctx, o.OrderHash, "evt-1", func(o *order.Order) error {
		o.Status = order.StatusSourceFilled
		o.DstImmutables = &order.Immutables{OrderHash: o.OrderHash, ChainID: ordertest.DstChain, Timelock: 10}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateOrder() failed: %v", err)
	}
	if updated.Status != order.StatusSourceFilled {
		t.Fatalf("expected status %s, got %s", order.StatusSourceFilled, updated.Status)
	}

	_, err = store.UpdateOrder(ctx, o.OrderHash, "evt-1", func(*order.Order) error {
		t.Fatal("update func ran for an applied event")
		return nil
	})
	if !errors.Is(err, ErrEventAlreadyApplied) {
		t.Fatalf("expected ErrEventAlreadyApplied, got %v", err)
	}

	got, err := store.GetOrder(ctx, o.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.DstImmutables == nil || got.DstImmutables.ChainID != ordertest.DstChain {
		t.Fatalf("destination immutables were not stored: %+v", got.DstImmutables)
	}
}

func TestPGStore_UpdateOrder_FuncErrorRollsBack(t *testing.T) {
	ctx, store := setupStore(t)
	o := storedOrder("rollback")
	if err := store.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := store.UpdateOrder(ctx, o.OrderHash, "evt-rollback", func(o *order.Order) error {
		o.Status = order.StatusExpired
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected func error, got %v", err)
	}

	got, err := store.GetOrder(ctx, o.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if got.Status != order.StatusUnmatched {
		t.Fatalf("status changed despite rollback: %s", got.Status)
	}

	// the event ID was rolled back too, so it can be applied later
	if _, err := store.UpdateOrder(ctx, o.OrderHash, "evt-rollback", func(*order.Order) error { return nil }); err != nil {
		t.Fatalf("UpdateOrder() after rollback failed: %v", err)
	}
}

func TestPGStore_UpdateOrder_SerializesConcurrentWriters(t *testing.T) {
	ctx, store := setupStore(t)
	o := storedOrder("concurrent")
	if err := store.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateOrder(ctx, o.OrderHash, "", func(o *order.Order) error {
				o.FilledMakerAmount = o.FilledMakerAmount.Add(decimal.NewFromInt(1))
				return nil
			})
			if err != nil {
				t.Errorf("UpdateOrder() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.GetOrder(ctx, o.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder() failed: %v", err)
	}
	if !got.FilledMakerAmount.Equal(decimal.NewFromInt(writers)) {
		t.Fatalf("expected %d serialized increments, got %s", writers, got.FilledMakerAmount)
	}
}

func TestPGStore_ListOrders(t *testing.T) {
	ctx, store := setupStore(t)
	for _, salt := range []string{"l1", "l2", "l3"} {
		if err := store.CreateOrder(ctx, storedOrder(salt)); err != nil {
			t.Fatalf("CreateOrder() failed: %v", err)
		}
	}

	items, total, err := store.ListOrders(ctx, ListQuery{Statuses: activeStatuses(), Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListOrders() failed: %v", err)
	}
	if total != 3 || len(items) != 1 {
		t.Fatalf("expected 1 of 3 orders, got %d of %d", len(items), total)
	}

	_, total, err = store.ListOrders(ctx, ListQuery{Statuses: []order.Status{order.StatusFulfilled}})
	if err != nil {
		t.Fatalf("ListOrders() failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no fulfilled orders, got %d", total)
	}
}
