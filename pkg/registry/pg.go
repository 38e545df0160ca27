package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the order store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateOrder(ctx context.Context, o *order.Order) error {
	res, err := s.db.NewInsert().
		Model(toOrderDao(o)).
		On("CONFLICT (order_hash) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	if n == 0 {
		return ErrDuplicateOrder
	}
	return nil
}

func (s *pgStore) GetOrder(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	d := new(dao.OrderDao)
	err := s.db.NewSelect().
		Model(d).
		Where("order_hash = ?", orderHash.Hex()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return toOrder(d), nil
}

func (s *pgStore) ListOrders(ctx context.Context, q ListQuery) ([]*order.Order, int, error) {
	var daos []dao.OrderDao
	query := s.db.NewSelect().
		Model(&daos).
		OrderExpr("created_at DESC").
		OrderExpr("order_hash ASC").
		Offset(q.Offset)

	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		query = query.Where("status IN (?)", bun.In(statuses))
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*order.Order, len(daos))
	for i := range daos {
		orders[i] = toOrder(&daos[i])
	}
	return orders, total, nil
}

func (s *pgStore) UpdateOrder(ctx context.Context, orderHash common.Hash, eventID string, fn UpdateFunc) (*order.Order, error) {
	var updated *order.Order

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		d := new(dao.OrderDao)
		err := tx.NewSelect().
			Model(d).
			Where("order_hash = ?", orderHash.Hex()).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}

		if eventID != "" {
			seen, err := tx.NewSelect().
				Model((*dao.AppliedEventDao)(nil)).
				Where("event_id = ?", eventID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("failed to check applied event: %w", err)
			}
			if seen {
				return ErrEventAlreadyApplied
			}
		}

		o := toOrder(d)
		if err := fn(o); err != nil {
			return err
		}

		next := toOrderDao(o)
		next.CreatedAt = d.CreatedAt
		_, err = tx.NewUpdate().
			Model(next).
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}

		if eventID != "" {
			_, err = tx.NewInsert().
				Model(&dao.AppliedEventDao{
					EventID:   eventID,
					OrderHash: orderHash.Hex(),
					AppliedAt: time.Now().UTC(),
				}).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to record applied event: %w", err)
			}
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
