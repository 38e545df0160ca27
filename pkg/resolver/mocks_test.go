package resolver

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// MockRegistry is a mock implementation of Registry
type MockRegistry struct {
	GetFunc             func(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	GetActiveFunc       func(ctx context.Context, q registry.ActiveQuery) (*registry.Page, error)
	RecordExecutionFunc func(ctx context.Context, e *registry.Execution) (*order.Order, error)
}

func (m *MockRegistry) Get(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderHash)
	}
	return nil, registry.ErrOrderNotFound
}

func (m *MockRegistry) GetActive(ctx context.Context, q registry.ActiveQuery) (*registry.Page, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, q)
	}
	return &registry.Page{Items: []*order.Order{}}, nil
}

func (m *MockRegistry) RecordExecution(ctx context.Context, e *registry.Execution) (*order.Order, error) {
	if m.RecordExecutionFunc != nil {
		return m.RecordExecutionFunc(ctx, e)
	}
	return &order.Order{OrderHash: e.OrderHash}, nil
}
