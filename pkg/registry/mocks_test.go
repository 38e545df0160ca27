package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// MockService is a mock implementation of Service
type MockService struct {
	SubmitFunc          func(ctx context.Context, o *order.Order) (common.Hash, error)
	GetFunc             func(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	GetActiveFunc       func(ctx context.Context, q ActiveQuery) (*Page, error)
	ApplyTransitionFunc func(ctx context.Context, t *Transition) (*order.Order, error)
	RecordExecutionFunc func(ctx context.Context, e *Execution) (*order.Order, error)
	SubmitSecretFunc    func(ctx context.Context, orderHash common.Hash, secret string) (*order.SecretEntry, error)
	GetSecretFunc       func(ctx context.Context, orderHash common.Hash) ([]order.SecretEntry, error)
}

func (m *MockService) Submit(ctx context.Context, o *order.Order) (common.Hash, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, o)
	}
	return common.Hash{}, nil
}

func (m *MockService) Get(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderHash)
	}
	return nil, ErrOrderNotFound
}

func (m *MockService) GetActive(ctx context.Context, q ActiveQuery) (*Page, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, q)
	}
	return &Page{Items: []*order.Order{}}, nil
}

func (m *MockService) ApplyTransition(ctx context.Context, t *Transition) (*order.Order, error) {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(ctx, t)
	}
	return &order.Order{OrderHash: t.OrderHash, Status: t.To}, nil
}

func (m *MockService) RecordExecution(ctx context.Context, e *Execution) (*order.Order, error) {
	if m.RecordExecutionFunc != nil {
		return m.RecordExecutionFunc(ctx, e)
	}
	return &order.Order{OrderHash: e.OrderHash}, nil
}

func (m *MockService) SubmitSecret(ctx context.Context, orderHash common.Hash, secret string) (*order.SecretEntry, error) {
	if m.SubmitSecretFunc != nil {
		return m.SubmitSecretFunc(ctx, orderHash, secret)
	}
	return &order.SecretEntry{}, nil
}

func (m *MockService) GetSecret(ctx context.Context, orderHash common.Hash) ([]order.SecretEntry, error) {
	if m.GetSecretFunc != nil {
		return m.GetSecretFunc(ctx, orderHash)
	}
	return []order.SecretEntry{}, nil
}
