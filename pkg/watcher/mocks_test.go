package watcher

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/publisher"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

// MockRegistry is a mock implementation of Registry
type MockRegistry struct {
	GetFunc             func(ctx context.Context, orderHash common.Hash) (*order.Order, error)
	GetActiveFunc       func(ctx context.Context, q registry.ActiveQuery) (*registry.Page, error)
	ApplyTransitionFunc func(ctx context.Context, t *registry.Transition) (*order.Order, error)
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
	return &registry.Page{}, nil
}

func (m *MockRegistry) ApplyTransition(ctx context.Context, t *registry.Transition) (*order.Order, error) {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(ctx, t)
	}
	return &order.Order{OrderHash: t.OrderHash, Status: t.To}, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*publisher.TransitionEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev *publisher.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) Close() {}

func (r *recordingPublisher) statuses() []order.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Status, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.To)
	}
	return out
}

// MockPublisher is a testify mock of publisher.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev *publisher.TransitionEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}
