package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

type memoryStore struct {
	mu      sync.Mutex
	orders  map[common.Hash]*order.Order
	applied map[string]struct{}
}

// NewMemoryStore creates an in-memory Store. Snapshots handed out are copies.
func NewMemoryStore() Store {
	return &memoryStore{
		orders:  make(map[common.Hash]*order.Order),
		applied: make(map[string]struct{}),
	}
}

func (s *memoryStore) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.OrderHash]; ok {
		return ErrDuplicateOrder
	}
	s.orders[o.OrderHash] = o.Clone()
	return nil
}

func (s *memoryStore) GetOrder(_ context.Context, orderHash common.Hash) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderHash]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *memoryStore) ListOrders(_ context.Context, q ListQuery) ([]*order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[order.Status]bool, len(q.Statuses))
	for _, st := range q.Statuses {
		want[st] = true
	}

	var matched []*order.Order
	for _, o := range s.orders {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].OrderHash.Hex() < matched[j].OrderHash.Hex()
	})

	total := len(matched)
	if q.Offset >= total {
		return []*order.Order{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page := make([]*order.Order, 0, end-q.Offset)
	for _, o := range matched[q.Offset:end] {
		page = append(page, o.Clone())
	}
	return page, total, nil
}

func (s *memoryStore) UpdateOrder(_ context.Context, orderHash common.Hash, eventID string, fn UpdateFunc) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderHash]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if eventID != "" {
		if _, seen := s.applied[eventID]; seen {
			return nil, ErrEventAlreadyApplied
		}
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.orders[orderHash] = next
	if eventID != "" {
		s.applied[eventID] = struct{}{}
	}
	return next.Clone(), nil
}
