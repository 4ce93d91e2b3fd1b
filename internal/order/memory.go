package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. The
// authoritative order record normally lives in the remote backend; this
// store backs tests and single-node deployments without Postgres.
type InMemory struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{orders: make(map[string]*Order)}
}

func (s *InMemory) Insert(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("%w: duplicate order id %s", ErrInvalidInput, o.ID)
	}
	cp := cloneOrder(*o)
	s.orders[o.ID] = &cp
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(*o), nil
}

func (s *InMemory) List(ctx context.Context, f Filter) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.ClientID != "" && o.ClientID != f.ClientID {
			continue
		}
		out = append(out, cloneOrder(*o))
	}
	// Newest first, same as the Postgres store; ids break created-at ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ApplyTransition performs the optimistic-concurrency check and the status
// mutation under one lock: exactly one of two racing attempts against the
// same prior version can succeed.
func (s *InMemory) ApplyTransition(ctx context.Context, id string, expectedVersion uint64, change StatusChange) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Version != expectedVersion {
		return Order{}, fmt.Errorf("%w: have %d, expected %d", ErrStaleVersion, o.Version, expectedVersion)
	}
	if o.Status != change.From {
		return Order{}, fmt.Errorf("%w: status moved to %s", ErrStaleVersion, o.Status)
	}
	o.Status = change.To
	o.Version++
	o.UpdatedAt = change.At
	o.Trail = append(o.Trail, change)
	return cloneOrder(*o), nil
}

func cloneOrder(o Order) Order {
	if len(o.Trail) > 0 {
		trail := make([]StatusChange, len(o.Trail))
		copy(trail, o.Trail)
		o.Trail = trail
	}
	return o
}
