package actors

import (
	"context"
	"sync"
)

// Memory implements Store in process memory.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string]*Record)}
}

func (m *Memory) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *Memory) Find(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) FindByCode(ctx context.Context, kind Kind, code string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.recs {
		if rec.Kind == kind && rec.Code == code {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListByKind(ctx context.Context, kind Kind) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for _, rec := range m.recs {
		if rec.Kind == kind {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}
