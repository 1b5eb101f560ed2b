package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	spot   Spot
	ok     bool
	closed bool
}

func newMemory() *memoryStore { return &memoryStore{} }

func (m *memoryStore) GetSpot(ctx context.Context) (Spot, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Spot{}, ErrClosed
	}
	if !m.ok {
		return Spot{}, ErrNotConfigured
	}
	return m.spot, nil
}

func (m *memoryStore) PutSpot(ctx context.Context, s Spot) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.spot, m.ok = s, true
	return nil
}

func (m *memoryStore) ClearSpot(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.spot, m.ok = Spot{}, false
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
