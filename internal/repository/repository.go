package repository

import (
	"context"
	"sync"
)

// KeyValueStore is the durable string store backing the seen-id record.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// MemoryStore is a non-durable KeyValueStore, used when persistence is
// disabled and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ KeyValueStore = (*MemoryStore)(nil)
	_ KeyValueStore = (*SQLiteDB)(nil)
	_ KeyValueStore = (*PebbleStore)(nil)
)
