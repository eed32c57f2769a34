package repositories

import (
	"context"
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by a KVStore when nothing is stored under a key.
var ErrKeyNotFound = errors.New("key not found")

// KVStore is the raw scoped key-value capability behind the profile store.
// Scope is the device the values belong to.
type KVStore interface {
	Get(ctx context.Context, scope, key string) (string, error)
	Set(ctx context.Context, scope, key, value string) error
	Ping(ctx context.Context) error
}

// MemoryKVStore keeps values in process memory. Used for development and tests.
type MemoryKVStore struct {
	values map[string]map[string]string
	mutex  sync.RWMutex
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{values: make(map[string]map[string]string)}
}

func (m *MemoryKVStore) Get(ctx context.Context, scope, key string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	v, ok := m.values[scope][key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryKVStore) Set(ctx context.Context, scope, key, value string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.values[scope] == nil {
		m.values[scope] = make(map[string]string)
	}
	m.values[scope][key] = value
	return nil
}

func (m *MemoryKVStore) Ping(ctx context.Context) error {
	return nil
}
