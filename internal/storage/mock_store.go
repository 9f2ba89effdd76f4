package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockStore is an in-memory ObjectStore for tests. It records operations
// so tests can assert on pipeline behavior without a filesystem.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Puts records every key written, in order.
	Puts []string
	// Deletes records every key deleted, in order.
	Deletes []string

	// FailPut, when set, makes Put return the error for matching keys.
	FailPut func(key string) error

	notify func(key string)
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{objects: make(map[string][]byte)}
}

// OnPut registers the object-created callback.
func (m *MockStore) OnPut(fn func(key string)) { m.notify = fn }

func (m *MockStore) Put(ctx context.Context, key string, data []byte) error {
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.Puts = append(m.Puts, key)
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(key)
	}
	return nil
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound{Key: key}
	}
	return append([]byte(nil), data...), nil
}

func (m *MockStore) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	data, ok := m.objects[src]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound{Key: src}
	}
	m.objects[dst] = append([]byte(nil), data...)
	m.Puts = append(m.Puts, dst)
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(dst)
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound{Key: key}
	}
	delete(m.objects, key)
	m.Deletes = append(m.Deletes, key)
	return nil
}

func (m *MockStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MockStore) Close() error { return nil }

// Len returns the number of stored objects.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
