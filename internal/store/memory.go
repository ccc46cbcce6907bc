package store

import (
	"context"
	"sync"
)

// MemoryBackend is a non-durable Backend for tests and dry runs.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte

	// SetErr, when non-nil, is returned by every Set call
	SetErr error
	// Sets counts successful Set calls
	Sets int
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = append([]byte(nil), value...)
	m.Sets++
	return nil
}

// FailWrites makes subsequent Set calls return err; nil restores writes.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetErr = err
}

func (m *MemoryBackend) Close() error { return nil }
