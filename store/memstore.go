package store

import (
	"context"
	"fmt"
	"sync"
)

type memStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemStore creates a Store backed by an in-process map. Nothing survives
// a restart; intended for tests and ephemeral environments.
func NewMemStore() Store {
	return &memStore{values: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = copied
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
