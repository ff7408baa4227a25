// Package memory provides a process-local key/value backend used for tests
// and for state that should not outlive the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"telecare/internal/persistence/core"
)

var _ core.Backend = (*Store)(nil)

// Store keeps payload copies in a map.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore returns an empty in-memory backend.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), payload...), nil
}

func (s *Store) Write(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), payload...)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func (s *Store) Close() error { return nil }
