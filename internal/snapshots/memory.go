package snapshots

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in-memory for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory snapshot store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// PutSnapshot stores the HTML and returns a pseudo URI.
func (s *MemoryStore) PutSnapshot(_ context.Context, key string, html []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), html...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Snapshot returns a stored snapshot.
func (s *MemoryStore) Snapshot(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	return b, ok
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
