// Package memory contains an in-memory scrape data store for development
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

type record struct {
	payload   scrape.Object
	scrapedAt time.Time
}

// Store implements scrape.DataStore in memory.
type Store struct {
	mu    sync.RWMutex
	data  map[string]record
	ops   []scrape.Operation
	clock scrape.Clock
}

// New creates a memory Store.
func New(clock scrape.Clock) *Store {
	return &Store{data: make(map[string]record), clock: clock}
}

func key(matchID string, dataType scrape.DataType) string {
	return matchID + "/" + string(dataType)
}

// UpsertScrapedData stores the merged payload for (matchID, dataType).
func (s *Store) UpsertScrapedData(_ context.Context, matchID string, dataType scrape.DataType, payload scrape.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key(matchID, dataType)] = record{payload: payload.Clone(), scrapedAt: s.clock.Now()}
	return nil
}

// ReadExistingScrapedData returns the stored payload or nil when absent.
func (s *Store) ReadExistingScrapedData(_ context.Context, matchID string, dataType scrape.DataType) (scrape.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key(matchID, dataType)]
	if !ok {
		return nil, nil
	}
	return rec.payload.Clone(), nil
}

// LastScrapedAt returns when (matchID, dataType) was last stored.
func (s *Store) LastScrapedAt(_ context.Context, matchID string, dataType scrape.DataType) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key(matchID, dataType)]
	if !ok {
		return time.Time{}, nil
	}
	return rec.scrapedAt, nil
}

// LogOperation appends one operation-outcome record.
func (s *Store) LogOperation(_ context.Context, op scrape.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op.At.IsZero() {
		op.At = s.clock.Now()
	}
	s.ops = append(s.ops, op)
	return nil
}

// Operations returns the recorded operation log.
func (s *Store) Operations() []scrape.Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// SetLastScrapedAt backdates an entry, used by freshness tests.
func (s *Store) SetLastScrapedAt(matchID string, dataType scrape.DataType, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.data[key(matchID, dataType)]
	rec.scrapedAt = at
	s.data[key(matchID, dataType)] = rec
}
