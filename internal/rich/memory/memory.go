// Package memory provides an in-memory rich.Store for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/rich"
)

// Store is a thread-safe in-memory rich record store.
type Store struct {
	mu      sync.RWMutex
	records map[rich.Key]rich.Record
}

// New creates an empty in-memory rich store.
func New() *Store {
	return &Store{records: make(map[rich.Key]rich.Record)}
}

func (s *Store) Upsert(ctx context.Context, rec rich.Record) error {
	key := rich.Key{EntityType: rec.EntityType, EntityID: rec.EntityID}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[key]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[key] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, entityType, entityID string) (*rich.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[rich.Key{EntityType: entityType, EntityID: entityID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) GetMany(ctx context.Context, keys []rich.Key) (map[rich.Key]rich.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[rich.Key]rich.Record, len(keys))
	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			out[key] = rec
		}
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, entityType, entityID string) (bool, error) {
	key := rich.Key{EntityType: entityType, EntityID: entityID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[rich.Key]rich.Record)
	return nil
}

func (s *Store) Close(ctx context.Context) error { return nil }

var _ rich.Store = (*Store)(nil)
