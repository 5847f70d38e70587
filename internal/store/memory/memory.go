// Package memory provides an in-memory store.Store backed by brute-force
// cosine similarity. It is the development and test backend.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/store"
)

type record struct {
	rec store.Record
	seq uint64 // insertion order, used for recency tie-breaks
}

// Store is a thread-safe in-memory vector store.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*record // vectorID -> record
	byEntity map[string]string  // entityType:entityID -> current vectorID
	nextSeq  uint64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records:  make(map[string]*record),
		byEntity: make(map[string]string),
	}
}

func entityKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}

func (s *Store) StoreVector(ctx context.Context, entityType, entityID, content string, vector []float32, metadata map[string]string) (string, error) {
	if entityType == "" || entityID == "" {
		return "", &store.WriteError{Backend: s.Type(), Op: "store", Err: fmt.Errorf("entity type and id are required")}
	}
	if len(vector) == 0 {
		return "", &store.WriteError{Backend: s.Type(), Op: "store", Err: fmt.Errorf("vector is empty")}
	}

	now := time.Now().UTC()
	rec := store.Record{
		VectorID:   store.NewVectorID(),
		EntityType: entityType,
		EntityID:   entityID,
		Content:    content,
		Embedding:  append([]float32(nil), vector...),
		Metadata:   copyMetadata(metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.nextSeq++
	s.records[rec.VectorID] = &record{rec: rec, seq: s.nextSeq}
	s.byEntity[entityKey(entityType, entityID)] = rec.VectorID
	s.mu.Unlock()

	slog.Debug("stored vector", "backend", s.Type(), "vector_id", rec.VectorID,
		"entity_type", entityType, "entity_id", entityID, "dimensions", len(vector))
	return rec.VectorID, nil
}

func (s *Store) BatchStore(ctx context.Context, records []store.Record) ([]string, error) {
	// Validate everything before the first write so callers get all records
	// stored or none, with the returned IDs aligned to the input order.
	for i, rec := range records {
		if rec.EntityType == "" || rec.EntityID == "" {
			return nil, &store.WriteError{Backend: s.Type(), Op: "batch store",
				Err: fmt.Errorf("record %d: entity type and id are required", i)}
		}
		if len(rec.Embedding) == 0 {
			return nil, &store.WriteError{Backend: s.Type(), Op: "batch store",
				Err: fmt.Errorf("record %d (%s/%s): vector is empty", i, rec.EntityType, rec.EntityID)}
		}
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		id, err := s.StoreVector(ctx, rec.EntityType, rec.EntityID, rec.Content, rec.Embedding, rec.Metadata)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) GetVector(ctx context.Context, vectorID string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[vectorID]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(r.rec)
	return &rec, nil
}

func (s *Store) GetVectorByEntity(ctx context.Context, entityType, entityID string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEntity[entityKey(entityType, entityID)]
	if !ok {
		return nil, nil
	}
	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(r.rec)
	return &rec, nil
}

func (s *Store) RemoveVector(ctx context.Context, entityType, entityID string) (bool, error) {
	key := entityKey(entityType, entityID)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEntity[key]
	if !ok {
		return false, nil
	}
	delete(s.byEntity, key)
	_, existed := s.records[id]
	delete(s.records, id)
	return existed, nil
}

func (s *Store) RemoveVectorByID(ctx context.Context, vectorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[vectorID]
	if !ok {
		return false, nil
	}
	delete(s.records, vectorID)
	// Drop the entity mapping only when it still points at this record.
	key := entityKey(r.rec.EntityType, r.rec.EntityID)
	if s.byEntity[key] == vectorID {
		delete(s.byEntity, key)
	}
	return true, nil
}

func (s *Store) Search(ctx context.Context, query store.SearchQuery) ([]store.SearchHit, error) {
	if len(query.Vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if query.Limit <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", query.Limit)
	}

	type scored struct {
		hit store.SearchHit
		seq uint64
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.records))
	for _, r := range s.records {
		if query.EntityType != "" && r.rec.EntityType != query.EntityType {
			continue
		}
		score := cosineSimilarity(query.Vector, r.rec.Embedding)
		if score < query.Threshold {
			continue
		}
		candidates = append(candidates, scored{
			hit: store.SearchHit{
				VectorID:   r.rec.VectorID,
				EntityType: r.rec.EntityType,
				EntityID:   r.rec.EntityID,
				Content:    r.rec.Content,
				Score:      score,
				Metadata:   copyMetadata(r.rec.Metadata),
			},
			seq: r.seq,
		})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq > candidates[j].seq
	})

	if len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}
	hits := make([]store.SearchHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return hits, nil
}

func (s *Store) CountByEntityType(ctx context.Context, entityType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.rec.EntityType == entityType {
			n++
		}
	}
	return n, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Store) ClearByEntityType(ctx context.Context, entityType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.rec.EntityType != entityType {
			continue
		}
		delete(s.records, id)
		delete(s.byEntity, entityKey(r.rec.EntityType, r.rec.EntityID))
		n++
	}
	return n, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := len(s.records)
	s.records = make(map[string]*record)
	s.byEntity = make(map[string]string)
	slog.Info("cleared in-memory vector store", "removed", count)
	return nil
}

func (s *Store) Type() string { return "memory" }

func (s *Store) Close() error { return nil }

// cosineSimilarity returns a score clamped to [0, 1].
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return float32(sim)
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRecord(r store.Record) store.Record {
	r.Embedding = append([]float32(nil), r.Embedding...)
	r.Metadata = copyMetadata(r.Metadata)
	return r
}

var _ store.Store = (*Store)(nil)
