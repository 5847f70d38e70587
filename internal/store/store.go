// Package store defines vector record storage and similarity search.
package store

import (
	"context"
	"fmt"
	"time"
)

// Record is the unit of vector storage. Records are owned by the store and
// never mutated in place: every content change produces a new VectorID.
type Record struct {
	VectorID   string
	EntityType string
	EntityID   string
	Content    string
	Embedding  []float32
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SearchQuery describes a similarity search.
type SearchQuery struct {
	Vector     []float32
	EntityType string  // optional filter; empty matches all types
	Limit      int     // must be > 0
	Threshold  float32 // minimum score, inclusive
}

// SearchHit is a single match from a similarity search. Enrichment fields
// are populated by the pipeline when a rich store is configured.
type SearchHit struct {
	VectorID   string
	EntityType string
	EntityID   string
	Content    string
	Score      float32
	Metadata   map[string]string

	// Rich-store enrichment, best effort.
	Analysis  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Enriched  bool
}

// Stats summarizes a store's contents.
type Stats struct {
	Count       int
	BackendType string
}

// Store provides vector persistence and similarity search. Implementations
// must be safe for concurrent use.
type Store interface {
	// StoreVector writes a new record and returns its VectorID. It always
	// creates a new record, even when one already exists for the entity.
	StoreVector(ctx context.Context, entityType, entityID, content string, vector []float32, metadata map[string]string) (string, error)
	// BatchStore writes records in one call and returns one VectorID per
	// input record, in input order. An implementation must not silently
	// drop records: it either writes the whole batch or returns an error.
	// Callers rely on the alignment to know which writes landed before
	// reclaiming superseded records.
	BatchStore(ctx context.Context, records []Record) ([]string, error)
	// GetVector returns the record with the given VectorID, or nil.
	GetVector(ctx context.Context, vectorID string) (*Record, error)
	// GetVectorByEntity returns the current record for the entity, or nil.
	GetVectorByEntity(ctx context.Context, entityType, entityID string) (*Record, error)
	// RemoveVector deletes the current record for the entity. Returns
	// false when no record was found; that is not an error.
	RemoveVector(ctx context.Context, entityType, entityID string) (bool, error)
	// RemoveVectorByID deletes one record by VectorID.
	RemoveVectorByID(ctx context.Context, vectorID string) (bool, error)
	// Search returns hits ordered by descending score, ties broken by
	// insertion recency. Hits below the threshold are excluded.
	Search(ctx context.Context, query SearchQuery) ([]SearchHit, error)
	// CountByEntityType returns the number of records for one entity type.
	CountByEntityType(ctx context.Context, entityType string) (int, error)
	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
	// ClearByEntityType removes all records for one entity type and
	// returns how many were removed.
	ClearByEntityType(ctx context.Context, entityType string) (int, error)
	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
	// Type returns the backend identifier (e.g. "memory", "qdrant").
	Type() string
	// Close releases resources.
	Close() error
}

// WriteError reports a rejected store write. The failing item persists no
// partial state.
type WriteError struct {
	Backend string
	Op      string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("vector store %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
