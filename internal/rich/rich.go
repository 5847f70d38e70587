// Package rich defines the optional secondary record store used to enrich
// vector search hits with full content, derived analysis, and timestamps.
package rich

import (
	"context"
	"time"
)

// Record mirrors an indexed entity's extracted content and analysis, keyed
// by (EntityType, EntityID). The vector store stays authoritative for
// search; this store only serves enrichment.
type Record struct {
	EntityType string
	EntityID   string
	Content    string
	Analysis   string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key identifies a record.
type Key struct {
	EntityType string
	EntityID   string
}

// Store provides keyed persistence for rich records. Implementations must
// be safe for concurrent use.
type Store interface {
	// Upsert writes or replaces the record for its key.
	Upsert(ctx context.Context, rec Record) error
	// Get returns the record for the key, or nil.
	Get(ctx context.Context, entityType, entityID string) (*Record, error)
	// GetMany returns the records found for the keys; missing keys are
	// simply absent from the result.
	GetMany(ctx context.Context, keys []Key) (map[Key]Record, error)
	// Delete removes the record for the key. Returns false when absent.
	Delete(ctx context.Context, entityType, entityID string) (bool, error)
	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
	// Close releases resources.
	Close(ctx context.Context) error
}
