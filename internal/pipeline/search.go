package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/observability"
	"github.com/efebarandurmaz/vecsync/internal/rich"
	"github.com/efebarandurmaz/vecsync/internal/store"
)

// DefaultSearchLimit applies when a request leaves Limit unset.
const DefaultSearchLimit = 10

// SearchRequest describes a natural-language similarity search.
type SearchRequest struct {
	Query      string
	EntityType string  // optional filter; empty searches all types
	Limit      int     // defaults to DefaultSearchLimit
	Threshold  float32 // minimum score, inclusive
}

// Search embeds the query, runs a similarity search, and enriches the hits
// from the rich store when one is configured. Enrichment is best effort: a
// rich store failure degrades the results to vector-store fields only and
// never fails the search.
func (ix *Indexer) Search(ctx context.Context, req SearchRequest) ([]store.SearchHit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("pipeline: search query is empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ctx, span := observability.StartSearchSpan(ctx, req.EntityType, limit)
	defer span.End()
	start := time.Now()

	vector, err := ix.embedContent(ctx, req.Query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	hits, err := ix.vectors.Search(ctx, store.SearchQuery{
		Vector:     vector,
		EntityType: req.EntityType,
		Limit:      limit,
		Threshold:  req.Threshold,
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	enriched := ix.enrich(ctx, hits)

	if ix.metrics != nil {
		ix.metrics.Searches.Inc()
		ix.metrics.SearchDuration.ObserveDuration(time.Since(start))
	}
	observability.RecordSearchResults(span, len(hits), enriched, time.Since(start))
	ix.logAudit(observability.AuditEvent{
		Type:       observability.AuditEventSearch,
		EntityType: req.EntityType,
		Backend:    ix.vectors.Type(),
		Count:      len(hits),
		Success:    true,
	})
	return hits, nil
}

// enrich fills analysis and timestamps on hits from the rich store,
// preserving hit order and scores. Returns how many hits were enriched.
func (ix *Indexer) enrich(ctx context.Context, hits []store.SearchHit) int {
	if ix.rich == nil || len(hits) == 0 {
		return 0
	}

	keys := make([]rich.Key, len(hits))
	for i, hit := range hits {
		keys[i] = rich.Key{EntityType: hit.EntityType, EntityID: hit.EntityID}
	}
	records, err := ix.rich.GetMany(ctx, keys)
	if err != nil {
		ix.log.Warn("rich store lookup failed, returning unenriched hits", "error", err)
		return 0
	}

	enriched := 0
	for i := range hits {
		rec, ok := records[rich.Key{EntityType: hits[i].EntityType, EntityID: hits[i].EntityID}]
		if !ok {
			continue
		}
		hits[i].Analysis = rec.Analysis
		hits[i].CreatedAt = rec.CreatedAt
		hits[i].UpdatedAt = rec.UpdatedAt
		hits[i].Enriched = true
		enriched++
	}
	return enriched
}
