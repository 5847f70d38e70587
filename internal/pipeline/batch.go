package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/vecsync/internal/extract"
	"github.com/efebarandurmaz/vecsync/internal/observability"
	"github.com/efebarandurmaz/vecsync/internal/store"
)

// BatchFailure records one entity that could not be prepared for storage.
type BatchFailure struct {
	Index    int
	EntityID string
	Err      error
}

// BatchResult summarizes a batch upsert. Failed items never abort the
// batch; the remaining items are stored.
type BatchResult struct {
	Stored    int
	Skipped   int
	Failures  []BatchFailure
	VectorIDs []string
}

// preparedItem is an entity that survived extraction and embedding and is
// ready for the store phase.
type preparedItem struct {
	index  int
	result extract.Result
	vector []float32
	prevID string
}

// dedupeByEntityID collapses items sharing an entity ID to the last
// occurrence. Keeping both would put two live records for one entity into
// the single store call, and only the later one would ever be cleaned up.
// Superseded occurrences count as skipped. Items must be in input order.
func (ix *Indexer) dedupeByEntityID(entityType string, items []preparedItem, result *BatchResult) []preparedItem {
	last := make(map[string]int, len(items))
	for i, item := range items {
		last[item.result.EntityID] = i
	}
	if len(last) == len(items) {
		return items
	}
	kept := make([]preparedItem, 0, len(last))
	for i, item := range items {
		if last[item.result.EntityID] != i {
			ix.log.Debug("duplicate entity in batch, keeping the later occurrence",
				"entity_type", entityType,
				"entity_id", item.result.EntityID,
				"index", item.index)
			result.Skipped++
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// BatchUpsert indexes a slice of entities of one type. Extraction and
// embedding run with bounded parallelism and per-item failure isolation:
// an item that fails to embed is reported in the result while the rest of
// the batch proceeds. Surviving items are written with a single BatchStore
// call, then the superseded records are deleted.
func (ix *Indexer) BatchUpsert(ctx context.Context, entityType string, entities []any) (*BatchResult, error) {
	cfg, err := ix.registry.Config(entityType)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartBatchSpan(ctx, entityType, len(entities))
	defer span.End()

	result := &BatchResult{}
	if !cfg.AutoEmbed || !cfg.Indexable {
		ix.log.Debug("entity type not auto-embedded, skipping batch",
			"entity_type", entityType,
			"items", len(entities))
		result.Skipped = len(entities)
		return result, nil
	}
	if len(entities) == 0 {
		return result, nil
	}

	acc := ix.registry.Accessor(entityType)

	// Phase 1: extract and embed in parallel. Goroutines stash failures
	// instead of returning errors so one bad item cannot cancel the group.
	var (
		mu       sync.Mutex
		prepared []preparedItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for i, entity := range entities {
		g.Go(func() error {
			res := extract.Extract(entity, cfg, acc)
			if res.EntityID == "" {
				mu.Lock()
				result.Failures = append(result.Failures, BatchFailure{
					Index: i,
					Err:   fmt.Errorf("entity of type %q has no ID", entityType),
				})
				mu.Unlock()
				return nil
			}
			if res.Content == "" {
				ix.log.Debug("entity produced no searchable content, skipping",
					"entity_type", entityType,
					"entity_id", res.EntityID)
				if ix.metrics != nil {
					ix.metrics.ExtractionSkips.Inc()
				}
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			vector, err := ix.embedContent(gctx, res.Content)
			if err != nil {
				mu.Lock()
				result.Failures = append(result.Failures, BatchFailure{
					Index:    i,
					EntityID: res.EntityID,
					Err:      fmt.Errorf("embed content: %w", err),
				})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			prepared = append(prepared, preparedItem{index: i, result: res, vector: vector})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	if ix.metrics != nil {
		for range result.Failures {
			ix.metrics.BatchItemFailures.Inc()
		}
	}

	if len(prepared) == 0 {
		observability.RecordBatchResults(span, 0, len(result.Failures), result.Skipped)
		return result, nil
	}

	// Goroutines append in completion order; restore input order so a
	// duplicate entity ID resolves to the later item in the caller's slice.
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].index < prepared[j].index })
	prepared = ix.dedupeByEntityID(entityType, prepared, result)

	// Phase 2: store under the affected key locks. Previous record IDs are
	// captured first so the stale records can be reclaimed after the write.
	ids := make([]string, len(prepared))
	for i, item := range prepared {
		ids[i] = item.result.EntityID
	}
	unlock := ix.locks.lockMany(entityType, ids)
	defer unlock()

	for i := range prepared {
		prev, err := ix.vectors.GetVectorByEntity(ctx, entityType, prepared[i].result.EntityID)
		if err != nil {
			ix.log.Warn("previous record lookup failed",
				"entity_type", entityType,
				"entity_id", prepared[i].result.EntityID,
				"error", err)
			continue
		}
		if prev != nil {
			prepared[i].prevID = prev.VectorID
		}
	}

	now := time.Now().UTC()
	records := make([]store.Record, len(prepared))
	for i, item := range prepared {
		records[i] = store.Record{
			EntityType: entityType,
			EntityID:   item.result.EntityID,
			Content:    item.result.Content,
			Embedding:  item.vector,
			Metadata:   item.result.Metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	vectorIDs, err := ix.vectors.BatchStore(ctx, records)
	if err != nil {
		observability.RecordError(span, err)
		ix.logAudit(observability.AuditEvent{
			Type:       observability.AuditEventBatchIndex,
			EntityType: entityType,
			Backend:    ix.vectors.Type(),
			Count:      len(records),
			Error:      err.Error(),
		})
		return nil, &store.WriteError{Backend: ix.vectors.Type(), Op: "batch store", Err: err}
	}
	result.Stored = len(vectorIDs)
	result.VectorIDs = vectorIDs

	// Reclaiming a superseded record is only safe once its replacement is
	// confirmed written. A backend returning fewer IDs than records would
	// leave that unknowable, so keep the old records instead.
	if len(vectorIDs) == len(prepared) {
		for _, item := range prepared {
			if item.prevID != "" {
				ix.removeStale(ctx, entityType, item.result.EntityID, item.prevID)
			}
		}
	} else {
		ix.log.Warn("batch store returned a mismatched id count, previous records left in place",
			"entity_type", entityType,
			"records", len(prepared),
			"ids", len(vectorIDs))
	}

	for _, item := range prepared {
		ix.mirrorToRich(ctx, entityType, item.result)
	}

	if ix.metrics != nil {
		ix.metrics.VectorsIndexed.Add(float64(result.Stored))
	}
	observability.RecordBatchResults(span, result.Stored, len(result.Failures), result.Skipped)
	ix.logAudit(observability.AuditEvent{
		Type:       observability.AuditEventBatchIndex,
		EntityType: entityType,
		Backend:    ix.vectors.Type(),
		Count:      result.Stored,
		Success:    true,
		Detail:     fmt.Sprintf("failed=%d skipped=%d", len(result.Failures), result.Skipped),
	})
	ix.log.Info("batch indexed",
		"entity_type", entityType,
		"stored", result.Stored,
		"failed", len(result.Failures),
		"skipped", result.Skipped)
	return result, nil
}
