// Package pipeline coordinates extraction, embedding, and dual-store
// persistence for entity indexing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/embed"
	"github.com/efebarandurmaz/vecsync/internal/entityconf"
	"github.com/efebarandurmaz/vecsync/internal/extract"
	"github.com/efebarandurmaz/vecsync/internal/observability"
	"github.com/efebarandurmaz/vecsync/internal/rich"
	"github.com/efebarandurmaz/vecsync/internal/store"
)

// DefaultWorkers bounds batch embedding parallelism when unset.
const DefaultWorkers = 4

// Options configures an Indexer. Registry, Embedder, and VectorStore are
// required; everything else is optional.
type Options struct {
	Registry    *entityconf.Registry
	Embedder    embed.Provider
	VectorStore store.Store
	// RichStore, when set, mirrors indexed content with a derived analysis
	// and enriches search hits. Writes to it are best effort: the vector
	// store stays authoritative.
	RichStore rich.Store
	Logger    *slog.Logger
	Metrics   *observability.IndexingMetrics
	Audit     *observability.AuditLogger
	Workers   int
}

// Indexer keeps the vector store (and, when configured, the rich store)
// synchronized with entity state. At most one live record exists per
// (entityType, entityID); updates write the replacement record before
// deleting the stale one, so a reader may briefly see two records but
// never zero.
type Indexer struct {
	registry *entityconf.Registry
	embedder embed.Provider
	vectors  store.Store
	rich     rich.Store
	log      *slog.Logger
	metrics  *observability.IndexingMetrics
	audit    *observability.AuditLogger
	locks    *keyLock
	workers  int
}

// New validates the options and builds an Indexer.
func New(opts Options) (*Indexer, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("pipeline: registry is required")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("pipeline: embedder is required")
	}
	if opts.VectorStore == nil {
		return nil, fmt.Errorf("pipeline: vector store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Indexer{
		registry: opts.Registry,
		embedder: opts.Embedder,
		vectors:  opts.VectorStore,
		rich:     opts.RichStore,
		log:      logger,
		metrics:  opts.Metrics,
		audit:    opts.Audit,
		locks:    newKeyLock(),
		workers:  workers,
	}, nil
}

// Upsert indexes one entity. It returns the VectorID of the stored record,
// or "" with a nil error when the entity type is not auto-embedded or the
// entity produced no searchable content; both cases are logged at debug
// level and are not errors.
func (ix *Indexer) Upsert(ctx context.Context, entityType string, entity any) (string, error) {
	cfg, err := ix.registry.Config(entityType)
	if err != nil {
		return "", err
	}
	if !cfg.AutoEmbed || !cfg.Indexable {
		ix.log.Debug("entity type not auto-embedded, skipping",
			"entity_type", entityType,
			"auto_embed", cfg.AutoEmbed,
			"indexable", cfg.Indexable)
		return "", nil
	}

	acc := ix.registry.Accessor(entityType)
	res := extract.Extract(entity, cfg, acc)
	if res.EntityID == "" {
		return "", fmt.Errorf("pipeline: entity of type %q has no ID", entityType)
	}
	if res.Content == "" {
		ix.log.Debug("entity produced no searchable content, skipping",
			"entity_type", entityType,
			"entity_id", res.EntityID)
		if ix.metrics != nil {
			ix.metrics.ExtractionSkips.Inc()
		}
		return "", nil
	}

	ctx, span := observability.StartUpsertSpan(ctx, entityType, res.EntityID)
	defer span.End()
	start := time.Now()

	vector, err := ix.embedContent(ctx, res.Content)
	if err != nil {
		observability.RecordError(span, err)
		return "", fmt.Errorf("embed content for %s/%s: %w", entityType, res.EntityID, err)
	}

	unlock := ix.locks.lock(entityType, res.EntityID)
	defer unlock()

	vectorID, err := ix.storeAndReplace(ctx, entityType, res, vector)
	if err != nil {
		observability.RecordError(span, err)
		ix.logAudit(observability.AuditEvent{
			Type:       observability.AuditEventIndex,
			EntityType: entityType,
			EntityID:   res.EntityID,
			Backend:    ix.vectors.Type(),
			Error:      err.Error(),
		})
		return "", err
	}

	ix.mirrorToRich(ctx, entityType, res)

	if ix.metrics != nil {
		ix.metrics.VectorsIndexed.Inc()
		ix.metrics.UpsertDuration.ObserveDuration(time.Since(start))
	}
	ix.logAudit(observability.AuditEvent{
		Type:       observability.AuditEventIndex,
		EntityType: entityType,
		EntityID:   res.EntityID,
		VectorID:   vectorID,
		Backend:    ix.vectors.Type(),
		Success:    true,
	})
	ix.log.Debug("indexed entity",
		"entity_type", entityType,
		"entity_id", res.EntityID,
		"vector_id", vectorID)
	return vectorID, nil
}

// storeAndReplace performs the write-new-then-delete-old protocol for one
// entity. The caller must hold the entity's key lock.
func (ix *Indexer) storeAndReplace(ctx context.Context, entityType string, res extract.Result, vector []float32) (string, error) {
	prev, err := ix.vectors.GetVectorByEntity(ctx, entityType, res.EntityID)
	if err != nil {
		// Proceed without the stale ID; the write still lands, the old
		// record just cannot be reclaimed on this pass.
		ix.log.Warn("previous record lookup failed",
			"entity_type", entityType,
			"entity_id", res.EntityID,
			"error", err)
		prev = nil
	}

	vectorID, err := ix.vectors.StoreVector(ctx, entityType, res.EntityID, res.Content, vector, res.Metadata)
	if err != nil {
		return "", &store.WriteError{Backend: ix.vectors.Type(), Op: "store", Err: err}
	}

	if prev != nil && prev.VectorID != vectorID {
		ix.removeStale(ctx, entityType, res.EntityID, prev.VectorID)
	}
	return vectorID, nil
}

// removeStale deletes a superseded record. Failure leaves a stale record
// behind and is logged, never surfaced: the new record is already live.
func (ix *Indexer) removeStale(ctx context.Context, entityType, entityID, staleID string) {
	removed, err := ix.vectors.RemoveVectorByID(ctx, staleID)
	if err != nil || !removed {
		ix.log.Warn("stale vector record left behind",
			"entity_type", entityType,
			"entity_id", entityID,
			"stale_vector_id", staleID,
			"error", err)
	}
}

// mirrorToRich writes the entity's content and derived analysis to the rich
// store. Best effort: a failure is logged and the vector write stands.
func (ix *Indexer) mirrorToRich(ctx context.Context, entityType string, res extract.Result) {
	if ix.rich == nil {
		return
	}
	now := time.Now().UTC()
	rec := rich.Record{
		EntityType: entityType,
		EntityID:   res.EntityID,
		Content:    res.Content,
		Analysis:   Analyze(res.Content),
		Metadata:   res.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ix.rich.Upsert(ctx, rec); err != nil {
		ix.log.Warn("rich store write failed, vector store remains authoritative",
			"entity_type", entityType,
			"entity_id", res.EntityID,
			"error", err)
	}
}

func (ix *Indexer) embedContent(ctx context.Context, content string) ([]float32, error) {
	embedCtx, embedSpan := observability.StartEmbedSpan(ctx, ix.embedder.Name(), 1)
	defer embedSpan.End()
	start := time.Now()

	vectors, err := ix.embedder.Embed(embedCtx, []string{content})
	if ix.metrics != nil {
		ix.metrics.EmbedDuration.ObserveDuration(time.Since(start))
	}
	if err != nil {
		observability.RecordError(embedSpan, err)
		return nil, err
	}
	if len(vectors) != 1 {
		err := fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
		observability.RecordError(embedSpan, err)
		return nil, err
	}
	if len(vectors[0]) == 0 {
		err := fmt.Errorf("embedder returned an empty vector")
		observability.RecordError(embedSpan, err)
		return nil, err
	}
	return vectors[0], nil
}

// Remove deletes the entity's record from the vector store and, when
// configured, the rich store. Returns false when no record existed.
func (ix *Indexer) Remove(ctx context.Context, entityType, entityID string) (bool, error) {
	ctx, span := observability.StartRemoveSpan(ctx, entityType, entityID)
	defer span.End()

	unlock := ix.locks.lock(entityType, entityID)
	defer unlock()

	removed, err := ix.vectors.RemoveVector(ctx, entityType, entityID)
	if err != nil {
		observability.RecordError(span, err)
		return false, &store.WriteError{Backend: ix.vectors.Type(), Op: "remove", Err: err}
	}

	if ix.rich != nil {
		if _, richErr := ix.rich.Delete(ctx, entityType, entityID); richErr != nil {
			ix.log.Warn("rich store delete failed",
				"entity_type", entityType,
				"entity_id", entityID,
				"error", richErr)
		}
	}

	if removed && ix.metrics != nil {
		ix.metrics.VectorsRemoved.Inc()
	}
	ix.logAudit(observability.AuditEvent{
		Type:       observability.AuditEventRemove,
		EntityType: entityType,
		EntityID:   entityID,
		Backend:    ix.vectors.Type(),
		Success:    true,
		Detail:     fmt.Sprintf("removed=%t", removed),
	})
	return removed, nil
}

// Exists reports whether the entity currently has a live record.
func (ix *Indexer) Exists(ctx context.Context, entityType, entityID string) (bool, error) {
	rec, err := ix.vectors.GetVectorByEntity(ctx, entityType, entityID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Stats summarizes both stores.
type Stats struct {
	Backend      string         `json:"backend"`
	Total        int            `json:"total"`
	ByEntityType map[string]int `json:"by_entity_type"`
	RichEnabled  bool           `json:"rich_enabled"`
	RichCount    int            `json:"rich_count,omitempty"`
}

// Stats counts records per registered entity type plus the overall total.
func (ix *Indexer) Stats(ctx context.Context) (*Stats, error) {
	total, err := ix.vectors.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Backend:      ix.vectors.Type(),
		Total:        total,
		ByEntityType: make(map[string]int),
	}
	for _, entityType := range ix.registry.EntityTypes() {
		n, err := ix.vectors.CountByEntityType(ctx, entityType)
		if err != nil {
			return nil, err
		}
		stats.ByEntityType[entityType] = n
	}
	if ix.rich != nil {
		stats.RichEnabled = true
		n, err := ix.rich.Count(ctx)
		if err != nil {
			ix.log.Warn("rich store count failed", "error", err)
		} else {
			stats.RichCount = n
		}
	}
	return stats, nil
}

// ClearEntityType removes every record of one entity type from the vector
// store and returns how many were removed. Rich store records of that type
// are not swept; they are overwritten on the next index pass.
func (ix *Indexer) ClearEntityType(ctx context.Context, entityType string) (int, error) {
	removed, err := ix.vectors.ClearByEntityType(ctx, entityType)
	if err != nil {
		return 0, err
	}
	ix.logAudit(observability.AuditEvent{
		Type:       observability.AuditEventClear,
		EntityType: entityType,
		Backend:    ix.vectors.Type(),
		Count:      removed,
		Success:    true,
	})
	return removed, nil
}

// ClearAll empties both stores.
func (ix *Indexer) ClearAll(ctx context.Context) error {
	if err := ix.vectors.ClearAll(ctx); err != nil {
		return err
	}
	if ix.rich != nil {
		if err := ix.rich.ClearAll(ctx); err != nil {
			ix.log.Warn("rich store clear failed", "error", err)
		}
	}
	ix.logAudit(observability.AuditEvent{
		Type:    observability.AuditEventClear,
		Backend: ix.vectors.Type(),
		Success: true,
	})
	return nil
}

func (ix *Indexer) logAudit(event observability.AuditEvent) {
	if err := ix.audit.Log(event); err != nil {
		ix.log.Warn("audit log write failed", "error", err)
	}
}
