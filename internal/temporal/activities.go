package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/efebarandurmaz/vecsync/internal/observability"
	"github.com/efebarandurmaz/vecsync/internal/pipeline"
)

// ChunkResult is the serializable result of indexing one chunk.
type ChunkResult struct {
	Stored  int
	Skipped int
	Failed  int
	Errors  []string
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Indexer *pipeline.Indexer
	Audit   *observability.AuditLogger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// loadEntities reads a JSON array of entity objects from a file.
func loadEntities(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read entity file: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse entity file %s: %w", path, err)
	}
	entities := make([]any, len(raw))
	for i, e := range raw {
		entities[i] = e
	}
	return entities, nil
}

// CountEntitiesActivity returns the number of entities in the input file
// and marks the start of the reindex run in the audit log.
func CountEntitiesActivity(ctx context.Context, input ReindexInput) (int, error) {
	entities, err := loadEntities(input.InputPath)
	if err != nil {
		return 0, err
	}
	if err := deps.Audit.Log(observability.AuditEvent{
		Type:       observability.AuditEventReindexStart,
		EntityType: input.EntityType,
		Count:      len(entities),
		Success:    true,
		Detail:     fmt.Sprintf("input=%s clear_first=%t", input.InputPath, input.ClearFirst),
	}); err != nil {
		return 0, fmt.Errorf("audit reindex start: %w", err)
	}
	return len(entities), nil
}

// RecordReindexResultActivity writes the reindex outcome to the audit log.
func RecordReindexResultActivity(ctx context.Context, input ReindexInput, output ReindexOutput) error {
	return deps.Audit.Log(observability.AuditEvent{
		Type:       observability.AuditEventReindexEnd,
		EntityType: input.EntityType,
		Count:      output.Stored,
		Success:    output.Failed == 0,
		Detail: fmt.Sprintf("total=%d skipped=%d failed=%d cleared=%d",
			output.Total, output.Skipped, output.Failed, output.Cleared),
	})
}

// ClearEntityTypeActivity removes all records for the entity type and
// returns how many were removed.
func ClearEntityTypeActivity(ctx context.Context, entityType string) (int, error) {
	return deps.Indexer.ClearEntityType(ctx, entityType)
}

// IndexChunkActivity indexes entities[offset:offset+limit] from the input
// file. Item failures are reported in the result, not as activity errors,
// so one bad entity does not fail (and retry) the whole chunk.
func IndexChunkActivity(ctx context.Context, input ReindexInput, offset, limit int) (ChunkResult, error) {
	entities, err := loadEntities(input.InputPath)
	if err != nil {
		return ChunkResult{}, err
	}
	if offset >= len(entities) {
		return ChunkResult{}, nil
	}
	end := offset + limit
	if end > len(entities) {
		end = len(entities)
	}

	batch, err := deps.Indexer.BatchUpsert(ctx, input.EntityType, entities[offset:end])
	if err != nil {
		return ChunkResult{}, err
	}

	result := ChunkResult{
		Stored:  batch.Stored,
		Skipped: batch.Skipped,
		Failed:  len(batch.Failures),
	}
	for _, f := range batch.Failures {
		result.Errors = append(result.Errors, fmt.Sprintf("entity %d (%s): %v", offset+f.Index, f.EntityID, f.Err))
	}
	return result, nil
}
