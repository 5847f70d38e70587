// Package temporal provides the reindex workflow and its activities.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

const defaultChunkSize = 100

// ReindexInput holds the workflow parameters.
type ReindexInput struct {
	// EntityType selects which entity-type configuration to index under.
	EntityType string
	// InputPath is a JSON file holding an array of entity objects.
	InputPath string
	// ChunkSize bounds how many entities one activity indexes (default 100).
	ChunkSize int
	// ClearFirst removes all existing records of the entity type before
	// indexing, for a full rebuild rather than an incremental refresh.
	ClearFirst bool
}

// ReindexOutput holds the workflow result.
type ReindexOutput struct {
	Total   int
	Stored  int
	Skipped int
	Failed  int
	Cleared int
	Errors  []string
}

// ReindexWorkflow rebuilds the index for one entity type from a file of
// entities. Entities are indexed in chunks so a large dataset does not hit
// activity timeouts and chunk progress survives worker restarts.
func ReindexWorkflow(ctx workflow.Context, input ReindexInput) (*ReindexOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	chunkSize := input.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	output := &ReindexOutput{}

	if input.ClearFirst {
		var cleared int
		if err := workflow.ExecuteActivity(ctx, ClearEntityTypeActivity, input.EntityType).Get(ctx, &cleared); err != nil {
			return nil, fmt.Errorf("clear entity type: %w", err)
		}
		output.Cleared = cleared
	}

	var total int
	if err := workflow.ExecuteActivity(ctx, CountEntitiesActivity, input).Get(ctx, &total); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	output.Total = total

	for offset := 0; offset < total; offset += chunkSize {
		var chunk ChunkResult
		if err := workflow.ExecuteActivity(ctx, IndexChunkActivity, input, offset, chunkSize).Get(ctx, &chunk); err != nil {
			return nil, fmt.Errorf("index chunk at %d: %w", offset, err)
		}
		output.Stored += chunk.Stored
		output.Skipped += chunk.Skipped
		output.Failed += chunk.Failed
		output.Errors = append(output.Errors, chunk.Errors...)
	}

	// The audit trail is best effort; a failed write never fails the run.
	if err := workflow.ExecuteActivity(ctx, RecordReindexResultActivity, input, *output).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("reindex audit write failed", "error", err)
	}

	return output, nil
}
