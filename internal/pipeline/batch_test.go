package pipeline

import (
	"context"
	"fmt"
	"testing"
)

func TestBatchUpsert_StoresAll(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	entities := []any{
		product("p1", "cordless drill"),
		product("p2", "impact driver"),
		product("p3", "circular saw"),
	}
	result, err := env.indexer.BatchUpsert(ctx, "product", entities)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 3 {
		t.Errorf("Stored = %d, want 3", result.Stored)
	}
	if len(result.VectorIDs) != 3 {
		t.Errorf("VectorIDs = %d, want 3", len(result.VectorIDs))
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %v, want none", result.Failures)
	}
	if n, _ := env.vectors.Count(ctx); n != 3 {
		t.Errorf("store holds %d records, want 3", n)
	}
	if n, _ := env.rich.Count(ctx); n != 3 {
		t.Errorf("rich store holds %d records, want 3", n)
	}
}

func TestBatchUpsert_FailureIsolation(t *testing.T) {
	env := newTestEnv(t, false)
	env.embedder.fail = map[string]error{"impact driver": fmt.Errorf("rate limited")}
	ctx := context.Background()

	entities := []any{
		product("p1", "cordless drill"),
		product("p2", "impact driver"),
		product("p3", "circular saw"),
	}
	result, err := env.indexer.BatchUpsert(ctx, "product", entities)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 2 {
		t.Errorf("Stored = %d, want 2", result.Stored)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(result.Failures))
	}
	if result.Failures[0].Index != 1 || result.Failures[0].EntityID != "p2" {
		t.Errorf("failure = %+v, want index 1 entity p2", result.Failures[0])
	}

	for _, id := range []string{"p1", "p3"} {
		ok, err := env.indexer.Exists(ctx, "product", id)
		if err != nil {
			t.Fatalf("Exists %s: %v", id, err)
		}
		if !ok {
			t.Errorf("entity %s missing after batch", id)
		}
	}
	ok, err := env.indexer.Exists(ctx, "product", "p2")
	if err != nil {
		t.Fatalf("Exists p2: %v", err)
	}
	if ok {
		t.Error("failed entity p2 was stored")
	}
}

func TestBatchUpsert_MissingIDReported(t *testing.T) {
	env := newTestEnv(t, false)

	entities := []any{
		product("p1", "cordless drill"),
		map[string]any{"name": "orphan"},
	}
	result, err := env.indexer.BatchUpsert(context.Background(), "product", entities)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 1 {
		t.Errorf("Stored = %d, want 1", result.Stored)
	}
	if len(result.Failures) != 1 || result.Failures[0].Index != 1 {
		t.Fatalf("Failures = %+v, want index 1", result.Failures)
	}
}

func TestBatchUpsert_SkipsEmptyContent(t *testing.T) {
	env := newTestEnv(t, false)

	entities := []any{
		product("p1", "cordless drill"),
		map[string]any{"id": "p2"},
	}
	result, err := env.indexer.BatchUpsert(context.Background(), "product", entities)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 1 {
		t.Errorf("Stored = %d, want 1", result.Stored)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %v, want none", result.Failures)
	}
}

func TestBatchUpsert_SkipsNonEmbeddedType(t *testing.T) {
	env := newTestEnv(t, false)

	entities := []any{
		map[string]any{"id": "a1", "action": "login"},
		map[string]any{"id": "a2", "action": "logout"},
	}
	result, err := env.indexer.BatchUpsert(context.Background(), "audit_entry", entities)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
	if result.Stored != 0 {
		t.Errorf("Stored = %d, want 0", result.Stored)
	}
}

func TestBatchUpsert_Empty(t *testing.T) {
	env := newTestEnv(t, false)

	result, err := env.indexer.BatchUpsert(context.Background(), "product", nil)
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 0 || result.Skipped != 0 || len(result.Failures) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestBatchUpsert_ReplacesExistingRecords(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	firstID, err := env.indexer.Upsert(ctx, "product", product("p1", "cordless drill"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := env.indexer.BatchUpsert(ctx, "product", []any{
		product("p1", "brushless drill"),
		product("p2", "impact driver"),
	})
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 2 {
		t.Fatalf("Stored = %d, want 2", result.Stored)
	}

	if n, _ := env.vectors.Count(ctx); n != 2 {
		t.Errorf("store holds %d records, want 2", n)
	}

	current, err := env.vectors.GetVectorByEntity(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("GetVectorByEntity: %v", err)
	}
	if current == nil {
		t.Fatal("p1 has no live record")
	}
	if current.VectorID == firstID {
		t.Error("p1 still points at the superseded record")
	}
	if current.Content != "brushless drill" {
		t.Errorf("p1 content = %q, want updated content", current.Content)
	}

	stale, err := env.vectors.GetVector(ctx, firstID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if stale != nil {
		t.Error("superseded record still present after batch update")
	}
}

func TestBatchUpsert_EmptyEmbeddingKeepsPreviousRecord(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.indexer.Upsert(ctx, "product", product("p1", "cordless drill")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	env.embedder.vectors = map[string][]float32{"brushless drill": {}}
	result, err := env.indexer.BatchUpsert(ctx, "product", []any{
		product("p1", "brushless drill"),
	})
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 0 {
		t.Errorf("Stored = %d, want 0", result.Stored)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(result.Failures))
	}
	if result.Failures[0].EntityID != "p1" {
		t.Errorf("failure = %+v, want entity p1", result.Failures[0])
	}

	// The failed replacement must not take down the live record.
	ok, err := env.indexer.Exists(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("p1 lost its record after a failed batch update")
	}
	current, err := env.vectors.GetVectorByEntity(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("GetVectorByEntity: %v", err)
	}
	if current == nil || current.Content != "cordless drill" {
		t.Errorf("current record = %+v, want the original content", current)
	}
}

func TestBatchUpsert_DuplicateEntityIDsCollapse(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	result, err := env.indexer.BatchUpsert(ctx, "product", []any{
		product("p1", "cordless drill"),
		product("p2", "impact driver"),
		product("p1", "brushless drill"),
	})
	if err != nil {
		t.Fatalf("BatchUpsert: %v", err)
	}
	if result.Stored != 2 {
		t.Errorf("Stored = %d, want 2", result.Stored)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}

	if n, _ := env.vectors.Count(ctx); n != 2 {
		t.Errorf("store holds %d records, want 2", n)
	}
	current, err := env.vectors.GetVectorByEntity(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("GetVectorByEntity: %v", err)
	}
	if current == nil {
		t.Fatal("p1 has no live record")
	}
	if current.Content != "brushless drill" {
		t.Errorf("p1 content = %q, want the later occurrence", current.Content)
	}
}
