package memory

import (
	"context"
	"testing"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/rich"
)

func TestUpsertAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Upsert(ctx, rich.Record{
		EntityType: "product",
		EntityID:   "p1",
		Content:    "cordless drill",
		Analysis:   "summary",
		Metadata:   map[string]string{"category": "tools"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec, err := s.Get(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("record not found")
	}
	if rec.Content != "cordless drill" || rec.Analysis != "summary" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps not set on insert")
	}
}

func TestUpsert_PreservesCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Upsert(ctx, rich.Record{
		EntityType: "product",
		EntityID:   "p1",
		Content:    "v1",
		CreatedAt:  created,
	}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}

	if err := s.Upsert(ctx, rich.Record{
		EntityType: "product",
		EntityID:   "p1",
		Content:    "v2",
	}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	rec, err := s.Get(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Content != "v2" {
		t.Errorf("Content = %q, want updated content", rec.Content)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want original %v", rec.CreatedAt, created)
	}
	if !rec.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt = %v not advanced past %v", rec.UpdatedAt, created)
	}
}

func TestGet_Absent(t *testing.T) {
	s := New()

	rec, err := s.Get(context.Background(), "product", "ghost")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Errorf("got %+v for absent record, want nil", rec)
	}
}

func TestGetMany(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if err := s.Upsert(ctx, rich.Record{EntityType: "product", EntityID: id, Content: id}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	keys := []rich.Key{
		{EntityType: "product", EntityID: "p1"},
		{EntityType: "product", EntityID: "missing"},
		{EntityType: "product", EntityID: "p2"},
	}
	records, err := s.GetMany(ctx, keys)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (absent keys omitted)", len(records))
	}
	if records[keys[0]].Content != "p1" || records[keys[2]].Content != "p2" {
		t.Errorf("records = %v", records)
	}
}

func TestDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Upsert(ctx, rich.Record{EntityType: "product", EntityID: "p1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	deleted, err := s.Delete(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("Delete = false for existing record")
	}

	deleted, err = s.Delete(ctx, "product", "p1")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Error("second Delete = true")
	}
}

func TestCountAndClearAll(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		if err := s.Upsert(ctx, rich.Record{EntityType: "product", EntityID: id}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count = %d after clear", n)
	}
}
