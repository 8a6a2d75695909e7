package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestFakeStoreUpsertAndSearch(t *testing.T) {
	store := NewFakeStore()
	ctx := context.Background()

	if err := store.EnsureCollection(ctx, "knowledge"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	items := []UpsertItem{
		{
			Chunk: model.KnowledgeChunk{ID: "a", Content: "cats are great", Metadata: model.ChunkMetadata{DateAdded: time.Now()}},
			Vector: model.Embedding{1, 0, 0},
		},
		{
			Chunk: model.KnowledgeChunk{ID: "b", Content: "dogs are great", Metadata: model.ChunkMetadata{DateAdded: time.Now()}},
			Vector: model.Embedding{0, 1, 0},
		},
	}
	if err := store.Upsert(ctx, "knowledge", items); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := store.Search(ctx, "knowledge", model.Embedding{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected top result 'a', got %+v", results)
	}
}

func TestFakeStoreDelete(t *testing.T) {
	store := NewFakeStore()
	ctx := context.Background()
	store.EnsureCollection(ctx, "knowledge")
	store.Upsert(ctx, "knowledge", []UpsertItem{
		{Chunk: model.KnowledgeChunk{ID: "a", Metadata: model.ChunkMetadata{DateAdded: time.Now()}}, Vector: model.Embedding{1, 0}},
	})

	if err := store.Delete(ctx, "knowledge", []string{"a"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	chunks, err := store.Scroll(ctx, "knowledge", 10)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected empty after delete, got %d", len(chunks))
	}
}

func TestSchemaMismatchErrorMessage(t *testing.T) {
	err := &SchemaMismatchError{Collection: "knowledge", Got: "size=512", Want: "size=768"}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
